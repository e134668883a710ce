package memory

import (
	"context"
	"strings"
	"testing"
)

func TestUpdateProfile_PartialMergeKeepsKnownFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpdateProfile(ctx, "user@example.com", ProfileUpdate{
		Name:     "Jane Doe",
		Birthday: "1985-03-15",
	}, SourceUserInput)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	// Second update only carries a preferred name; name and birthday must
	// survive the merge.
	profile, err := store.UpdateProfile(ctx, "user@example.com", ProfileUpdate{
		PreferredName: "Jane",
	}, SourceExtraction)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	if profile.Name != "Jane Doe" {
		t.Errorf("name was lost during merge: %q", profile.Name)
	}
	if profile.Birthday != "1985-03-15" {
		t.Errorf("birthday was lost during merge: %q", profile.Birthday)
	}
	if profile.PreferredName != "Jane" {
		t.Errorf("preferred name not applied: %q", profile.PreferredName)
	}
	if profile.Source != SourceExtraction {
		t.Errorf("source not refreshed: %q", profile.Source)
	}
}

func TestUpdateProfile_EmptyFieldsNeverNullOut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpdateProfile(ctx, "user@example.com", ProfileUpdate{Name: "Jane Doe"}, SourceUserInput); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if _, err := store.UpdateProfile(ctx, "user@example.com", ProfileUpdate{}, SourceExtraction); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	profile, found, err := store.GetProfile(ctx, "user@example.com")
	if err != nil || !found {
		t.Fatalf("GetProfile: found=%v err=%v", found, err)
	}
	if profile.Name != "Jane Doe" {
		t.Errorf("empty update must not clear known data: %q", profile.Name)
	}
}

func TestFormatProfileForPrompt(t *testing.T) {
	if got := FormatProfileForPrompt(nil); got != "" {
		t.Errorf("nil profile should format to empty string, got %q", got)
	}

	got := FormatProfileForPrompt(&UserProfile{Name: "Jane Doe", PreferredName: "Jane", Birthday: "1985-03-15"})
	if !strings.Contains(got, "prefers to be called Jane") {
		t.Errorf("preferred name should win over name: %q", got)
	}
	if !strings.Contains(got, "March 15") {
		t.Errorf("birthday should be rendered: %q", got)
	}
}
