package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetProfile retrieves a user's profile document, with found=false when the
// user has no profile yet.
func (s *Store) GetProfile(ctx context.Context, userID string) (*UserProfile, bool, error) {
	raw, found, err := s.Get(ctx, ProfileNamespace(userID), ProfileKey)
	if err != nil || !found {
		return nil, false, err
	}

	var profile UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, false, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &profile, true, nil
}

// UpdateProfile merges a partial update into the user's profile document.
// Only non-empty incoming fields overwrite existing values, so previously
// learned information is never nulled out.
func (s *Store) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate, source ProfileSource) (*UserProfile, error) {
	profile, found, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		profile = &UserProfile{}
	}

	if update.Name != "" {
		profile.Name = update.Name
	}
	if update.PreferredName != "" {
		profile.PreferredName = update.PreferredName
	}
	if update.Birthday != "" {
		profile.Birthday = update.Birthday
	}
	profile.Source = source
	profile.UpdatedAt = time.Now().UTC()

	if err := s.Put(ctx, ProfileNamespace(userID), ProfileKey, profile); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("method", "UpdateProfile").
		Str("user_id", EncodeUserID(userID)).
		Str("source", string(source)).
		Msg("Updated user profile")
	return profile, nil
}

// FormatProfileForPrompt renders the known profile information as a short
// block suitable for prepending to a system prompt. Returns an empty string
// when nothing useful is known.
func FormatProfileForPrompt(profile *UserProfile) string {
	if profile == nil {
		return ""
	}

	var parts []string
	switch {
	case profile.PreferredName != "":
		parts = append(parts, fmt.Sprintf("The user prefers to be called %s.", profile.PreferredName))
	case profile.Name != "":
		parts = append(parts, fmt.Sprintf("The user's name is %s.", profile.Name))
	}
	if profile.Birthday != "" {
		if bday, err := time.Parse("2006-01-02", profile.Birthday); err == nil {
			parts = append(parts, fmt.Sprintf("Their birthday is %s.", bday.Format("January 02")))
		}
	}

	if len(parts) == 0 {
		return ""
	}

	out := "USER CONTEXT:\n"
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
