package memory

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danfors/topicd/migrations"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory database and runs migrations
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Run migrations to create the necessary tables
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	var migrationsPath string
	// Try relative to memory directory first
	if testPath := filepath.Join(cwd, "..", "migrations"); fileExists(filepath.Join(testPath, "000001_initial_schema.up.sql")) {
		migrationsPath = testPath
	} else {
		// Fallback to relative path
		migrationsPath = filepath.Join("..", "migrations")
	}

	if err := migrations.RunMigrations(db, migrationsPath, zerolog.Nop()); err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := setupTestDB(t)
	t.Cleanup(func() { _ = db.Close() }) //nolint:errcheck // Test cleanup

	store, err := NewStore(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := &TopicMemory{
		TopicID:              "treatment-goals",
		TopicSetID:           "backpain",
		IsAddressed:          true,
		Confidence:           0.85,
		ExtractedFacts:       []string{"Wants to return to gardening"},
		RelevantQuotes:       []string{"I really miss being able to garden"},
		StructuredData:       map[string]interface{}{"timeline": "3 months"},
		LastAnalyzedAt:       time.Now().UTC().Truncate(time.Second),
		MessageCountAnalyzed: 4,
	}
	if err := store.PutTopicMemory(ctx, "user@example.com", mem); err != nil {
		t.Fatalf("PutTopicMemory: %v", err)
	}

	got, found, err := store.GetTopicMemory(ctx, "user@example.com", "backpain", "treatment-goals")
	if err != nil {
		t.Fatalf("GetTopicMemory: %v", err)
	}
	if !found {
		t.Fatalf("expected record to be found")
	}
	if !got.IsAddressed || got.Confidence != 0.85 {
		t.Errorf("unexpected record: addressed=%v confidence=%v", got.IsAddressed, got.Confidence)
	}
	if len(got.ExtractedFacts) != 1 || got.ExtractedFacts[0] != "Wants to return to gardening" {
		t.Errorf("unexpected facts: %v", got.ExtractedFacts)
	}
	if got.StructuredData["timeline"] != "3 months" {
		t.Errorf("unexpected structured data: %v", got.StructuredData)
	}
}

func TestStore_GetMissingRecord(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.GetTopicMemory(context.Background(), "user@example.com", "backpain", "nope")
	if err != nil {
		t.Fatalf("GetTopicMemory: %v", err)
	}
	if found {
		t.Fatalf("expected record to be absent")
	}
}

func TestStore_PutOverwritesSingleKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &TopicMemory{TopicID: "a", TopicSetID: "set", Confidence: 0.2}
	second := &TopicMemory{TopicID: "a", TopicSetID: "set", Confidence: 0.9}
	other := &TopicMemory{TopicID: "b", TopicSetID: "set", Confidence: 0.5}

	for _, mem := range []*TopicMemory{first, other, second} {
		if err := store.PutTopicMemory(ctx, "user@example.com", mem); err != nil {
			t.Fatalf("PutTopicMemory: %v", err)
		}
	}

	got, _, err := store.GetTopicMemory(ctx, "user@example.com", "set", "a")
	if err != nil {
		t.Fatalf("GetTopicMemory: %v", err)
	}
	if got.Confidence != 0.9 {
		t.Errorf("expected overwrite to win, got confidence %v", got.Confidence)
	}

	// The other key is untouched
	gotOther, _, err := store.GetTopicMemory(ctx, "user@example.com", "set", "b")
	if err != nil {
		t.Fatalf("GetTopicMemory: %v", err)
	}
	if gotOther.Confidence != 0.5 {
		t.Errorf("expected sibling key untouched, got confidence %v", gotOther.Confidence)
	}
}

func TestStore_ListTopicMemoriesSkipsCompletionRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.PutTopicMemory(ctx, "user@example.com", &TopicMemory{TopicID: id, TopicSetID: "set"}); err != nil {
			t.Fatalf("PutTopicMemory: %v", err)
		}
	}
	if err := store.PutCompletion(ctx, "user@example.com", &CompletionRecord{TopicSetID: "set", CompletedAt: time.Now()}); err != nil {
		t.Fatalf("PutCompletion: %v", err)
	}

	memories, err := store.ListTopicMemories(ctx, "user@example.com", "set")
	if err != nil {
		t.Fatalf("ListTopicMemories: %v", err)
	}
	if len(memories) != 3 {
		t.Fatalf("expected 3 topic memories, got %d", len(memories))
	}
}

func TestStore_NamespaceIsolationBetweenUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutTopicMemory(ctx, "alice@example.com", &TopicMemory{TopicID: "a", TopicSetID: "set", Confidence: 0.7}); err != nil {
		t.Fatalf("PutTopicMemory: %v", err)
	}

	_, found, err := store.GetTopicMemory(ctx, "bob@example.com", "set", "a")
	if err != nil {
		t.Fatalf("GetTopicMemory: %v", err)
	}
	if found {
		t.Fatalf("expected bob's namespace to be empty")
	}
}

func TestStore_DeleteNamespace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.PutTopicMemory(ctx, "user@example.com", &TopicMemory{TopicID: id, TopicSetID: "set"}); err != nil {
			t.Fatalf("PutTopicMemory: %v", err)
		}
	}

	deleted, err := store.DeleteNamespace(ctx, TopicNamespace("user@example.com", "set"))
	if err != nil {
		t.Fatalf("DeleteNamespace: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted records, got %d", deleted)
	}

	memories, err := store.ListTopicMemories(ctx, "user@example.com", "set")
	if err != nil {
		t.Fatalf("ListTopicMemories: %v", err)
	}
	if len(memories) != 0 {
		t.Errorf("expected empty namespace, got %d records", len(memories))
	}
}

func TestEncodeUserID(t *testing.T) {
	a := EncodeUserID("user@example.com")
	b := EncodeUserID("user@example.com")
	c := EncodeUserID("other@example.com")

	if a != b {
		t.Errorf("encoding should be deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Errorf("distinct users should encode differently")
	}
	if len(a) != 16 {
		t.Errorf("expected 16-char encoding, got %d", len(a))
	}
}
