package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ProfileSource indicates how a piece of profile information was obtained.
type ProfileSource string

const (
	SourceUserInput  ProfileSource = "user_input"
	SourceExtraction ProfileSource = "extraction"
	SourceSystem     ProfileSource = "system"
)

// TopicMemory is the durable record of what has been learned about a single
// topic for one user. One record exists per (user, topic set, topic).
type TopicMemory struct {
	TopicID    string `json:"topic_id"`
	TopicSetID string `json:"topic_set_id"`

	// IsAddressed reflects the most recent analyzer verdict; Confidence moves
	// gradually through the tiered merge and is never written directly.
	IsAddressed bool    `json:"is_addressed"`
	Confidence  float64 `json:"confidence"`

	// ExtractedFacts and RelevantQuotes keep insertion order and are
	// deduplicated on merge, existing entries first.
	ExtractedFacts []string `json:"extracted_facts,omitempty"`
	RelevantQuotes []string `json:"relevant_quotes,omitempty"`

	// StructuredData holds analyzer-specific structured output, shallow-merged
	// with candidate values winning on key conflict.
	StructuredData map[string]interface{} `json:"structured_data,omitempty"`

	// FirstAddressedAt is set once, on the turn IsAddressed first becomes
	// true, and never cleared.
	FirstAddressedAt     *time.Time `json:"first_addressed_at,omitempty"`
	LastAnalyzedAt       time.Time  `json:"last_analyzed_at"`
	MessageCountAnalyzed int        `json:"message_count_analyzed"`
}

// UserProfile is a single document per user holding demographic and
// preference information learned from conversations. Updates merge: only
// non-empty incoming fields overwrite existing data.
type UserProfile struct {
	Name          string        `json:"name,omitempty"`
	PreferredName string        `json:"preferred_name,omitempty"`
	Birthday      string        `json:"birthday,omitempty"` // YYYY-MM-DD
	Source        ProfileSource `json:"source"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ProfileUpdate carries a partial profile update. Empty fields leave the
// stored value untouched.
type ProfileUpdate struct {
	Name          string `json:"name,omitempty"`
	PreferredName string `json:"preferred_name,omitempty"`
	Birthday      string `json:"birthday,omitempty"`
}

// IsEmpty reports whether the update carries no information.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Name == "" && u.PreferredName == "" && u.Birthday == ""
}

// CompletionRecord marks a topic set that has reached full coverage for a
// user. Its presence guards the summary trigger across restarts.
type CompletionRecord struct {
	TopicSetID  string    `json:"topic_set_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Well-known record keys within a namespace.
const (
	ProfileKey    = "profile"
	CompletionKey = "completion"
	SummaryKey    = "summary"

	topicKeyPrefix = "topic_"
)

// TopicKey returns the record key for a topic's memory.
func TopicKey(topicID string) string { return topicKeyPrefix + topicID }

// EncodeUserID encodes a user id for use in namespaces. User ids are
// typically email addresses, which contain characters unsafe for namespace
// segments, so we use the first 16 hex chars of the SHA-256 hash.
func EncodeUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])[:16]
}

// ProfileNamespace returns the namespace holding a user's profile document.
func ProfileNamespace(userID string) string {
	return joinNamespace("memory", "users", EncodeUserID(userID), "profile")
}

// TopicNamespace returns the namespace holding a user's topic memories for a
// topic set. The completion record lives in the same namespace.
func TopicNamespace(userID, topicSetID string) string {
	return joinNamespace("memory", "users", EncodeUserID(userID), "topics", topicSetID)
}

// SummaryNamespace returns the namespace holding a user's generated summary
// for a topic set.
func SummaryNamespace(userID, topicSetID string) string {
	return joinNamespace("memory", "users", EncodeUserID(userID), "summaries", topicSetID)
}

func joinNamespace(segments ...string) string {
	return strings.Join(segments, "/")
}
