// Package summary builds the end-of-conversation artifact for a completed
// topic set: it aggregates per-topic memories and the user profile into a
// summary document, generates a narrative, stores the document, and
// announces completion on the status channel.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/memory"
)

// TopicSummary is one topic's contribution to the summary document.
type TopicSummary struct {
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	ExtractedFacts   []string               `json:"extracted_facts"`
	RelevantQuotes   []string               `json:"relevant_quotes"`
	StructuredData   map[string]interface{} `json:"structured_data"`
	FirstAddressedAt *time.Time             `json:"first_addressed_at,omitempty"`
}

// Data is the aggregated summary document stored in the memory store.
type Data struct {
	UserName       string         `json:"user_name,omitempty"`
	PreferredName  string         `json:"preferred_name,omitempty"`
	TopicSetID     string         `json:"topic_set_id"`
	TopicSetTitle  string         `json:"topic_set_title"`
	TopicSummaries []TopicSummary `json:"topic_summaries"`
	Narrative      string         `json:"narrative,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// Aggregate collects per-topic memories and profile data into a summary
// document, topics in set order. Topics without a memory record still appear,
// empty, so the document always covers the whole set.
func Aggregate(ctx context.Context, store *memory.Store, userID string, set *config.TopicSetConfig) (*Data, error) {
	memories, err := store.ListTopicMemories(ctx, userID, set.ID)
	if err != nil {
		return nil, fmt.Errorf("list topic memories: %w", err)
	}
	byTopic := make(map[string]*memory.TopicMemory, len(memories))
	for _, mem := range memories {
		byTopic[mem.TopicID] = mem
	}

	data := &Data{
		TopicSetID:    set.ID,
		TopicSetTitle: set.Title,
		GeneratedAt:   time.Now().UTC(),
	}

	if profile, found, err := store.GetProfile(ctx, userID); err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	} else if found {
		data.UserName = profile.Name
		data.PreferredName = profile.PreferredName
	}

	for _, topic := range set.ActiveTopics() {
		topicSummary := TopicSummary{
			Title:          topic.Title,
			Description:    topic.Description,
			ExtractedFacts: []string{},
			RelevantQuotes: []string{},
			StructuredData: map[string]interface{}{},
		}
		if mem, ok := byTopic[topic.ID]; ok {
			topicSummary.ExtractedFacts = mem.ExtractedFacts
			topicSummary.RelevantQuotes = mem.RelevantQuotes
			topicSummary.StructuredData = mem.StructuredData
			topicSummary.FirstAddressedAt = mem.FirstAddressedAt
		}
		data.TopicSummaries = append(data.TopicSummaries, topicSummary)
	}

	return data, nil
}

// narrativePrompt renders the document into the prompt for the narrative
// generator.
func narrativePrompt(data *Data) string {
	firstName := data.PreferredName
	if firstName == "" && data.UserName != "" {
		firstName = strings.Fields(data.UserName)[0]
	}
	if firstName == "" {
		firstName = "the user"
	}

	var topics strings.Builder
	for i, topic := range data.TopicSummaries {
		fmt.Fprintf(&topics, "\n%d. %s\n", i+1, topic.Title)
		if len(topic.ExtractedFacts) > 0 {
			topics.WriteString("   Key Points:\n")
			for _, fact := range topic.ExtractedFacts {
				fmt.Fprintf(&topics, "   - %s\n", fact)
			}
		}
		if len(topic.RelevantQuotes) > 0 {
			topics.WriteString("   In Their Words:\n")
			for _, quote := range topic.RelevantQuotes {
				fmt.Fprintf(&topics, "   - %q\n", quote)
			}
		}
		if len(topic.StructuredData) > 0 {
			if encoded, err := json.Marshal(topic.StructuredData); err == nil {
				fmt.Fprintf(&topics, "   Structured Data: %s\n", encoded)
			}
		}
	}

	return fmt.Sprintf(`You are creating a summary document of a structured conversation about %s.
Write a warm, clear narrative (1-2 pages) that captures the key inputs, goals,
concerns, and preferences the user shared.

Write in third person using the user's first name (%q). Format it as flowing
paragraphs, not bullet points. Make it personal and specific to what this user
shared. Do not invent information that is not present below.

User Name: %s

Topics Discussed:
%s`, data.TopicSetTitle, firstName, data.UserName, topics.String())
}
