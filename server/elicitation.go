package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/memory"
)

// Quotes are capped so long-running conversations don't swamp the prompt.
const maxGuidanceQuotes = 3

// buildReplyGuidance assembles the system-prompt context for the reply
// generator: the user's profile and the first topic of the set that still
// needs discussion, together with what has already been learned about it.
// Returns "" when the set is fully covered and no profile is known.
func (s *Server) buildReplyGuidance(ctx context.Context, userID string, set *config.TopicSetConfig) string {
	var sections []string

	profile, found, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read profile for reply guidance")
	} else if found {
		if userContext := memory.FormatProfileForPrompt(profile); userContext != "" {
			sections = append(sections, userContext)
		}
	}

	memories, err := s.store.ListTopicMemories(ctx, userID, set.ID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list topic memories for reply guidance")
		return strings.Join(sections, "\n\n")
	}
	byTopic := make(map[string]*memory.TopicMemory, len(memories))
	for _, record := range memories {
		byTopic[record.TopicID] = record
	}

	// Steer toward the first topic, in set order, not yet addressed.
	for _, topic := range set.ActiveTopics() {
		record := byTopic[topic.ID]
		if record != nil && record.IsAddressed {
			continue
		}
		sections = append(sections, formatTopicGuidance(topic, record)...)
		break
	}

	return strings.Join(sections, "\n\n")
}

func formatTopicGuidance(topic *config.TopicConfig, record *memory.TopicMemory) []string {
	sections := []string{
		fmt.Sprintf("## Conversation Topic: %s\n%s", topic.Title, topic.Description),
	}
	if len(topic.Keywords) > 0 {
		sections = append(sections, "Areas to cover: "+strings.Join(topic.Keywords, ", "))
	}

	if record == nil || (len(record.ExtractedFacts) == 0 && len(record.RelevantQuotes) == 0) {
		sections = append(sections,
			"## Context\nThis topic has not been explored yet. Start with open-ended questions to understand their situation.")
		return sections
	}

	var b strings.Builder
	b.WriteString("## What You Already Know About This Topic")
	if len(record.ExtractedFacts) > 0 {
		b.WriteString("\nKey points already discussed:")
		for _, fact := range record.ExtractedFacts {
			b.WriteString("\n- " + fact)
		}
	}
	if len(record.RelevantQuotes) > 0 {
		quotes := record.RelevantQuotes
		if len(quotes) > maxGuidanceQuotes {
			quotes = quotes[:maxGuidanceQuotes]
		}
		b.WriteString("\nThings they have said:")
		for _, quote := range quotes {
			b.WriteString(fmt.Sprintf("\n- %q", quote))
		}
	}
	b.WriteString("\nBuild on this knowledge. Do not repeat questions about things you already know; focus on the gaps.")
	sections = append(sections, b.String())
	return sections
}
