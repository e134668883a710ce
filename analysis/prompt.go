package analysis

import (
	"fmt"
	"strings"

	"github.com/danfors/topicd/conversations"
)

const topicPromptTemplate = `You are analyzing a conversation to determine whether a specific topic
has been addressed and what was said about it.

TOPIC: %s
DESCRIPTION: %s
%s
Assess ONLY what the user has actually said. Do NOT infer or guess
information that wasn't directly stated. Confidence reflects how clearly
and completely the topic was covered, from 0.0 (not touched) to 1.0
(fully and explicitly covered).

Return a JSON object with exactly these fields:
- is_addressed: boolean, true if the conversation touched this topic at all
- confidence: number between 0.0 and 1.0
- extracted_facts: array of short factual statements the user made about this topic
- relevant_quotes: array of verbatim user quotes supporting the facts
- structured_data: object with any topic-specific structured values, or {}

%s
Conversation:
%s

Return ONLY valid JSON, no other text.`

const profilePromptTemplate = `Analyze this conversation and extract any new information about
the user. Only extract information that the user has explicitly stated about
themselves. Do NOT infer or guess information that wasn't directly stated.

Return a JSON object with any of these fields that you can confidently fill:
- name: User's full name (only if they explicitly stated it)
- preferred_name: How they prefer to be called (only if they explicitly stated it)
- birthday: Their birthday in YYYY-MM-DD format (only if they explicitly stated it)

Only include fields where you have HIGH CONFIDENCE from explicit user statements.
Return an empty object {} if no profile information was found.

Conversation:
%s

Return ONLY valid JSON, no other text.`

// BuildTopicPrompt renders the assessment prompt for one topic. Prior facts
// are included so the model can report continuity rather than rediscovering
// the same statements each turn.
func BuildTopicPrompt(req *Request) string {
	var keywords string
	if len(req.Keywords) > 0 {
		keywords = fmt.Sprintf("KEYWORD HINTS: %s\n", strings.Join(req.Keywords, ", "))
	}

	var prior string
	if req.Existing != nil && len(req.Existing.ExtractedFacts) > 0 {
		var sb strings.Builder
		sb.WriteString("Previously extracted facts for this topic:\n")
		for _, fact := range req.Existing.ExtractedFacts {
			sb.WriteString("- ")
			sb.WriteString(fact)
			sb.WriteString("\n")
		}
		prior = sb.String()
	}

	return fmt.Sprintf(topicPromptTemplate,
		req.TopicTitle, req.TopicDescription, keywords, prior, FormatWindow(req.Window))
}

// BuildProfilePrompt renders the profile extraction prompt for a window of
// messages.
func BuildProfilePrompt(window []conversations.Message) string {
	return fmt.Sprintf(profilePromptTemplate, FormatWindow(window))
}

// FormatWindow renders messages as "role: content" lines, oldest first.
func FormatWindow(window []conversations.Message) string {
	lines := make([]string, 0, len(window))
	for _, msg := range window {
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return strings.Join(lines, "\n")
}
