package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danfors/topicd/memory"
)

// StripCodeFences removes a markdown code block wrapper if the model
// returned one despite being asked for bare JSON.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	// Drop the opening fence line (which may carry a language tag) and the
	// closing fence.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ParseAssessment decodes a model response into an Assessment. Confidence is
// clamped into [0, 1] so a misbehaving model cannot corrupt the merge math
// downstream.
func ParseAssessment(text string) (*Assessment, error) {
	var assessment Assessment
	if err := json.Unmarshal([]byte(StripCodeFences(text)), &assessment); err != nil {
		return nil, fmt.Errorf("parse assessment response: %w", err)
	}

	if assessment.Confidence < 0 {
		assessment.Confidence = 0
	}
	if assessment.Confidence > 1 {
		assessment.Confidence = 1
	}
	if assessment.StructuredData == nil {
		assessment.StructuredData = map[string]interface{}{}
	}
	return &assessment, nil
}

// ParseProfileUpdate decodes a model response into a profile update. Unknown
// fields are ignored; an empty object decodes to an empty update.
func ParseProfileUpdate(text string) (memory.ProfileUpdate, error) {
	var update memory.ProfileUpdate
	if err := json.Unmarshal([]byte(StripCodeFences(text)), &update); err != nil {
		return memory.ProfileUpdate{}, fmt.Errorf("parse profile response: %w", err)
	}
	return update, nil
}
