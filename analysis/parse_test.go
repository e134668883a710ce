package analysis

import (
	"strings"
	"testing"

	"github.com/danfors/topicd/conversations"
	"github.com/danfors/topicd/memory"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced with language tag", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading whitespace", "  \n```json\n{\"a\": 1}\n```\n", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.in); got != tt.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAssessment(t *testing.T) {
	assessment, err := ParseAssessment("```json\n" + `{
		"is_addressed": true,
		"confidence": 0.7,
		"extracted_facts": ["pain started after lifting"],
		"relevant_quotes": ["it started when I lifted a couch"],
		"structured_data": {"onset": "2 weeks ago"}
	}` + "\n```")
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if !assessment.IsAddressed || assessment.Confidence != 0.7 {
		t.Errorf("unexpected assessment: %+v", assessment)
	}
	if len(assessment.ExtractedFacts) != 1 {
		t.Errorf("unexpected facts: %v", assessment.ExtractedFacts)
	}
}

func TestParseAssessment_ClampsConfidence(t *testing.T) {
	assessment, err := ParseAssessment(`{"is_addressed": true, "confidence": 1.4}`)
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if assessment.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", assessment.Confidence)
	}

	assessment, err = ParseAssessment(`{"is_addressed": false, "confidence": -0.2}`)
	if err != nil {
		t.Fatalf("ParseAssessment: %v", err)
	}
	if assessment.Confidence != 0 {
		t.Errorf("expected confidence clamped to 0, got %v", assessment.Confidence)
	}
}

func TestParseAssessment_RejectsNonJSON(t *testing.T) {
	if _, err := ParseAssessment("I could not find anything relevant."); err == nil {
		t.Fatal("expected error for prose response")
	}
}

func TestParseProfileUpdate(t *testing.T) {
	update, err := ParseProfileUpdate(`{"preferred_name": "Jane", "birthday": "1985-03-15"}`)
	if err != nil {
		t.Fatalf("ParseProfileUpdate: %v", err)
	}
	if update.PreferredName != "Jane" || update.Birthday != "1985-03-15" {
		t.Errorf("unexpected update: %+v", update)
	}

	empty, err := ParseProfileUpdate(`{}`)
	if err != nil {
		t.Fatalf("ParseProfileUpdate: %v", err)
	}
	if !empty.IsEmpty() {
		t.Errorf("expected empty update, got %+v", empty)
	}
}

func TestBuildTopicPrompt_IncludesPriorFacts(t *testing.T) {
	prompt := BuildTopicPrompt(&Request{
		TopicTitle:       "Pain Onset",
		TopicDescription: "When and how the pain started",
		Keywords:         []string{"onset", "injury"},
		Window: []conversations.Message{
			{Role: "user", Content: "it started two weeks ago"},
		},
		Existing: &memory.TopicMemory{
			ExtractedFacts: []string{"Pain began after lifting furniture"},
		},
	})

	for _, want := range []string{
		"TOPIC: Pain Onset",
		"KEYWORD HINTS: onset, injury",
		"Pain began after lifting furniture",
		"user: it started two weeks ago",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
