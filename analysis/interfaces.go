package analysis

import (
	"context"

	"github.com/danfors/topicd/conversations"
	"github.com/danfors/topicd/memory"
)

// Assessment is a candidate judgment about one topic, produced by a single
// analyzer call. It is merged into the durable topic memory by the
// extraction engine; analyzers never write to the store themselves.
type Assessment struct {
	IsAddressed    bool                   `json:"is_addressed"`
	Confidence     float64                `json:"confidence"`
	ExtractedFacts []string               `json:"extracted_facts"`
	RelevantQuotes []string               `json:"relevant_quotes"`
	StructuredData map[string]interface{} `json:"structured_data"`
}

// Request carries everything an analyzer needs to assess one topic against a
// window of new messages. Existing is the prior record, passed for
// continuity; nil when the topic has never been analyzed.
type Request struct {
	TopicTitle       string
	TopicDescription string
	Keywords         []string
	Window           []conversations.Message
	Existing         *memory.TopicMemory
}

// Analyzer is the external analysis collaborator consumed by the extraction
// engine. A failed call skips the topic for the current batch; it never
// aborts the batch.
type Analyzer interface {
	AssessTopic(ctx context.Context, req *Request) (*Assessment, error)
}

// ProfileExtractor extracts user profile information from a conversation
// window. An empty update means nothing new was stated.
type ProfileExtractor interface {
	ExtractProfile(ctx context.Context, window []conversations.Message) (memory.ProfileUpdate, error)
}
