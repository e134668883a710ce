package summary

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/memory"
	"github.com/danfors/topicd/status"
)

// Job runs summary generation for completed topic sets. It satisfies the
// completion monitor's trigger interface and is responsible for publishing
// summary_complete after the artifact is stored.
type Job struct {
	store     *memory.Store
	generator Generator
	publisher *status.Publisher
	sets      map[string]*config.TopicSetConfig
	logger    zerolog.Logger
}

// NewJob creates a Job. generator may be nil to store documents without a
// narrative.
func NewJob(store *memory.Store, generator Generator, publisher *status.Publisher, sets map[string]*config.TopicSetConfig, logger zerolog.Logger) *Job {
	return &Job{
		store:     store,
		generator: generator,
		publisher: publisher,
		sets:      sets,
		logger:    logger.With().Str("component", "summary-job").Logger(),
	}
}

// Generate aggregates the topic set's memories into a summary document,
// attaches a narrative, stores the document, and publishes summary_complete.
// A narrative failure downgrades the document rather than losing it.
func (j *Job) Generate(ctx context.Context, conversationID, userID, topicSetID string) {
	log := j.logger.With().
		Str("conversation_id", conversationID).
		Str("user_id", memory.EncodeUserID(userID)).
		Str("topic_set_id", topicSetID).
		Logger()

	set, ok := j.sets[topicSetID]
	if !ok {
		log.Error().Msg("Unknown topic set, summary skipped")
		return
	}

	data, err := Aggregate(ctx, j.store, userID, set)
	if err != nil {
		log.Error().Err(err).Msg("Failed to aggregate summary data")
		return
	}
	data.ConversationID = conversationID

	if j.generator != nil {
		narrative, err := j.generator.Narrative(ctx, data)
		if err != nil {
			log.Warn().Err(err).Msg("Narrative generation failed, storing summary without narrative")
		} else {
			data.Narrative = narrative
		}
	}

	namespace := memory.SummaryNamespace(userID, topicSetID)
	if err := j.store.Put(ctx, namespace, memory.SummaryKey, data); err != nil {
		log.Error().Err(err).Msg("Failed to store summary document")
		return
	}

	j.publisher.SummaryComplete(conversationID)
	log.Info().Int("topics", len(data.TopicSummaries)).Msg("Summary generated")
}
