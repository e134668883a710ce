package extraction

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danfors/topicd/analysis"
	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/conversations"
	"github.com/danfors/topicd/memory"
	"github.com/danfors/topicd/status"
)

// Engine runs extraction batches: one batch analyzes every open topic of a
// set against a window of new messages and merges the results into the
// memory store.
type Engine struct {
	store     *memory.Store
	analyzer  analysis.Analyzer
	profiles  analysis.ProfileExtractor
	monitor   *Monitor
	publisher *status.Publisher
	locks     *keyMutex

	skipThreshold float64
	logger        zerolog.Logger
}

// NewEngine creates an Engine. profiles may be nil to disable profile
// extraction.
func NewEngine(store *memory.Store, analyzer analysis.Analyzer, profiles analysis.ProfileExtractor, monitor *Monitor, publisher *status.Publisher, cfg config.ExtractionConfig, logger zerolog.Logger) *Engine {
	threshold := cfg.HighConfidenceSkipThreshold
	if threshold <= 0 {
		threshold = config.DefaultHighConfidenceSkipThreshold
	}
	return &Engine{
		store:         store,
		analyzer:      analyzer,
		profiles:      profiles,
		monitor:       monitor,
		publisher:     publisher,
		locks:         newKeyMutex(),
		skipThreshold: threshold,
		logger:        logger.With().Str("component", "extraction-engine").Logger(),
	}
}

// RunBatch analyzes all open topics of the set against the window, merges
// the results, and runs the completion check. It returns whether this batch
// triggered summary generation.
//
// Start and end of the batch are observable on the status channel on every
// exit path: extraction_start on entry, extraction_complete via a deferred
// release. The release fires only after merges and the completion check have
// committed, so a viewer never sees completion for data it cannot read back.
func (e *Engine) RunBatch(ctx context.Context, conversationID, userID string, set *config.TopicSetConfig, window []conversations.Message) (summaryTriggered bool, err error) {
	release := e.publisher.BeginExtraction(conversationID)
	defer func() { release(summaryTriggered) }()

	if len(window) == 0 {
		return false, nil
	}

	// Topics touch disjoint keys, so they are analyzed concurrently. The
	// per-key lock covers the whole read-analyze-merge-write sequence so a
	// concurrent batch on the same topic cannot lose an update.
	var wg sync.WaitGroup
	for _, topic := range set.ActiveTopics() {
		wg.Add(1)
		go func(topic *config.TopicConfig) {
			defer wg.Done()
			e.analyzeTopic(ctx, userID, set.ID, topic, window)
		}(topic)
	}
	wg.Wait()

	summaryTriggered, err = e.monitor.CheckCompletion(ctx, conversationID, userID, set)
	if err != nil {
		e.logger.Error().Err(err).
			Str("topic_set_id", set.ID).
			Msg("Completion check failed")
		return false, err
	}
	return summaryTriggered, nil
}

// analyzeTopic assesses one topic and merges the result. A failure here is
// contained: the previous record stays untouched and the batch continues
// with the other topics.
func (e *Engine) analyzeTopic(ctx context.Context, userID, topicSetID string, topic *config.TopicConfig, window []conversations.Message) {
	log := e.logger.With().
		Str("topic_set_id", topicSetID).
		Str("topic_id", topic.ID).
		Logger()

	lock := e.locks.forKey(memory.TopicNamespace(userID, topicSetID) + "|" + memory.TopicKey(topic.ID))
	lock.Lock()
	defer lock.Unlock()

	existing, found, err := e.store.GetTopicMemory(ctx, userID, topicSetID, topic.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read topic memory, skipping topic")
		return
	}
	if !found {
		existing = nil
	}

	// Settled topics are not re-analyzed.
	if existing != nil && existing.IsAddressed && existing.Confidence >= e.skipThreshold {
		log.Debug().Float64("confidence", existing.Confidence).Msg("Topic settled, skipping analysis")
		return
	}

	assessment, err := e.analyzer.AssessTopic(ctx, &analysis.Request{
		TopicTitle:       topic.Title,
		TopicDescription: topic.Description,
		Keywords:         topic.Keywords,
		Window:           window,
		Existing:         existing,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Analysis failed, topic unchanged for this batch")
		return
	}

	merged := Merge(existing, assessment, topic.ID, topicSetID, len(window), time.Now().UTC())
	if err := e.store.PutTopicMemory(ctx, userID, merged); err != nil {
		log.Error().Err(err).Msg("Failed to persist merged topic memory")
		return
	}

	log.Debug().
		Bool("is_addressed", merged.IsAddressed).
		Float64("confidence", merged.Confidence).
		Int("facts", len(merged.ExtractedFacts)).
		Msg("Topic memory merged")
}

// RunProfileExtraction extracts profile statements from the window and
// merges any non-empty fields into the user's profile record. It runs as
// its own unit of work per turn, independent of topic batches.
func (e *Engine) RunProfileExtraction(ctx context.Context, userID string, window []conversations.Message) error {
	if e.profiles == nil || len(window) == 0 {
		return nil
	}

	update, err := e.profiles.ExtractProfile(ctx, window)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Profile extraction failed")
		return err
	}
	if update.IsEmpty() {
		e.logger.Debug().Msg("No profile data extracted")
		return nil
	}

	if _, err := e.store.UpdateProfile(ctx, userID, update, memory.SourceExtraction); err != nil {
		e.logger.Error().Err(err).Msg("Failed to persist profile update")
		return err
	}
	e.logger.Info().Str("user_id", memory.EncodeUserID(userID)).Msg("Extracted profile data")
	return nil
}
