package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/memory"
)

// SummaryJob generates a summary artifact for a completed topic set. The job
// is expected to publish summary_complete itself once the artifact is
// stored.
type SummaryJob interface {
	Generate(ctx context.Context, conversationID, userID, topicSetID string)
}

// Monitor decides when a topic set has been fully covered and fires the
// summary job exactly once per completion transition. The durable
// completion record makes the guard hold across restarts; the per-(user,set)
// mutex makes it hold across concurrent batches.
type Monitor struct {
	store     *memory.Store
	summaries SummaryJob
	locks     *keyMutex
	logger    zerolog.Logger
}

// NewMonitor creates a Monitor. summaries may be nil, in which case
// completion is still recorded but no job is launched (useful in tests).
func NewMonitor(store *memory.Store, summaries SummaryJob, logger zerolog.Logger) *Monitor {
	return &Monitor{
		store:     store,
		summaries: summaries,
		locks:     newKeyMutex(),
		logger:    logger.With().Str("component", "completion-monitor").Logger(),
	}
}

// CheckCompletion reports whether this invocation transitioned the topic set
// to fully addressed. On that transition it writes the completion record and
// launches the summary job; any other outcome returns false. An empty topic
// set never completes.
func (m *Monitor) CheckCompletion(ctx context.Context, conversationID, userID string, set *config.TopicSetConfig) (bool, error) {
	topics := set.ActiveTopics()
	if len(topics) == 0 {
		return false, nil
	}

	// Check-and-mark is atomic per (user, set) so two batches finishing the
	// same transition cannot both trigger.
	lock := m.locks.forKey(memory.EncodeUserID(userID) + "|" + set.ID)
	lock.Lock()
	defer lock.Unlock()

	if _, done, err := m.store.GetCompletion(ctx, userID, set.ID); err != nil {
		return false, fmt.Errorf("read completion record: %w", err)
	} else if done {
		return false, nil
	}

	for _, topic := range topics {
		mem, found, err := m.store.GetTopicMemory(ctx, userID, set.ID, topic.ID)
		if err != nil {
			return false, fmt.Errorf("read topic memory %s: %w", topic.ID, err)
		}
		if !found || !mem.IsAddressed {
			return false, nil
		}
	}

	record := &memory.CompletionRecord{TopicSetID: set.ID, CompletedAt: time.Now().UTC()}
	if err := m.store.PutCompletion(ctx, userID, record); err != nil {
		return false, fmt.Errorf("write completion record: %w", err)
	}

	m.logger.Info().
		Str("user_id", memory.EncodeUserID(userID)).
		Str("topic_set_id", set.ID).
		Msg("Topic set fully addressed, triggering summary")

	if m.summaries != nil {
		// The batch that triggered us should not be held up by, or cancelled
		// along with, summary generation.
		go m.summaries.Generate(context.WithoutCancel(ctx), conversationID, userID, set.ID)
	}
	return true, nil
}
