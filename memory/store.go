package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// Store manages all durable memory record persistence. It is a namespaced
// key-value store: writes to a single (namespace, key) are atomic, there are
// no cross-key transactions, and callers own read-merge-write.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates and returns a Store.
func NewStore(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "memory_store").Logger()
	logger.Info().Msg("Initializing memory store")
	return &Store{db: db, logger: logger}, nil
}

// Record is a stored document plus its key.
type Record struct {
	Key       string
	Value     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

func now() int64 { return time.Now().Unix() }

// Get returns the raw value for a key, with found=false when absent.
func (s *Store) Get(ctx context.Context, namespace, key string) (json.RawMessage, bool, error) {
	query := sq.Select("value").
		From("memory_records").
		Where(sq.Eq{"namespace": namespace, "key": key})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build select query: %w", err)
	}

	var value string
	err = s.db.QueryRowContext(ctx, queryStr, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get record %s/%s: %w", namespace, key, err)
	}
	return json.RawMessage(value), true, nil
}

// Put writes a value under (namespace, key), replacing any existing value.
// The write is a single-statement upsert, so it is atomic per key.
func (s *Store) Put(ctx context.Context, namespace, key string, value interface{}) error {
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		s.logger.Warn().
			Str("method", "Put").
			Str("namespace", namespace).
			Str("key", key).
			Msg("Attempted to put record with empty namespace or key")
		return errors.New("namespace and key are required")
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		s.logger.Error().
			Str("method", "Put").
			Err(err).
			Msg("Failed to marshal record value")
		return fmt.Errorf("marshal record value: %w", err)
	}

	nowUnix := now()
	query := sq.Insert("memory_records").
		Columns("namespace", "key", "value", "created_at", "updated_at").
		Values(namespace, key, string(valueJSON), nowUnix, nowUnix).
		Suffix("ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		s.logger.Error().
			Str("method", "Put").
			Str("namespace", namespace).
			Str("key", key).
			Err(err).
			Msg("Failed to upsert record")
		return fmt.Errorf("put record %s/%s: %w", namespace, key, err)
	}

	s.logger.Debug().
		Str("method", "Put").
		Str("namespace", namespace).
		Str("key", key).
		Msg("Record stored")
	return nil
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	query := sq.Delete("memory_records").
		Where(sq.Eq{"namespace": namespace, "key": key})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("delete record %s/%s: %w", namespace, key, err)
	}
	return nil
}

// List returns all records in a namespace ordered by key.
func (s *Store) List(ctx context.Context, namespace string) ([]Record, error) {
	query := sq.Select("key", "value", "created_at", "updated_at").
		From("memory_records").
		Where(sq.Eq{"namespace": namespace}).
		OrderBy("key")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", namespace, err)
	}
	defer rows.Close() //nolint:errcheck // Rows close error can be ignored

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			value     string
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&rec.Key, &value, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		rec.Value = json.RawMessage(value)
		rec.CreatedAt = time.Unix(createdAt, 0)
		rec.UpdatedAt = time.Unix(updatedAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}

// DeleteNamespace removes every record in a namespace. It returns the number
// of records deleted. Used when a user's memories are purged.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	query := sq.Delete("memory_records").
		Where(sq.Eq{"namespace": namespace})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.logger.Info().
		Str("method", "DeleteNamespace").
		Str("namespace", namespace).
		Int64("deleted", deleted).
		Msg("Namespace purged")
	return deleted, nil
}

// GetTopicMemory returns the memory record for a topic, with found=false
// when the topic has never been analyzed for this user.
func (s *Store) GetTopicMemory(ctx context.Context, userID, topicSetID, topicID string) (*TopicMemory, bool, error) {
	raw, found, err := s.Get(ctx, TopicNamespace(userID, topicSetID), TopicKey(topicID))
	if err != nil || !found {
		return nil, false, err
	}

	var mem TopicMemory
	if err := json.Unmarshal(raw, &mem); err != nil {
		return nil, false, fmt.Errorf("unmarshal topic memory %s/%s: %w", topicSetID, topicID, err)
	}
	return &mem, true, nil
}

// PutTopicMemory persists a topic memory record.
func (s *Store) PutTopicMemory(ctx context.Context, userID string, mem *TopicMemory) error {
	if mem.TopicID == "" || mem.TopicSetID == "" {
		return errors.New("topic memory requires topic id and topic set id")
	}
	return s.Put(ctx, TopicNamespace(userID, mem.TopicSetID), TopicKey(mem.TopicID), mem)
}

// ListTopicMemories returns all topic memory records for a user's topic set.
// Records that fail to parse are logged and skipped rather than failing the
// whole listing.
func (s *Store) ListTopicMemories(ctx context.Context, userID, topicSetID string) ([]*TopicMemory, error) {
	records, err := s.List(ctx, TopicNamespace(userID, topicSetID))
	if err != nil {
		return nil, err
	}

	var memories []*TopicMemory
	for _, rec := range records {
		if !strings.HasPrefix(rec.Key, topicKeyPrefix) {
			continue
		}
		var mem TopicMemory
		if err := json.Unmarshal(rec.Value, &mem); err != nil {
			s.logger.Warn().
				Str("method", "ListTopicMemories").
				Str("key", rec.Key).
				Err(err).
				Msg("Failed to parse topic memory record, skipping")
			continue
		}
		memories = append(memories, &mem)
	}
	return memories, nil
}

// GetCompletion returns the completion record for a user's topic set, if any.
func (s *Store) GetCompletion(ctx context.Context, userID, topicSetID string) (*CompletionRecord, bool, error) {
	raw, found, err := s.Get(ctx, TopicNamespace(userID, topicSetID), CompletionKey)
	if err != nil || !found {
		return nil, false, err
	}
	var rec CompletionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("unmarshal completion record %s: %w", topicSetID, err)
	}
	return &rec, true, nil
}

// PutCompletion marks a topic set as fully addressed for a user.
func (s *Store) PutCompletion(ctx context.Context, userID string, rec *CompletionRecord) error {
	return s.Put(ctx, TopicNamespace(userID, rec.TopicSetID), CompletionKey, rec)
}
