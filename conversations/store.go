package conversations

import (
	"context"
	"fmt"
	"time"

	"database/sql"

	sq "github.com/Masterminds/squirrel"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store handles persistence of conversation messages. The extraction engine
// reads the most recent window per conversation from here.
type Store struct {
	db *sql.DB
}

// NewStore creates a new conversation Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendUserMessage saves a user text message to the conversation history.
func (s *Store) AppendUserMessage(ctx context.Context, conversationID, userID, content string) error {
	return s.append(ctx, conversationID, userID, "user", content)
}

// AppendAssistantMessage saves an assistant text message to the conversation history.
func (s *Store) AppendAssistantMessage(ctx context.Context, conversationID, userID, content string) error {
	return s.append(ctx, conversationID, userID, "assistant", content)
}

func (s *Store) append(ctx context.Context, conversationID, userID, role, content string) error {
	now := time.Now().Unix()
	query := sq.Insert("conversations").
		Columns("conversation_id", "user_id", "role", "content", "created_at").
		Values(conversationID, userID, role, content, now)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryStr, args...)
	return err
}

// RecentWindow returns the most recent limit messages of a conversation in
// chronological order.
func (s *Store) RecentWindow(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := sq.Select("role", "content", "created_at").
		From("conversations").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("id DESC").
		Limit(uint64(limit)) //nolint:gosec // limit checked above

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent window: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Rows close error can be ignored

	var window []Message
	for rows.Next() {
		var (
			msg       Message
			createdAt int64
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		window = append(window, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	// Rows come back newest-first; reverse into chronological order.
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	return window, nil
}

// DeleteOlderThan prunes messages created before the cutoff. It returns the
// number of rows deleted. Used by the retention job.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := sq.Delete("conversations").
		Where(sq.Lt{"created_at": cutoff.Unix()})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, fmt.Errorf("prune conversations: %w", err)
	}
	return res.RowsAffected()
}
