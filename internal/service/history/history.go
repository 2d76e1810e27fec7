package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"raggate/internal/models"
)

// Store is the append-only log of chat turns keyed by (session, user).
type Store struct {
	db *sql.DB
}

// NewStore builds a message store over the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append persists one immutable message with a server-assigned timestamp.
// The write is a single INSERT: it either lands durably or the call fails.
func (s *Store) Append(ctx context.Context, sessionID, userID string, role models.Role, content string) (*models.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session_id is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	if role != models.RoleUser && role != models.RoleAssistant {
		return nil, fmt.Errorf("invalid role: %s", role)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("content cannot be empty")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, userID, role, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &models.Message{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// History returns all messages for the (session, user) pair in ascending
// timestamp order, ties broken by insertion order. An unknown pair yields an
// empty slice, not an error.
func (s *Store) History(ctx context.Context, sessionID, userID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, role, content, created_at
		 FROM chat_messages
		 WHERE session_id = ? AND user_id = ?
		 ORDER BY created_at ASC, id ASC`,
		sessionID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
