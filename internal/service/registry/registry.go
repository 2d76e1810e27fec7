package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Registry resolves users to the sessions they own. It keeps no state of its
// own: session existence is derived from the presence of messages.
type Registry struct {
	db *sql.DB
}

// NewRegistry builds a registry over the shared database handle.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// NewSessionID mints a fresh globally-unique session identifier.
func (r *Registry) NewSessionID() string {
	return uuid.NewString()
}

// ResolveOrAssign maps a request to a session identifier. A non-empty
// requested id passes through untouched; the store creates it lazily on first
// append. With no id supplied, the user's most-recently-used session wins
// (ties broken by highest message row id); a user with no sessions gets a
// fresh identifier and created=true.
func (r *Registry) ResolveOrAssign(ctx context.Context, userID, requestedSessionID string) (string, bool, error) {
	if requested := strings.TrimSpace(requestedSessionID); requested != "" {
		return requested, false, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", false, errors.New("user_id is required")
	}

	var sessionID string
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id FROM chat_messages WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID,
	).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.NewSessionID(), true, nil
		}
		return "", false, fmt.Errorf("resolve session: %w", err)
	}
	return sessionID, false, nil
}

// ListSessions returns every session id the user has written to, most
// recently active first, each id once. A user with no history gets an empty
// slice.
func (r *Registry) ListSessions(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id
		 FROM chat_messages
		 WHERE user_id = ?
		 GROUP BY session_id
		 ORDER BY MAX(created_at) DESC, MAX(id) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}
