package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"raggate/internal/models"
	"raggate/internal/service/history"
	"raggate/internal/service/registry"
)

// ErrUpstream marks a failure of the external response generator. The user
// message persisted before the call stays in history.
var ErrUpstream = errors.New("upstream responder failed")

// Responder is the external response generator consumed by the orchestrator.
type Responder interface {
	Generate(ctx context.Context, query string, conversation []*models.Message) (string, error)
}

// Gate bounds concurrent upstream invocations.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// TurnRequest is one inbound query.
type TurnRequest struct {
	Text       string
	UserID     string
	SessionID  string
	NewSession bool
}

// TurnResult binds the response to the session that recorded it. Created
// reports whether this turn minted a fresh session identifier.
type TurnResult struct {
	Content   string
	SessionID string
	Created   bool
}

// Orchestrator coordinates a single request/response turn against the
// message store, the session registry and the upstream responder. It holds
// no per-session state between calls.
type Orchestrator struct {
	store     *history.Store
	registry  *registry.Registry
	responder Responder
	gate      Gate
}

func New(store *history.Store, reg *registry.Registry, responder Responder, gate Gate) *Orchestrator {
	return &Orchestrator{
		store:     store,
		registry:  reg,
		responder: responder,
		gate:      gate,
	}
}

// HandleTurn persists the user message, invokes the responder and persists
// the reply. The user message is written before the upstream call, so a
// failed or timed-out call still leaves the question recorded; no rollback
// is attempted.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("text is required")
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	sessionID := strings.TrimSpace(req.SessionID)
	created := false
	switch {
	case req.NewSession:
		// An explicit new-session request never reattaches to an old
		// session, even when one exists for the user.
		sessionID = o.registry.NewSessionID()
		created = true
	case sessionID == "":
		var err error
		sessionID, created, err = o.registry.ResolveOrAssign(ctx, userID, "")
		if err != nil {
			return nil, err
		}
	}

	if _, err := o.store.Append(ctx, sessionID, userID, models.RoleUser, text); err != nil {
		return nil, err
	}

	conversation, err := o.store.History(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if o.gate != nil {
		if err := o.gate.Acquire(ctx); err != nil {
			return nil, err
		}
		defer o.gate.Release()
	}

	content, err := o.responder.Generate(ctx, text, conversation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if _, err := o.store.Append(ctx, sessionID, userID, models.RoleAssistant, content); err != nil {
		return nil, err
	}

	return &TurnResult{Content: content, SessionID: sessionID, Created: created}, nil
}
