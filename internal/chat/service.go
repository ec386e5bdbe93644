package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"studyguider/internal/agent"
	"studyguider/internal/models"
	"studyguider/internal/observability"
	"studyguider/internal/session"
	"studyguider/internal/worker"
)

var (
	ErrEmptyMessage   = errors.New("`message` cannot be empty.")
	ErrEmptySessionID = errors.New("`session_id` cannot be empty.")
	// ErrNoArchive is returned by Transcript when no archive is configured.
	ErrNoArchive = errors.New("transcript archive disabled")
)

// AgentError wraps a failed agent turn; its message is what clients see.
type AgentError struct {
	Err error
}

func (e *AgentError) Error() string { return "Agent error: " + e.Err.Error() }
func (e *AgentError) Unwrap() error { return e.Err }

// Runner produces the assistant turn for a history.
type Runner interface {
	Run(ctx context.Context, history []models.Message) (*agent.Turn, error)
}

// Dispatcher runs a turn under a session key with bounded concurrency.
type Dispatcher interface {
	Do(ctx context.Context, key string, run func(context.Context) error) error
}

// Archiver keeps a durable transcript of completed turns.
type Archiver interface {
	Record(ctx context.Context, sessionID, requestID string, msgs ...models.Message) error
	Transcript(ctx context.Context, sessionID string) ([]models.Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Reply is the result of one chat turn.
type Reply struct {
	SessionID   string
	Response    string
	Invocations []models.ToolInvocation
}

// Options configures optional collaborators. Nil fields are skipped.
type Options struct {
	Dispatcher Dispatcher
	Archive    Archiver
	// RollbackOnFailure removes the user message again when the agent fails.
	RollbackOnFailure bool
}

// Service runs chat turns: it records the user message, asks the agent for a
// reply and records the reply, one turn at a time per session.
type Service struct {
	store    session.Store
	locks    *session.Locker
	runner   Runner
	dispatch Dispatcher
	archive  Archiver
	rollback bool
}

func NewService(store session.Store, runner Runner, opts Options) *Service {
	return &Service{
		store:    store,
		locks:    session.NewLocker(),
		runner:   runner,
		dispatch: opts.Dispatcher,
		archive:  opts.Archive,
		rollback: opts.RollbackOnFailure,
	}
}

// Send handles one user message for sessionID.
func (s *Service) Send(ctx context.Context, sessionID, message string) (*Reply, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrEmptySessionID
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	logger := observability.LoggerFromContext(ctx).With(zap.String("session_id", sessionID))

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("wait for session: %w", err)
	}
	defer unlock()

	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	userMsg := models.NewMessage(models.RoleUser, message)
	if err := s.store.Append(ctx, sessionID, userMsg); err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}
	history = append(history, userMsg)

	turn, err := s.run(ctx, sessionID, history)
	if err != nil {
		logger.Error("agent turn failed", zap.Error(err))
		// a rejected turn never ran, so the client may retry it as is
		if s.rollback || errors.Is(err, worker.ErrDispatcherBusy) || errors.Is(err, worker.ErrDispatcherClosed) {
			if rbErr := s.store.Truncate(ctx, sessionID, len(history)-1); rbErr != nil {
				logger.Warn("rollback user message failed", zap.Error(rbErr))
			}
		}
		return nil, &AgentError{Err: err}
	}

	assistantMsg := models.NewMessage(models.RoleAssistant, turn.Reply)
	if err := s.store.Append(ctx, sessionID, assistantMsg); err != nil {
		return nil, fmt.Errorf("record reply: %w", err)
	}
	logger.Info("chat turn completed",
		zap.Int("history_len", len(history)+1),
		zap.Int("tool_calls", len(turn.Invocations)))

	if s.archive != nil {
		reqID := observability.RequestIDFromContext(ctx)
		if err := s.archive.Record(ctx, sessionID, reqID, userMsg, assistantMsg); err != nil {
			logger.Warn("archive chat turn failed", zap.Error(err))
		}
	}

	return &Reply{
		SessionID:   sessionID,
		Response:    turn.Reply,
		Invocations: turn.Invocations,
	}, nil
}

// History returns the stored messages of sessionID.
func (s *Service) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	return s.store.History(ctx, sessionID)
}

// Transcript returns the archived messages of sessionID, which outlive
// session eviction.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]models.Message, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	return s.archive.Transcript(ctx, sessionID)
}

// Reset forgets sessionID, including its archived transcript, once any
// in-flight turn has finished.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	if s.archive != nil {
		if err := s.archive.DeleteSession(ctx, sessionID); err != nil {
			return fmt.Errorf("delete transcript: %w", err)
		}
	}
	return nil
}

func (s *Service) run(ctx context.Context, sessionID string, history []models.Message) (*agent.Turn, error) {
	if s.dispatch == nil {
		return s.runner.Run(ctx, history)
	}
	var turn *agent.Turn
	err := s.dispatch.Do(ctx, sessionID, func(ctx context.Context) error {
		var err error
		turn, err = s.runner.Run(ctx, history)
		return err
	})
	return turn, err
}
