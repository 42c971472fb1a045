package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/dialoggraph/action"
	"github.com/dshills/dialoggraph/extract"
	"github.com/dshills/dialoggraph/graph"
	"github.com/dshills/dialoggraph/graph/session"
	"github.com/dshills/dialoggraph/graph/store"
)

// Defaults used by NewService.
const (
	DefaultExtractTimeout = 20 * time.Second
	DefaultActionTimeout  = 30 * time.Second
	DefaultMaxSteps       = 32
)

var (
	// ErrInvalidTurn is returned for turns without a thread ID or text.
	ErrInvalidTurn = errors.New("invalid turn")

	// ErrStoreUnavailable is returned when the checkpoint store (or the
	// distributed lock guarding it) fails. Nothing was persisted; the turn
	// can be retried.
	ErrStoreUnavailable = errors.New("checkpoint store unavailable")

	// ErrConcurrentTurn is returned when another turn for the same thread
	// was saved first. Nothing was persisted; the turn can be retried.
	ErrConcurrentTurn = errors.New("concurrent turn for thread")
)

// Turn is one inbound user message.
type Turn struct {
	ThreadID string
	Text     string

	// IsResume is the client's claim that the thread is waiting for input.
	// The stored cursor is authoritative; a mismatch is only logged.
	IsResume bool
}

// Reply is the assistant's answer to a turn.
type Reply struct {
	// Message is the last assistant message produced by the turn.
	Message string `json:"message"`

	// Result is set when the turn finished a task.
	Result *action.Result `json:"result,omitempty"`

	// Done reports whether the task ended with this turn.
	Done bool `json:"done"`

	// Cursor is the node the thread is waiting at, empty when Done.
	Cursor string `json:"-"`
}

// Service handles turns: it loads a thread's checkpoint, runs the workflow
// from the stored cursor and saves the result, one turn per thread at a
// time.
//
// Example:
//
//	svc, err := dialogue.NewService(store.NewMemStore[dialogue.State](), extractor, actions)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reply, err := svc.HandleTurn(ctx, dialogue.Turn{ThreadID: "T1", Text: "I want an invoice"})
type Service struct {
	engine  *graph.Engine[State, Update]
	store   store.Store[State]
	locks   *session.Manager
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	prompter       Prompter
	logger         *slog.Logger
	metrics        *Metrics
	locks          *session.Manager
	extractTimeout time.Duration
	actionTimeout  time.Duration
	engineOpts     []graph.Option
}

// WithPrompter replaces EnglishPrompter.
func WithPrompter(p Prompter) Option {
	return func(c *serviceConfig) {
		c.prompter = p
	}
}

// WithLogger sets the logger for the service, its nodes and the engine.
func WithLogger(l *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = l
	}
}

// WithMetrics enables dialogue metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithSessionManager sets the per-thread lock manager, for example one
// backed by a distributed locker.
func WithSessionManager(m *session.Manager) Option {
	return func(c *serviceConfig) {
		c.locks = m
	}
}

// WithExtractTimeout bounds each extraction call. Zero disables the bound.
func WithExtractTimeout(d time.Duration) Option {
	return func(c *serviceConfig) {
		c.extractTimeout = d
	}
}

// WithActionTimeout bounds each action node. Zero disables the bound.
func WithActionTimeout(d time.Duration) Option {
	return func(c *serviceConfig) {
		c.actionTimeout = d
	}
}

// WithEngineOptions passes options to graph.New, after the service's own
// defaults.
func WithEngineOptions(opts ...graph.Option) Option {
	return func(c *serviceConfig) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// NewService builds the workflow and validates it.
func NewService(st store.Store[State], ex extract.Extractor, actions action.Handler, opts ...Option) (*Service, error) {
	if st == nil || ex == nil || actions == nil {
		return nil, errors.New("dialogue: store, extractor and action handler are required")
	}

	cfg := serviceConfig{
		prompter:       EnglishPrompter{},
		extractTimeout: DefaultExtractTimeout,
		actionTimeout:  DefaultActionTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.locks == nil {
		cfg.locks = session.NewManager(session.WithLogger(cfg.logger))
	}

	n := &nodes{
		extractor:      ex,
		actions:        actions,
		prompter:       cfg.prompter,
		logger:         cfg.logger,
		metrics:        cfg.metrics,
		extractTimeout: cfg.extractTimeout,
	}

	engineOpts := append([]graph.Option{
		graph.WithMaxSteps(DefaultMaxSteps),
		graph.WithLogger(cfg.logger),
	}, cfg.engineOpts...)
	engine, err := graph.New(newGraph(n, cfg.actionTimeout), Reduce, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("dialogue: build workflow: %w", err)
	}

	return &Service{
		engine:  engine,
		store:   st,
		locks:   cfg.locks,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}, nil
}

// Graph returns the validated workflow graph.
func (s *Service) Graph() graph.Graph[State, Update] {
	return s.engine.Graph()
}

// HandleTurn runs one turn for t.ThreadID.
//
// A thread without a cursor starts a new task: intent, slots and the last
// result are cleared, the message is appended and the workflow runs from
// the classifier. A thread with a cursor resumes there and the waiting node
// consumes the message.
//
// Returns ErrInvalidTurn for bad input, ErrStoreUnavailable or
// ErrConcurrentTurn (both retryable) for persistence failures, and ctx.Err()
// when the caller gives up. In every error case nothing is persisted.
func (s *Service) HandleTurn(ctx context.Context, t Turn) (Reply, error) {
	text := strings.TrimSpace(t.Text)
	if err := store.ValidateThreadID(t.ThreadID); err != nil {
		return Reply{}, fmt.Errorf("%w: %w", ErrInvalidTurn, err)
	}
	if text == "" {
		return Reply{}, fmt.Errorf("%w: message must not be empty", ErrInvalidTurn)
	}

	started := time.Now()
	var (
		reply  Reply
		runErr error
	)
	lockErr := s.locks.WithLock(ctx, t.ThreadID, func(ctx context.Context) error {
		reply, runErr = s.runTurn(ctx, t.ThreadID, text, t.IsResume)
		return runErr
	})

	err := runErr
	if err == nil && lockErr != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, lockErr)
		}
	}

	outcome := "suspended"
	switch {
	case err != nil:
		outcome = "error"
	case reply.Done:
		outcome = "terminal"
	}
	s.metrics.observeTurn(outcome, time.Since(started))

	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (s *Service) runTurn(ctx context.Context, threadID, text string, isResume bool) (Reply, error) {
	cp, err := s.store.Load(ctx, threadID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		cp = store.Checkpoint[State]{ThreadID: threadID}
	case err != nil:
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		return Reply{}, fmt.Errorf("%w: load %s: %w", ErrStoreUnavailable, threadID, err)
	}
	cp.ThreadID = threadID
	cp.State.ThreadID = threadID

	if cp.Cursor != "" && !s.engine.Graph().Has(cp.Cursor) {
		s.logger.Warn("stored cursor is not a workflow node, starting a new task",
			"thread_id", threadID,
			"cursor", cp.Cursor,
		)
		cp.Cursor = ""
	}

	state := cp.State
	if cp.Cursor == "" {
		if isResume {
			s.logger.Info("resume requested but no task is waiting, starting a new task", "thread_id", threadID)
		}
		state = Reduce(state, Update{
			ResetTask: true,
			Append:    []Message{{Role: RoleUser, Content: text}},
		})
	} else {
		state.Input = text
	}

	before := len(state.Messages)
	out, err := s.engine.Run(ctx, threadID, cp.Cursor, state)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		return Reply{}, fmt.Errorf("dialogue: run thread %s: %w", threadID, err)
	}

	cp.Cursor = out.Cursor
	cp.State = out.State
	if _, err := s.store.Save(ctx, cp); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return Reply{}, fmt.Errorf("%w: %s: %w", ErrConcurrentTurn, threadID, err)
		}
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		return Reply{}, fmt.Errorf("%w: save %s: %w", ErrStoreUnavailable, threadID, err)
	}

	s.logger.Debug("turn handled",
		"thread_id", threadID,
		"path", out.Path,
		"status", out.Status,
		"cursor", out.Cursor,
	)
	return buildReply(out, before), nil
}

// buildReply picks the last assistant message the run produced.
func buildReply(out graph.Outcome[State], before int) Reply {
	reply := Reply{Cursor: out.Cursor, Done: out.Status == graph.StatusTerminal}
	msgs := out.State.Messages
	for i := len(msgs) - 1; i >= before && i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			reply.Message = msgs[i].Content
			break
		}
	}
	if reply.Done {
		reply.Result = out.State.Result
	}
	return reply
}
