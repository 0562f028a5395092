package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// ErrSessionClosed is returned by session operations after Close.
var ErrSessionClosed = errors.New("playback session closed")

// StreamResolver resolves and invalidates streams. [stream.Resolver] implements it.
type StreamResolver interface {
	Invalidator
	Resolve(ctx context.Context, id models.TrackID, playlistID string, policy models.QualityPolicy, metered bool) (*models.ResolvedStream, error)
}

// EventKind is a state change visible to the user.
type EventKind int

const (
	EventResolving EventKind = iota
	EventPlaying
	EventRetrying
	EventSkipped
	EventPaused
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventResolving:
		return "Resolving"
	case EventPlaying:
		return "Playing"
	case EventRetrying:
		return "Retrying"
	case EventSkipped:
		return "Skipped"
	case EventPaused:
		return "Paused"
	case EventFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event is emitted on the session's event channel.
type Event struct {
	Kind    EventKind
	TrackID models.TrackID
	// Category is set for events caused by a recovery decision.
	Category *Category
	Attempt  int
	Err      error
	At       time.Time
}

// SessionOpts configures [NewSession]. Resolver and Pipeline are required.
type SessionOpts struct {
	Resolver   StreamResolver
	Pipeline   Pipeline
	PlaylistID string
	Quality    models.QualityPolicy
	Metered    bool
	RetryUnit  time.Duration
	ClearDelay time.Duration
	// EventBuffer sizes the event channel. Events are dropped when it is full.
	EventBuffer int
	Logger      *log.Logger
}

// Session is one listening session. It owns the recovery controller and
// every resolution started through it.
type Session struct {
	ID string

	resolver   StreamResolver
	pipeline   Pipeline
	controller *Controller
	playlistID string
	quality    models.QualityPolicy
	metered    bool
	logger     *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	events chan Event
	closed bool
}

// NewSession creates a session with a fresh id.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Resolver == nil || opts.Pipeline == nil {
		return nil, fmt.Errorf("%w: session needs a resolver and a pipeline", shared.ErrInvalidConfig)
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 32
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}

	id := shared.GenerateID()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         id,
		resolver:   opts.Resolver,
		pipeline:   opts.Pipeline,
		playlistID: opts.PlaylistID,
		quality:    opts.Quality,
		metered:    opts.Metered,
		logger:     shared.WithLogger(opts.Logger, "session", shared.ShortID(id)),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan Event, opts.EventBuffer),
	}
	s.controller = NewController(ControllerOpts{
		Pipeline:    opts.Pipeline,
		Invalidator: opts.Resolver,
		RetryUnit:   opts.RetryUnit,
		ClearDelay:  opts.ClearDelay,
		OnAction:    s.onAction,
		Logger:      s.logger,
	})
	return s, nil
}

// Events delivers session events. The channel is closed by Close.
func (s *Session) Events() <-chan Event { return s.events }

// Start prepares and plays the pipeline's current track.
func (s *Session) Start(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	if err := s.pipeline.Prepare(ctx); err != nil {
		return err
	}
	return s.pipeline.Play(ctx)
}

// Stream resolves id with the session's quality settings. The call is
// canceled when either ctx or the session ends.
func (s *Session) Stream(ctx context.Context, id models.TrackID) (*models.ResolvedStream, error) {
	if s.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.emit(Event{Kind: EventResolving, TrackID: id})
	stream, err := s.resolver.Resolve(ctx, id, s.playlistID, s.quality, s.metered)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, ErrSessionClosed
		}
		return nil, err
	}
	return stream, nil
}

// OnReady is called by the pipeline when playback actually starts.
func (s *Session) OnReady() {
	s.controller.OnReady()
	s.emit(Event{Kind: EventPlaying, TrackID: s.pipeline.CurrentTrackID()})
}

// OnError is called by the pipeline when playback fails. Failures the
// controller does not recover are reported as [EventFailed].
func (s *Session) OnError(err error) {
	if s.ctx.Err() != nil {
		return
	}
	if !s.controller.ReportError(err) {
		s.logger.Warn("playback failed", "track", s.pipeline.CurrentTrackID(), "error", err)
		s.emit(Event{Kind: EventFailed, TrackID: s.pipeline.CurrentTrackID(), Err: err})
	}
}

func (s *Session) onAction(a Action) {
	category := a.Category
	e := Event{TrackID: a.TrackID, Category: &category, Attempt: a.Attempt, Err: a.Err}
	switch a.Kind {
	case ActionRetry:
		e.Kind = EventRetrying
	case ActionFailed:
		e.Kind = EventFailed
	case ActionSkip:
		e.Kind = EventSkipped
	case ActionPause:
		e.Kind = EventPaused
	}
	s.emit(e)
}

// emit never blocks.
func (s *Session) emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		s.logger.Debug("dropping session event", "kind", e.Kind)
	}
}

// Close cancels in-flight resolutions and pending recovery, then closes the
// event channel. Safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	s.controller.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
