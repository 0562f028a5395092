package playback

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/metrics"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

const (
	// MaxRetryPerTrack is the number of failures that marks a track permanently failed.
	MaxRetryPerTrack = 3
	// MaxConsecutiveErrors bounds automatic skips before playback is paused.
	MaxConsecutiveErrors = 5
	// DefaultRetryUnit is the base backoff delay.
	DefaultRetryUnit = time.Second

	skipPenalty = 2
)

// Pipeline is the audio pipeline the controller drives.
type Pipeline interface {
	CurrentTrackID() models.TrackID
	Position() time.Duration
	HasNext() bool
	SeekTo(ctx context.Context, pos time.Duration) error
	SkipToNext(ctx context.Context) error
	Prepare(ctx context.Context) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
}

// Invalidator drops cached resolution data for a track.
type Invalidator interface {
	Invalidate(ctx context.Context, id models.TrackID) error
}

// ActionKind is what the controller decided to do about a failure.
type ActionKind int

const (
	ActionRetry ActionKind = iota
	ActionFailed
	ActionSkip
	ActionPause
)

func (k ActionKind) String() string {
	switch k {
	case ActionRetry:
		return "retry"
	case ActionFailed:
		return "failed"
	case ActionSkip:
		return "skip"
	case ActionPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Action describes one recovery decision.
type Action struct {
	Kind     ActionKind
	TrackID  models.TrackID
	Category Category
	Attempt  int
	Delay    time.Duration
	Err      error
}

// ControllerOpts configures [NewController]. Pipeline is required.
type ControllerOpts struct {
	Pipeline    Pipeline
	Invalidator Invalidator
	RetryUnit   time.Duration
	ClearDelay  time.Duration
	// OnAction is called after every decision, outside the controller's lock. It must not block.
	OnAction func(Action)
	Logger   *log.Logger
}

// Controller owns the retry counters of one playback session. All pipeline
// calls happen on a background goroutine; only one is pending at a time and a
// new failure cancels the pending one.
type Controller struct {
	pipeline    Pipeline
	invalidator Invalidator
	unit        time.Duration
	onAction    func(Action)
	logger      *log.Logger
	failed      *FailedTrackSet

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	attempts    map[models.TrackID]int
	consecutive int
	pending     *pendingAction
	closed      bool
}

type pendingAction struct {
	cancel context.CancelFunc
}

// NewController creates a controller bound to opts.Pipeline.
func NewController(opts ControllerOpts) *Controller {
	if opts.RetryUnit <= 0 {
		opts.RetryUnit = DefaultRetryUnit
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	if opts.OnAction == nil {
		opts.OnAction = func(Action) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		pipeline:    opts.Pipeline,
		invalidator: opts.Invalidator,
		unit:        opts.RetryUnit,
		onAction:    opts.OnAction,
		logger:      opts.Logger,
		failed:      NewFailedTrackSet(opts.ClearDelay),
		ctx:         ctx,
		cancel:      cancel,
		attempts:    make(map[models.TrackID]int),
	}
}

// ReportError handles a pipeline failure for the current track. It returns
// false when the failure is not recoverable here: the track is not a remote
// track or the controller is closed.
func (c *Controller) ReportError(err error) bool {
	id := c.pipeline.CurrentTrackID()
	if !id.IsRemote() {
		c.logger.Debug("not recovering local track", "track", id, "error", err)
		return false
	}

	category := Classify(err)
	hasNext := c.pipeline.HasNext()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}

	var actions []Action
	n := c.attempts[id] + 1
	if n >= MaxRetryPerTrack || c.failed.Contains(id) {
		delete(c.attempts, id)
		c.failed.Add(id)
		actions = append(actions, Action{Kind: ActionFailed, TrackID: id, Category: category, Attempt: n, Err: err})
		actions = append(actions, c.skipOrStop(id, category, hasNext))
	} else {
		c.attempts[id] = n
		delay := time.Duration(category.retryUnits()) * c.unit
		c.schedule(delay, id, func(ctx context.Context) { c.retry(ctx, id, category) })
		actions = append(actions, Action{Kind: ActionRetry, TrackID: id, Category: category, Attempt: n, Delay: delay, Err: err})
	}
	c.mu.Unlock()

	for _, a := range actions {
		c.logger.Info("playback recovery", "track", a.TrackID, "category", a.Category, "action", a.Kind, "attempt", a.Attempt)
		metrics.RecordRecovery(a.Category.String(), a.Kind.String())
		c.onAction(a)
	}
	return true
}

// skipOrStop must be called with c.mu held.
func (c *Controller) skipOrStop(id models.TrackID, category Category, hasNext bool) Action {
	c.consecutive += skipPenalty
	if c.consecutive <= MaxConsecutiveErrors && hasNext {
		metrics.SetConsecutiveFailures(c.consecutive)
		c.schedule(0, "", c.skip)
		return Action{Kind: ActionSkip, TrackID: id, Category: category}
	}

	c.consecutive = 0
	metrics.SetConsecutiveFailures(0)
	c.schedule(0, "", c.pause)
	return Action{Kind: ActionPause, TrackID: id, Category: category}
}

// OnReady resets the failure streak and the current track's retry count.
func (c *Controller) OnReady() {
	id := c.pipeline.CurrentTrackID()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutive = 0
	delete(c.attempts, id)
	metrics.SetConsecutiveFailures(0)
}

// Attempts returns the retry count recorded for id.
func (c *Controller) Attempts(id models.TrackID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[id]
}

// ConsecutiveFailures returns the session-wide failure streak.
func (c *Controller) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutive
}

// Failed reports whether id is permanently failed.
func (c *Controller) Failed(id models.TrackID) bool {
	return c.failed.Contains(id)
}

// Close cancels the pending action and waits for it to return.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()

	c.cancel()
	c.failed.Stop()
	c.wg.Wait()
}

// schedule replaces the pending action. When invalidate is set, cached data
// for that track is dropped before the delay starts. Must be called with c.mu held.
func (c *Controller) schedule(delay time.Duration, invalidate models.TrackID, fn func(ctx context.Context)) {
	if c.pending != nil {
		c.pending.cancel()
	}

	ctx, cancel := context.WithCancel(c.ctx)
	p := &pendingAction{cancel: cancel}
	c.pending = p

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		if invalidate != "" && c.invalidator != nil {
			if err := c.invalidator.Invalidate(c.ctx, invalidate); err != nil {
				c.logger.Warn("failed to invalidate cached stream", "track", invalidate, "error", err)
			}
		}

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		fn(ctx)

		c.mu.Lock()
		if c.pending == p {
			c.pending = nil
		}
		c.mu.Unlock()
	}()
}

func (c *Controller) retry(ctx context.Context, id models.TrackID, category Category) {
	if c.pipeline.CurrentTrackID() != id {
		return
	}

	pos := c.pipeline.Position()
	if category == CategoryRangeNotSatisfiable {
		pos = 0
	}

	if err := c.pipeline.SeekTo(ctx, pos); err != nil {
		c.logger.Warn("retry seek failed", "track", id, "error", err)
		return
	}
	c.resume(ctx, id)
}

func (c *Controller) skip(ctx context.Context) {
	if err := c.pipeline.SkipToNext(ctx); err != nil {
		c.logger.Warn("skip failed", "error", err)
		return
	}
	c.resume(ctx, c.pipeline.CurrentTrackID())
}

func (c *Controller) pause(ctx context.Context) {
	if err := c.pipeline.Pause(ctx); err != nil {
		c.logger.Warn("pause failed", "error", err)
	}
}

// resume restarts the pipeline. A failure to restart counts as a new error for the track.
func (c *Controller) resume(ctx context.Context, id models.TrackID) {
	err := c.pipeline.Prepare(ctx)
	if err == nil {
		err = c.pipeline.Play(ctx)
	}
	if err == nil || ctx.Err() != nil {
		return
	}

	c.logger.Warn("resume failed", "track", id, "error", err)
	c.ReportError(err)
}
