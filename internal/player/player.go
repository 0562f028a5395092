package player

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

var (
	ErrEmptyQueue = errors.New("queue is empty")
	ErrEndOfQueue = errors.New("no next track")
	ErrNotBound   = errors.New("player has no stream source")
	ErrClosed     = errors.New("player closed")
)

// DefaultReadyAfter is how long mpv must keep running before playback counts as started.
const DefaultReadyAfter = 3 * time.Second

// Source resolves the stream for a track.
type Source interface {
	Stream(ctx context.Context, id models.TrackID) (*models.ResolvedStream, error)
}

// Listener receives playback state changes.
type Listener interface {
	OnReady()
	OnError(err error)
}

// Opts configures [New].
type Opts struct {
	Queue      []models.TrackID
	Start      Starter
	Probe      Prober
	ReadyAfter time.Duration
	Now        func() time.Time
	Logger     *log.Logger
}

// Player plays a queue of tracks one process at a time.
type Player struct {
	start      Starter
	probe      Prober
	readyAfter time.Duration
	now        func() time.Time
	logger     *log.Logger

	mu       sync.Mutex
	source   Source
	listener Listener
	queue    []models.TrackID
	index    int
	stream   *models.ResolvedStream
	proc     Process
	gen      int
	offset   time.Duration
	started  time.Time
	playing  bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	once   sync.Once
}

// New creates a player. It must be bound to a source before Prepare.
func New(opts Opts) *Player {
	if opts.Start == nil {
		opts.Start = MPVStarter("")
	}
	if opts.Probe == nil {
		opts.Probe = HTTPProber(nil, "")
	}
	if opts.ReadyAfter <= 0 {
		opts.ReadyAfter = DefaultReadyAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		start:      opts.Start,
		probe:      opts.Probe,
		readyAfter: opts.ReadyAfter,
		now:        opts.Now,
		logger:     opts.Logger,
		queue:      append([]models.TrackID(nil), opts.Queue...),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Bind sets where streams come from and where state changes go.
func (p *Player) Bind(source Source, listener Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source, p.listener = source, listener
}

// Done is closed when the queue finishes or the player is closed.
func (p *Player) Done() <-chan struct{} { return p.done }

func (p *Player) CurrentTrackID() models.TrackID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *Player) currentLocked() models.TrackID {
	if p.index >= len(p.queue) {
		return ""
	}
	return p.queue[p.index]
}

// Position is the playback offset of the current track.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	if !p.playing {
		return p.offset
	}
	return p.offset + p.now().Sub(p.started)
}

func (p *Player) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index < len(p.queue)-1
}

// SeekTo stops playback and moves the offset. Play resumes from it.
func (p *Player) SeekTo(_ context.Context, pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.offset = max(pos, 0)
	return nil
}

// SkipToNext stops playback and moves to the start of the next track.
func (p *Player) SkipToNext(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index >= len(p.queue)-1 {
		return ErrEndOfQueue
	}
	p.stopLocked()
	p.index++
	p.offset = 0
	p.stream = nil
	return nil
}

// Prepare resolves the current track's stream.
func (p *Player) Prepare(ctx context.Context) error {
	p.mu.Lock()
	source, id := p.source, p.currentLocked()
	closed := p.closed
	p.mu.Unlock()

	switch {
	case closed:
		return ErrClosed
	case source == nil:
		return ErrNotBound
	case id == "":
		return ErrEmptyQueue
	}

	s, err := source.Stream(ctx, id)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", id, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentLocked() == id {
		p.stream = s
	}
	return nil
}

// Play starts the prepared stream from the current offset.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.stream == nil {
		return fmt.Errorf("play %s: stream not prepared", p.currentLocked())
	}
	if p.playing {
		return nil
	}

	proc, err := p.start(ctx, p.stream.URL, p.offset)
	if err != nil {
		return err
	}

	p.gen++
	p.proc = proc
	p.playing = true
	p.started = p.now()
	p.logger.Info("playing", "track", p.stream.TrackID, "profile", p.stream.Profile, "offset", p.offset)

	p.wg.Add(1)
	go p.watch(p.gen, proc, *p.stream)
	return nil
}

// Pause stops playback and keeps the position.
func (p *Player) Pause(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// Close stops playback and waits for the process watcher to exit.
func (p *Player) Close() error {
	p.cancel()

	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()

	p.wg.Wait()
	p.finish()
	return nil
}

// stopLocked kills the running process. Its exit is ignored by watch.
func (p *Player) stopLocked() {
	if !p.playing {
		return
	}
	p.offset = p.positionLocked()
	p.playing = false
	p.gen++
	if err := p.proc.Kill(); err != nil {
		p.logger.Debug("failed to kill player process", "error", err)
	}
	p.proc = nil
}

func (p *Player) finish() {
	p.once.Do(func() { close(p.done) })
}

// watch waits for one process. A process that outlives readyAfter is
// reported ready; an error exit is probed and reported; a clean exit moves
// to the next track.
func (p *Player) watch(gen int, proc Process, s models.ResolvedStream) {
	defer p.wg.Done()

	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	ready := time.NewTimer(p.readyAfter)
	defer ready.Stop()

	var err error
	select {
	case <-ready.C:
		if listener := p.activeListener(gen); listener != nil {
			listener.OnReady()
		}
		err = <-exited
	case err = <-exited:
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.offset = p.positionLocked()
	p.playing = false
	p.proc = nil
	listener := p.listener
	p.mu.Unlock()

	if err != nil {
		failure := p.explain(s, err)
		p.logger.Warn("playback failed", "track", s.TrackID, "error", failure)
		if listener != nil {
			listener.OnError(failure)
		}
		return
	}

	p.advance()
}

func (p *Player) activeListener(gen int) Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return nil
	}
	return p.listener
}

// explain turns an exit error into a typed failure when the URL probe can tell why.
func (p *Player) explain(s models.ResolvedStream, exitErr error) error {
	if err := p.probe(p.ctx, s.URL); err != nil {
		return fmt.Errorf("%s: %w", s.TrackID, err)
	}
	return fmt.Errorf("%s: player exited: %w", s.TrackID, exitErr)
}

func (p *Player) advance() {
	if err := p.SkipToNext(p.ctx); err != nil {
		p.logger.Info("queue finished")
		p.finish()
		return
	}

	err := p.Prepare(p.ctx)
	if err == nil {
		err = p.Play(p.ctx)
	}
	if err != nil && p.ctx.Err() == nil {
		p.mu.Lock()
		listener := p.listener
		p.mu.Unlock()
		if listener != nil {
			listener.OnError(err)
		}
	}
}
