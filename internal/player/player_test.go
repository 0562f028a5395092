package player

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errKilled = errors.New("signal: killed")

type fakeProcess struct {
	url   string
	start time.Duration
	exit  chan error
	once  sync.Once
}

func (f *fakeProcess) finish(err error) { f.once.Do(func() { f.exit <- err }) }
func (f *fakeProcess) Wait() error      { return <-f.exit }
func (f *fakeProcess) Kill() error      { f.finish(errKilled); return nil }

type fakeStarter struct {
	started chan *fakeProcess
	err     error
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{started: make(chan *fakeProcess, 8)}
}

func (f *fakeStarter) Start(_ context.Context, url string, start time.Duration) (Process, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &fakeProcess{url: url, start: start, exit: make(chan error, 1)}
	f.started <- p
	return p, nil
}

type fakeSource struct {
	err error
}

func (f *fakeSource) Stream(_ context.Context, id models.TrackID) (*models.ResolvedStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ResolvedStream{TrackID: id, URL: "https://media.example.com/" + string(id), Profile: "WEB_REMIX"}, nil
}

type fakeListener struct {
	ready chan struct{}
	errs  chan error
}

func newFakeListener() *fakeListener {
	return &fakeListener{ready: make(chan struct{}, 8), errs: make(chan error, 8)}
}

func (f *fakeListener) OnReady()          { f.ready <- struct{}{} }
func (f *fakeListener) OnError(err error) { f.errs <- err }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	player   *Player
	starter  *fakeStarter
	source   *fakeSource
	listener *fakeListener
	probed   chan string
}

func newHarness(t *testing.T, queue ...models.TrackID) *harness {
	t.Helper()
	h := &harness{
		starter:  newFakeStarter(),
		source:   &fakeSource{},
		listener: newFakeListener(),
		probed:   make(chan string, 8),
	}
	h.player = New(Opts{
		Queue:      queue,
		Start:      h.starter.Start,
		ReadyAfter: 20 * time.Millisecond,
		Probe: func(_ context.Context, url string) error {
			h.probed <- url
			return &playback.HTTPStatusError{StatusCode: http.StatusForbidden, URL: url}
		},
	})
	h.player.Bind(h.source, h.listener)
	t.Cleanup(func() { h.player.Close() })
	return h
}

func (h *harness) play(t *testing.T) *fakeProcess {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.player.Prepare(ctx))
	require.NoError(t, h.player.Play(ctx))
	return h.nextProcess(t)
}

func (h *harness) nextProcess(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case p := <-h.starter.started:
		return p
	case <-time.After(time.Second):
		t.Fatal("expected a process to start")
		return nil
	}
}

func TestPlayer(t *testing.T) {
	t.Run("play requires a prepared stream", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa")
		assert.Error(t, h.player.Play(context.Background()))
	})

	t.Run("prepare without binding", func(t *testing.T) {
		p := New(Opts{Queue: []models.TrackID{"aaaaaaaaaaa"}, Start: newFakeStarter().Start})
		defer p.Close()
		assert.ErrorIs(t, p.Prepare(context.Background()), ErrNotBound)
	})

	t.Run("empty queue", func(t *testing.T) {
		h := newHarness(t)
		assert.ErrorIs(t, h.player.Prepare(context.Background()), ErrEmptyQueue)
		assert.False(t, h.player.HasNext())
		assert.Empty(t, h.player.CurrentTrackID())
	})

	t.Run("prepare surfaces resolution errors", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa")
		h.source.err = errors.New("no url")
		assert.ErrorContains(t, h.player.Prepare(context.Background()), "no url")
	})

	t.Run("ready after the process survives", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa")
		proc := h.play(t)
		assert.Equal(t, "https://media.example.com/aaaaaaaaaaa", proc.url)

		select {
		case <-h.listener.ready:
		case <-time.After(time.Second):
			t.Fatal("expected OnReady")
		}
	})

	t.Run("error exit is probed and reported", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa")
		proc := h.play(t)
		proc.finish(errors.New("exit status 2"))

		select {
		case err := <-h.listener.errs:
			var statusErr *playback.HTTPStatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
			assert.Equal(t, playback.CategoryExpiredURL, playback.Classify(err))
		case <-time.After(time.Second):
			t.Fatal("expected OnError")
		}
		assert.Equal(t, "https://media.example.com/aaaaaaaaaaa", <-h.probed)
	})

	t.Run("healthy probe keeps the exit error", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa")
		h.player.probe = func(context.Context, string) error { return nil }
		proc := h.play(t)
		proc.finish(errors.New("exit status 2"))

		err := <-h.listener.errs
		assert.ErrorContains(t, err, "player exited: exit status 2")
		assert.Equal(t, playback.CategoryGeneric, playback.Classify(err))
	})

	t.Run("clean exit advances the queue", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa", "bbbbbbbbbbb")
		first := h.play(t)
		first.finish(nil)

		second := h.nextProcess(t)
		assert.Equal(t, "https://media.example.com/bbbbbbbbbbb", second.url)
		assert.Equal(t, models.TrackID("bbbbbbbbbbb"), h.player.CurrentTrackID())

		second.finish(nil)
		select {
		case <-h.player.Done():
		case <-time.After(time.Second):
			t.Fatal("expected queue to finish")
		}
	})

	t.Run("seek restarts from the offset without reporting", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa")
		ctx := context.Background()
		h.play(t)

		require.NoError(t, h.player.SeekTo(ctx, 42*time.Second))
		assert.Equal(t, 42*time.Second, h.player.Position())
		require.NoError(t, h.player.Play(ctx))

		restarted := h.nextProcess(t)
		assert.Equal(t, 42*time.Second, restarted.start)
		select {
		case err := <-h.listener.errs:
			t.Fatalf("unexpected error: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("skip at the end of the queue", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa", "bbbbbbbbbbb")
		ctx := context.Background()

		assert.True(t, h.player.HasNext())
		require.NoError(t, h.player.SkipToNext(ctx))
		assert.False(t, h.player.HasNext())
		assert.ErrorIs(t, h.player.SkipToNext(ctx), ErrEndOfQueue)
	})

	t.Run("start failure", func(t *testing.T) {
		h := newHarness(t, "aaaaaaaaaaa")
		h.starter.err = errors.New("mpv not found")
		require.NoError(t, h.player.Prepare(context.Background()))
		assert.ErrorContains(t, h.player.Play(context.Background()), "mpv not found")
	})
}

func TestPlayerPosition(t *testing.T) {
	newPlayer := func(t *testing.T, clock *fakeClock) (*Player, *fakeStarter, *fakeListener) {
		starter := newFakeStarter()
		listener := newFakeListener()
		p := New(Opts{
			Queue:      []models.TrackID{"aaaaaaaaaaa"},
			Start:      starter.Start,
			Probe:      func(context.Context, string) error { return nil },
			ReadyAfter: time.Hour,
			Now:        clock.Now,
		})
		p.Bind(&fakeSource{}, listener)
		t.Cleanup(func() { p.Close() })
		return p, starter, listener
	}

	t.Run("pause keeps the elapsed time", func(t *testing.T) {
		clock := newFakeClock()
		p, _, _ := newPlayer(t, clock)

		ctx := context.Background()
		require.NoError(t, p.Prepare(ctx))
		require.NoError(t, p.Play(ctx))

		clock.Advance(10 * time.Second)
		assert.Equal(t, 10*time.Second, p.Position())

		require.NoError(t, p.Pause(ctx))
		clock.Advance(time.Minute)
		assert.Equal(t, 10*time.Second, p.Position())
	})

	t.Run("error exit keeps the elapsed time", func(t *testing.T) {
		clock := newFakeClock()
		p, starter, listener := newPlayer(t, clock)

		ctx := context.Background()
		require.NoError(t, p.SeekTo(ctx, 5*time.Second))
		require.NoError(t, p.Prepare(ctx))
		require.NoError(t, p.Play(ctx))
		proc := <-starter.started

		clock.Advance(90 * time.Second)
		assert.Equal(t, 95*time.Second, p.Position())

		proc.finish(errors.New("exit status 2"))
		select {
		case <-listener.errs:
		case <-time.After(time.Second):
			t.Fatal("expected OnError")
		}

		clock.Advance(time.Minute)
		assert.Equal(t, 95*time.Second, p.Position())
	})
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, id models.TrackID, _ string, _ models.QualityPolicy, _ bool) (*models.ResolvedStream, error) {
	return &models.ResolvedStream{TrackID: id, URL: "https://media.example.com/" + string(id), Profile: "WEB_REMIX"}, nil
}

func (fakeResolver) Invalidate(context.Context, models.TrackID) error { return nil }

func TestPlayerRecovery(t *testing.T) {
	clock := newFakeClock()
	starter := newFakeStarter()

	var mu sync.Mutex
	status := http.StatusForbidden
	setStatus := func(code int) {
		mu.Lock()
		defer mu.Unlock()
		status = code
	}

	p := New(Opts{
		Queue: []models.TrackID{"aaaaaaaaaaa", "bbbbbbbbbbb"},
		Start: starter.Start,
		Probe: func(_ context.Context, url string) error {
			mu.Lock()
			defer mu.Unlock()
			return &playback.HTTPStatusError{StatusCode: status, URL: url}
		},
		ReadyAfter: time.Hour,
		Now:        clock.Now,
	})
	defer p.Close()

	session, err := playback.NewSession(playback.SessionOpts{
		Resolver:  fakeResolver{},
		Pipeline:  p,
		RetryUnit: time.Millisecond,
	})
	require.NoError(t, err)
	defer session.Close()
	p.Bind(session, session)

	next := func() *fakeProcess {
		t.Helper()
		select {
		case proc := <-starter.started:
			return proc
		case <-time.After(time.Second):
			t.Fatal("expected a process to start")
			return nil
		}
	}

	require.NoError(t, session.Start(context.Background()))
	first := next()
	assert.Equal(t, time.Duration(0), first.start)

	clock.Advance(90 * time.Second)
	first.finish(errors.New("exit status 2"))

	resumed := next()
	assert.Equal(t, 90*time.Second, resumed.start, "expired url resumes where playback stopped")
	assert.Equal(t, "https://media.example.com/aaaaaaaaaaa", resumed.url)

	setStatus(http.StatusRequestedRangeNotSatisfiable)
	clock.Advance(30 * time.Second)
	resumed.finish(errors.New("exit status 2"))

	restarted := next()
	assert.Equal(t, time.Duration(0), restarted.start, "unsatisfiable range restarts the track")
	assert.Equal(t, models.TrackID("aaaaaaaaaaa"), p.CurrentTrackID())
}

func TestPlayerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &harness{starter: newFakeStarter(), listener: newFakeListener()}
	p := New(Opts{Queue: []models.TrackID{"aaaaaaaaaaa"}, Start: h.starter.Start, ReadyAfter: time.Hour})
	p.Bind(&fakeSource{}, h.listener)

	ctx := context.Background()
	require.NoError(t, p.Prepare(ctx))
	require.NoError(t, p.Play(ctx))

	require.NoError(t, p.Close())
	<-p.Done()
	assert.ErrorIs(t, p.Play(ctx), ErrClosed)
}

func TestHTTPProber(t *testing.T) {
	t.Run("status errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		}))
		defer srv.Close()

		err := HTTPProber(srv.Client(), "test-agent")(context.Background(), srv.URL)
		assert.Equal(t, playback.CategoryRangeNotSatisfiable, playback.Classify(err))
	})

	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPartialContent)
		}))
		defer srv.Close()

		assert.NoError(t, HTTPProber(srv.Client(), "")(context.Background(), srv.URL))
	})

	t.Run("refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := HTTPProber(nil, "")(context.Background(), url)
		assert.Equal(t, playback.CategoryNetwork, playback.Classify(err))
	})
}
