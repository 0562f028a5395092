package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/ytplay/internal/metrics"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

type fakeState struct {
	track models.TrackID
	pos   time.Duration
	next  bool
}

func (f fakeState) CurrentTrackID() models.TrackID { return f.track }
func (f fakeState) Position() time.Duration        { return f.pos }
func (f fakeState) HasNext() bool                  { return f.next }

func TestBasicRouter(t *testing.T) {
	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("outer"), mark("inner"))
		r.Handle(http.MethodGet, "/x", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			order = append(order, "handler")
		}))

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

		if got := strings.Join(order, ","); got != "outer,inner,handler" {
			t.Errorf("unexpected order %s", got)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/x", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", w.Code)
		}
		if w.Header().Get("Allow") != http.MethodGet {
			t.Errorf("expected Allow header, got %q", w.Header().Get("Allow"))
		}
	})

	t.Run("recover", func(t *testing.T) {
		r := NewBasicRouter()
		r.Use(Recover(shared.NopLogger()))
		r.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
	})
}

func TestPlaybackRouter(t *testing.T) {
	state := fakeState{track: "abc123", pos: 83*time.Second + 400*time.Millisecond, next: true}
	r := NewPlaybackRouter("session-1", state, shared.NopLogger())

	t.Run("healthz", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
			t.Errorf("unexpected response %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("status", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

		var got Status
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.SessionID != "session-1" || got.TrackID != "abc123" || !got.HasNext {
			t.Errorf("unexpected status %+v", got)
		}
		if got.Position != "1m23s" {
			t.Errorf("expected truncated position, got %s", got.Position)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		metrics.RecordProbe(true)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		if !strings.Contains(w.Body.String(), "ytplay_url_probes_total") {
			t.Error("expected probe counter in metrics output")
		}
	})

	t.Run("no state skips status", func(t *testing.T) {
		bare := NewPlaybackRouter("", nil, shared.NopLogger())

		w := httptest.NewRecorder()
		bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}
