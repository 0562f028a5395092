package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/metrics"
	"github.com/desertthunder/ytplay/internal/models"
)

// PlaybackState is the read side of the playback pipeline.
type PlaybackState interface {
	CurrentTrackID() models.TrackID
	Position() time.Duration
	HasNext() bool
}

// Status is the /status response body.
type Status struct {
	SessionID string         `json:"session_id"`
	TrackID   models.TrackID `json:"track_id,omitempty"`
	Position  string         `json:"position"`
	HasNext   bool           `json:"has_next"`
	Uptime    string         `json:"uptime"`
}

// StatusHandler reports what the session is playing.
type StatusHandler struct {
	sessionID string
	state     PlaybackState
	started   time.Time
	now       func() time.Time
}

func NewStatusHandler(sessionID string, state PlaybackState) *StatusHandler {
	return &StatusHandler{sessionID: sessionID, state: state, started: time.Now(), now: time.Now}
}

func (h *StatusHandler) Routes() []string { return []string{"/status"} }

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	body := Status{
		SessionID: h.sessionID,
		TrackID:   h.state.CurrentTrackID(),
		Position:  h.state.Position().Truncate(time.Second).String(),
		HasNext:   h.state.HasNext(),
		Uptime:    h.now().Sub(h.started).Truncate(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

type healthHandler struct{}

func (healthHandler) Routes() []string { return []string{"/healthz"} }

func (healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

type metricsHandler struct{ http.Handler }

func (metricsHandler) Routes() []string { return []string{"/metrics"} }

// NewPlaybackRouter wires the metrics, health and status handlers.
// state may be nil, in which case /status is not registered.
func NewPlaybackRouter(sessionID string, state PlaybackState, logger *log.Logger) *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recover(logger), Logging(logger))
	r.Handler(metricsHandler{metrics.Handler()})
	r.Handler(healthHandler{})
	if state != nil {
		r.Handler(NewStatusHandler(sessionID, state))
	}
	return r
}
