// package services defines the metadata API contract used by the resolver
package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// PlayerService fetches playback descriptors for a client profile.
type PlayerService interface {
	// Player issues one metadata call. It never retries; fallback across profiles is the caller's job.
	Player(ctx context.Context, req PlayerRequest) (*models.PlaybackDescriptor, error)

	// Authenticated reports whether requests carry session credentials.
	Authenticated() bool
}

// SignatureTimestampSource provides the player's current signature timestamp.
type SignatureTimestampSource interface {
	SignatureTimestamp(ctx context.Context) (int, error)
	// ForceRefresh drops the memoized value so the next call re-fetches it.
	ForceRefresh()
}

// PlayerRequest is the input of [PlayerService.Player].
type PlayerRequest struct {
	TrackID            models.TrackID
	PlaylistID         string
	Profile            models.ClientProfile
	SignatureTimestamp *int
	OriginToken        string
}

// APIError is returned for non-2xx responses from the metadata proxy.
type APIError struct {
	Operation string
	Status    int
	Body      string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: metadata API error (status %d): %s", e.Operation, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: metadata API error: status %d", e.Operation, e.Status)
}

// Is maps the status onto the shared sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrAPIRequest:
		return true
	case shared.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case shared.ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case shared.ErrServiceUnavailable:
		return e.Status >= 500
	case shared.ErrTrackNotFound:
		return e.Status == http.StatusNotFound
	case shared.ErrTimeout:
		return e.Status == http.StatusRequestTimeout || e.Status == http.StatusGatewayTimeout
	}
	return false
}
