package tasks

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// Resolver resolves a playable stream for one track.
type Resolver interface {
	Resolve(ctx context.Context, id models.TrackID, playlistID string, policy models.QualityPolicy, metered bool) (*models.ResolvedStream, error)
}

// Prefetcher warms the resolution cache for a list of tracks.
type Prefetcher struct {
	resolver Resolver
	logger   *log.Logger
}

// NewPrefetcher creates a new Prefetcher over the given resolver.
func NewPrefetcher(resolver Resolver, logger *log.Logger) *Prefetcher {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Prefetcher{resolver: resolver, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (p *Prefetcher) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// dedupe drops repeated and empty ids, keeping first occurrences in order.
func dedupe(ids []models.TrackID) []models.TrackID {
	seen := make(map[models.TrackID]bool, len(ids))
	out := make([]models.TrackID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
