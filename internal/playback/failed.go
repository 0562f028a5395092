package playback

import (
	"sync"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
)

// FailedTracksClearDelay is how long permanently failed tracks stay blocked.
const FailedTracksClearDelay = 5 * time.Minute

// FailedTrackSet holds tracks that exhausted their retries. The whole set is
// cleared once the delay passes without a new failure.
type FailedTrackSet struct {
	mu    sync.Mutex
	ids   map[models.TrackID]struct{}
	delay time.Duration
	timer *time.Timer
}

// NewFailedTrackSet returns an empty set that clears itself after delay.
func NewFailedTrackSet(delay time.Duration) *FailedTrackSet {
	if delay <= 0 {
		delay = FailedTracksClearDelay
	}
	return &FailedTrackSet{ids: make(map[models.TrackID]struct{}), delay: delay}
}

// Add marks id as failed and restarts the clear timer.
func (s *FailedTrackSet) Add(id models.TrackID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids[id] = struct{}{}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.Clear)
}

func (s *FailedTrackSet) Contains(id models.TrackID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *FailedTrackSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Clear empties the set.
func (s *FailedTrackSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ids)
}

// Stop cancels a pending clear.
func (s *FailedTrackSet) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
