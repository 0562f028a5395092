package models

import (
	"testing"
	"time"
)

func TestTrackID(t *testing.T) {
	t.Run("IsRemote", func(t *testing.T) {
		tt := []struct {
			id   TrackID
			want bool
		}{
			{"abc12345678", true},
			{"dQw4w9WgXcQ", true},
			{"a-b_c-d_e-f", true},
			{"abc1234567", false},
			{"abc123456789", false},
			{"abc1234567!", false},
			{"local:42", false},
			{"", false},
		}

		for _, tc := range tt {
			if got := tc.id.IsRemote(); got != tc.want {
				t.Errorf("%q.IsRemote() = %v, want %v", tc.id, got, tc.want)
			}
		}
	})
}

func TestQualityPolicy(t *testing.T) {
	t.Run("ParseQualityPolicy", func(t *testing.T) {
		for in, want := range map[string]QualityPolicy{"": QualityAuto, "AUTO": QualityAuto, "low": QualityLow, " high ": QualityHigh} {
			got, err := ParseQualityPolicy(in)
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", in, err)
			}
			if got != want {
				t.Errorf("ParseQualityPolicy(%q) = %v, want %v", in, got, want)
			}
		}

		if _, err := ParseQualityPolicy("lossless"); err == nil {
			t.Error("expected error for unknown policy")
		}
	})
}

func TestPlaybackStatus(t *testing.T) {
	t.Run("IsAgeRestricted", func(t *testing.T) {
		gated := []PlaybackStatus{StatusLoginRequired, StatusAgeCheckRequired, StatusAgeVerificationRequired, StatusContentCheckRequired}
		for _, s := range gated {
			if !s.IsAgeRestricted() {
				t.Errorf("expected %s to be age restricted", s)
			}
		}
		for _, s := range []PlaybackStatus{StatusOK, StatusUnplayable, StatusError} {
			if s.IsAgeRestricted() {
				t.Errorf("expected %s not to be age restricted", s)
			}
		}
	})
}

func TestResolvedStream(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := ResolvedStream{TrackID: "abc12345678", ExpiresAt: now.Add(time.Minute)}

	t.Run("ExpiresWithin", func(t *testing.T) {
		if s.ExpiresWithin(now, 30*time.Second) {
			t.Error("stream should outlive a 30s margin")
		}
		if !s.ExpiresWithin(now, time.Minute) {
			t.Error("stream should expire within a 1m margin")
		}
	})

	t.Run("CachedFormat round trip", func(t *testing.T) {
		s.URL, s.FormatID, s.Profile = "https://example.com/a", 251, "WEB_REMIX"
		if got := NewCachedFormat(s).Stream(); got != s {
			t.Errorf("got %+v, want %+v", got, s)
		}
	})
}
