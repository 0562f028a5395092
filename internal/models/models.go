// package models defines the data model for stream resolution and playback recovery
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// remoteIDPattern matches the fixed-length base64url shape of remote track ids.
var remoteIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// TrackID identifies a track. Remote ids are 11 character base64url tokens;
// anything else belongs to the local catalog.
type TrackID string

// IsRemote reports whether the id has the shape of a remote track id.
func (id TrackID) IsRemote() bool {
	return remoteIDPattern.MatchString(string(id))
}

func (id TrackID) String() string { return string(id) }

// QualityPolicy is the user's audio quality preference.
type QualityPolicy int

const (
	QualityAuto QualityPolicy = iota
	QualityLow
	QualityHigh
)

func (q QualityPolicy) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityHigh:
		return "high"
	default:
		return "auto"
	}
}

// ParseQualityPolicy converts a config or flag value into a [QualityPolicy].
func ParseQualityPolicy(s string) (QualityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return QualityAuto, nil
	case "low":
		return QualityLow, nil
	case "high":
		return QualityHigh, nil
	default:
		return QualityAuto, fmt.Errorf("unknown quality policy %q", s)
	}
}

// PlaybackStatus is the playability status reported by the metadata API.
type PlaybackStatus string

const (
	StatusOK                      PlaybackStatus = "OK"
	StatusLoginRequired           PlaybackStatus = "LOGIN_REQUIRED"
	StatusAgeCheckRequired        PlaybackStatus = "AGE_CHECK_REQUIRED"
	StatusAgeVerificationRequired PlaybackStatus = "AGE_VERIFICATION_REQUIRED"
	StatusContentCheckRequired    PlaybackStatus = "CONTENT_CHECK_REQUIRED"
	StatusUnplayable              PlaybackStatus = "UNPLAYABLE"
	StatusError                   PlaybackStatus = "ERROR"
)

// IsOK reports whether the track is playable with this response.
func (s PlaybackStatus) IsOK() bool { return s == StatusOK }

// IsAgeRestricted reports whether the status is one of the gated states that
// an authenticated creator identity may be able to lift.
func (s PlaybackStatus) IsAgeRestricted() bool {
	switch s {
	case StatusAgeCheckRequired, StatusAgeVerificationRequired, StatusLoginRequired, StatusContentCheckRequired:
		return true
	}
	return false
}

// ClientProfile is a named remote client identity. Profiles are immutable
// once the registry is built.
type ClientProfile struct {
	Name                string `json:"name" toml:"name"`
	Version             string `json:"version" toml:"version"`
	UserAgent           string `json:"user_agent,omitempty" toml:"user_agent"`
	RequiresAuth        bool   `json:"requires_auth" toml:"requires_auth"`
	SupportsOriginToken bool   `json:"supports_origin_token" toml:"supports_origin_token"`
	Priority            int    `json:"priority" toml:"priority"`
}

func (p ClientProfile) String() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "/" + p.Version
}

// Format is one candidate stream returned by the metadata API.
type Format struct {
	ID              int    `json:"itag"`
	MimeType        string `json:"mimeType"`
	Bitrate         int    `json:"bitrate"`
	IsAudio         bool   `json:"isAudio"`
	IsOriginalTrack bool   `json:"isOriginalTrack"`
	URL             string `json:"url,omitempty"`
	SignatureCipher string `json:"signatureCipher,omitempty"`
	ContentLength   int64  `json:"contentLength,omitempty"`
}

// IsWebmAudio reports whether the container is audio/webm.
func (f Format) IsWebmAudio() bool {
	return strings.HasPrefix(strings.ToLower(f.MimeType), "audio/webm")
}

// PlaybackDescriptor is the result of one metadata API call for one profile.
// It lives for a single resolution attempt.
type PlaybackDescriptor struct {
	Status           PlaybackStatus `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	Formats          []Format       `json:"formats"`
	PrivatelyOwned   bool           `json:"privatelyOwned"`
	ExpiresInSeconds *int           `json:"expiresInSeconds,omitempty"`
}

// ResolvedStream is a playable URL with a wall-clock expiry.
type ResolvedStream struct {
	TrackID   TrackID   `json:"track_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	FormatID  int       `json:"format_id"`
	MimeType  string    `json:"mime_type,omitempty"`
	Bitrate   int       `json:"bitrate,omitempty"`
	Profile   string    `json:"profile,omitempty"`
}

// ExpiresWithin reports whether the stream expires before now+margin.
func (s ResolvedStream) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(s.ExpiresAt)
}

// CachedFormat is what the cache collaborator stores for a track: the chosen
// format together with its URL and expiry.
type CachedFormat struct {
	TrackID   TrackID   `json:"track_id"`
	FormatID  int       `json:"format_id"`
	MimeType  string    `json:"mime_type"`
	Bitrate   int       `json:"bitrate"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Profile   string    `json:"profile"`
}

// NewCachedFormat captures the cacheable part of a [ResolvedStream].
func NewCachedFormat(s ResolvedStream) CachedFormat {
	return CachedFormat{
		TrackID:   s.TrackID,
		FormatID:  s.FormatID,
		MimeType:  s.MimeType,
		Bitrate:   s.Bitrate,
		URL:       s.URL,
		ExpiresAt: s.ExpiresAt,
		Profile:   s.Profile,
	}
}

// Stream converts the cached entry back into a [ResolvedStream].
func (c CachedFormat) Stream() ResolvedStream {
	return ResolvedStream{
		TrackID:   c.TrackID,
		URL:       c.URL,
		ExpiresAt: c.ExpiresAt,
		FormatID:  c.FormatID,
		MimeType:  c.MimeType,
		Bitrate:   c.Bitrate,
		Profile:   c.Profile,
	}
}

// PlaybackEvent is one recorded session event for a track.
type PlaybackEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TrackID   TrackID   `json:"track_id"`
	Kind      string    `json:"kind"`
	Category  string    `json:"category,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PrefetchResult is the outcome of resolving one track during a bulk prefetch.
type PrefetchResult struct {
	TrackID   TrackID       `json:"track_id"`
	Profile   string        `json:"profile,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// OK reports whether the track resolved.
func (r PrefetchResult) OK() bool { return r.Error == "" }

// PrefetchReport summarizes a bulk prefetch run.
type PrefetchReport struct {
	ID         string           `json:"id"`
	Total      int              `json:"total"`
	Resolved   int              `json:"resolved"`
	Failed     int              `json:"failed"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Results    []PrefetchResult `json:"results"`
	ReportPath string           `json:"-"`
}
