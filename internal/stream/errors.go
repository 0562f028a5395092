package stream

import (
	"errors"
	"fmt"

	"github.com/desertthunder/ytplay/internal/models"
)

// FailureKind tags why the last profile attempt failed.
type FailureKind string

const (
	KindBadStatus     FailureKind = "BadStatus"
	KindNoFormat      FailureKind = "NoFormat"
	KindNoURL         FailureKind = "NoUrl"
	KindMissingExpiry FailureKind = "MissingExpiry"
)

var (
	ErrBadStatus     = errors.New("unplayable status")
	ErrNoFormat      = errors.New("no suitable audio format")
	ErrNoURL         = errors.New("no usable stream url")
	ErrMissingExpiry = errors.New("stream expiry missing")
)

// ResolutionError is returned when no profile produced a usable URL.
// It describes the last failed attempt.
type ResolutionError struct {
	TrackID models.TrackID
	Kind    FailureKind
	Profile string
	Status  models.PlaybackStatus
	Reason  string
	Err     error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve %s: %s", e.TrackID, e.Kind)
	if e.Profile != "" {
		msg += " via " + e.Profile
	}
	if e.Status != "" {
		msg += fmt.Sprintf(" (%s)", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind sentinel and the underlying metadata error, if any.
func (e *ResolutionError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *ResolutionError) sentinel() error {
	switch e.Kind {
	case KindNoFormat:
		return ErrNoFormat
	case KindNoURL:
		return ErrNoURL
	case KindMissingExpiry:
		return ErrMissingExpiry
	default:
		return ErrBadStatus
	}
}
