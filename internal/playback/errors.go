package playback

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// HTTPStatusError is a non-2xx response from the media host.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("media request failed with status %d", e.StatusCode)
}

// NetworkKind narrows a [NetworkError].
type NetworkKind int

const (
	NetworkUnknown NetworkKind = iota
	NetworkTimeout
	NetworkRefused
	NetworkDNS
)

func (k NetworkKind) String() string {
	switch k {
	case NetworkTimeout:
		return "timeout"
	case NetworkRefused:
		return "connection refused"
	case NetworkDNS:
		return "unknown host"
	default:
		return "network"
	}
}

// NetworkError is a transport failure that never produced an HTTP status.
type NetworkError struct {
	Kind NetworkKind
	Op   string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AsNetworkError types err as a [NetworkError] when it is a connection
// failure. Other errors are returned unchanged.
func AsNetworkError(op string, err error) error {
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return &NetworkError{Kind: NetworkDNS, Op: op, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &NetworkError{Kind: NetworkRefused, Op: op, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &NetworkError{Kind: NetworkTimeout, Op: op, Err: err}
	case errors.As(err, &netErr):
		return &NetworkError{Kind: NetworkUnknown, Op: op, Err: err}
	}
	return err
}

// Causes returns err followed by its wrapped causes, at most max entries.
// Joined errors are followed through their first member.
func Causes(err error, max int) []error {
	var out []error
	for err != nil && len(out) < max {
		out = append(out, err)
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := u.Unwrap(); len(errs) > 0 {
				err = errs[0]
			} else {
				err = nil
			}
		default:
			err = nil
		}
	}
	return out
}
