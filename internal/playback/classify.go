package playback

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Category is the recovery class of a pipeline failure.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryExpiredURL
	CategoryRangeNotSatisfiable
	CategoryRateLimited
	CategoryNetwork
)

func (c Category) String() string {
	switch c {
	case CategoryExpiredURL:
		return "expired_url"
	case CategoryRangeNotSatisfiable:
		return "range_not_satisfiable"
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryNetwork:
		return "network"
	default:
		return "generic"
	}
}

// retryUnits is the backoff for the category in multiples of the retry unit.
func (c Category) retryUnits() int {
	switch c {
	case CategoryRateLimited:
		return 2
	case CategoryNetwork:
		return 3
	default:
		return 1
	}
}

// causeDepth bounds message scanning to the error and two nested causes.
const causeDepth = 3

var reloadPhrases = []string{"page needs to be reloaded", "page must be reloaded", "reload"}

// Classify maps a pipeline failure to a [Category]. The first matching rule wins:
// HTTP 403 and 416, a reload request in the message chain, a connection
// failure, and finally generic.
func Classify(err error) Category {
	if err == nil {
		return CategoryGeneric
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusForbidden:
			return CategoryExpiredURL
		case http.StatusRequestedRangeNotSatisfiable:
			return CategoryRangeNotSatisfiable
		}
	}

	for _, cause := range Causes(err, causeDepth) {
		msg := strings.ToLower(cause.Error())
		for _, phrase := range reloadPhrases {
			if strings.Contains(msg, phrase) {
				return CategoryRateLimited
			}
		}
	}

	if isNetworkFailure(err) {
		return CategoryNetwork
	}
	return CategoryGeneric
}

func isNetworkFailure(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var timeout net.Error
	return errors.As(err, &timeout) && timeout.Timeout()
}
