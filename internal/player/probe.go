package player

import (
	"context"
	"net/http"
	"time"

	"github.com/desertthunder/ytplay/internal/playback"
	"github.com/desertthunder/ytplay/internal/stream"
)

const probeTimeout = 5 * time.Second

// Prober explains a playback failure by requesting the stream URL directly.
// It returns nil when the URL looks healthy.
type Prober func(ctx context.Context, url string) error

// HTTPProber requests the first byte of the stream, the same way the audio
// decoder opens it.
func HTTPProber(client *http.Client, userAgent string) Prober {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	if userAgent == "" {
		userAgent = stream.DefaultUserAgent
	}

	return func(ctx context.Context, url string) error {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Range", "bytes=0-0")

		resp, err := client.Do(req)
		if err != nil {
			return playback.AsNetworkError("probe", err)
		}
		resp.Body.Close()

		if resp.StatusCode >= 400 {
			return &playback.HTTPStatusError{StatusCode: resp.StatusCode, URL: url}
		}
		return nil
	}
}
