package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// VideoExtractor is the part of [youtube.Client] the extractor strategy uses.
type VideoExtractor interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

// NewYouTubeExtractor returns a [youtube.Client] sharing the given HTTP client.
func NewYouTubeExtractor(httpClient *http.Client) *youtube.Client {
	return &youtube.Client{HTTPClient: httpClient}
}

// ExtractorStrategy re-extracts the track with an independent player
// implementation and deciphers the matching format there.
type ExtractorStrategy struct {
	Client VideoExtractor
}

func (ExtractorStrategy) Name() string    { return "extractor" }
func (ExtractorStrategy) Expensive() bool { return true }

func (e ExtractorStrategy) ResolveURL(ctx context.Context, req URLRequest) (string, error) {
	if e.Client == nil {
		return "", ErrNoCandidate
	}

	video, err := e.Client.GetVideoContext(ctx, req.TrackID.String())
	if err != nil {
		if errors.Is(err, youtube.ErrLoginRequired) {
			return "", fmt.Errorf("extractor: login required: %w", err)
		}
		return "", fmt.Errorf("extractor: %w", err)
	}

	format := matchExtractedFormat(video.Formats, req.Format.ID)
	if format == nil {
		return "", ErrNoCandidate
	}

	return e.Client.GetStreamURLContext(ctx, video, format)
}

// matchExtractedFormat prefers the same itag, then the highest bitrate audio-only format.
func matchExtractedFormat(formats youtube.FormatList, itag int) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.ItagNo == itag {
			return f
		}
		if f.AudioChannels == 0 || !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}
