package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// AlternateStream is one entry of an alternate stream set.
type AlternateStream struct {
	FormatID string  `json:"format_id"`
	URL      string  `json:"url"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	ABR      float64 `json:"abr"`
}

// IsAudioOnly reports whether the stream carries audio and no video.
func (s AlternateStream) IsAudioOnly() bool {
	return s.ACodec != "" && s.ACodec != "none" && (s.VCodec == "" || s.VCodec == "none")
}

// AlternateSource lists alternate stream URLs for a track.
type AlternateSource interface {
	StreamURLs(ctx context.Context, trackID string) ([]AlternateStream, error)
}

// YtdlpSource asks yt-dlp for the track's formats.
type YtdlpSource struct {
	// run is swapped in tests; it returns the JSON dump of the watch URL.
	run func(ctx context.Context, watchURL string) (string, error)
}

// NewYtdlpSource runs the yt-dlp binary on PATH.
func NewYtdlpSource() *YtdlpSource {
	return &YtdlpSource{run: runYtdlp}
}

func runYtdlp(ctx context.Context, watchURL string) (string, error) {
	res, err := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--dump-json", "--skip-download", "--no-playlist", watchURL)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (y *YtdlpSource) StreamURLs(ctx context.Context, trackID string) ([]AlternateStream, error) {
	out, err := y.run(ctx, "https://music.youtube.com/watch?v="+trackID)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	var dump struct {
		Formats []AlternateStream `json:"formats"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &dump); err != nil {
		return nil, fmt.Errorf("yt-dlp: failed to decode output: %w", err)
	}
	return dump.Formats, nil
}

// AlternateStreamsStrategy is the last resort: an alternate set of stream
// URLs matched by format id, else the best audio-only stream.
type AlternateStreamsStrategy struct {
	Source AlternateSource
}

func (AlternateStreamsStrategy) Name() string    { return "alternate" }
func (AlternateStreamsStrategy) Expensive() bool { return true }

func (a AlternateStreamsStrategy) ResolveURL(ctx context.Context, req URLRequest) (string, error) {
	if a.Source == nil {
		return "", ErrNoCandidate
	}

	streams, err := a.Source.StreamURLs(ctx, req.TrackID.String())
	if err != nil {
		return "", err
	}

	want := strconv.Itoa(req.Format.ID)
	var best *AlternateStream
	for i := range streams {
		s := &streams[i]
		if s.URL == "" {
			continue
		}
		if s.FormatID == want {
			return s.URL, nil
		}
		if s.IsAudioOnly() && (best == nil || s.ABR > best.ABR) {
			best = s
		}
	}

	if best == nil {
		return "", ErrNoCandidate
	}
	return best.URL, nil
}
