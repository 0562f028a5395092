// YouTube Music player [PlayerService] implementation
//
// Communicates with the metadata proxy, which forwards player requests using the client identity
// named in the request body.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultYTBaseURL     = "http://localhost:8080"
	defaultRequestRate   = 4.0
	defaultClientTimeout = 15 * time.Second

	privatelyOwnedTrack = "MUSIC_VIDEO_TYPE_PRIVATELY_OWNED_TRACK"
)

type playerRequestBody struct {
	VideoID            string       `json:"videoId"`
	PlaylistID         string       `json:"playlistId,omitempty"`
	Client             playerClient `json:"client"`
	SignatureTimestamp *int         `json:"signatureTimestamp,omitempty"`
	PoToken            string       `json:"poToken,omitempty"`
}

type playerClient struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// YouTubeFormat is one entry of streamingData.adaptiveFormats.
type YouTubeFormat struct {
	Itag            int    `json:"itag"`
	MimeType        string `json:"mimeType"`
	Bitrate         int    `json:"bitrate"`
	URL             string `json:"url,omitempty"`
	SignatureCipher string `json:"signatureCipher,omitempty"`
	ContentLength   string `json:"contentLength,omitempty"`
	AudioTrack      *struct {
		AudioIsDefault bool `json:"audioIsDefault"`
	} `json:"audioTrack,omitempty"`
}

// YouTubePlayerResponse is the subset of the player response the resolver consumes.
type YouTubePlayerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	StreamingData *struct {
		ExpiresInSeconds string          `json:"expiresInSeconds"`
		AdaptiveFormats  []YouTubeFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
	VideoDetails *struct {
		VideoID        string `json:"videoId"`
		MusicVideoType string `json:"musicVideoType"`
	} `json:"videoDetails"`
}

// Descriptor converts the raw response into a [models.PlaybackDescriptor].
func (r *YouTubePlayerResponse) Descriptor() *models.PlaybackDescriptor {
	d := &models.PlaybackDescriptor{
		Status: models.PlaybackStatus(r.PlayabilityStatus.Status),
		Reason: r.PlayabilityStatus.Reason,
	}
	if d.Status == "" {
		d.Status = models.StatusError
	}
	if r.VideoDetails != nil {
		d.PrivatelyOwned = r.VideoDetails.MusicVideoType == privatelyOwnedTrack
	}
	if r.StreamingData == nil {
		return d
	}

	if secs, err := strconv.Atoi(r.StreamingData.ExpiresInSeconds); err == nil {
		d.ExpiresInSeconds = &secs
	}

	d.Formats = make([]models.Format, 0, len(r.StreamingData.AdaptiveFormats))
	for _, f := range r.StreamingData.AdaptiveFormats {
		length, _ := strconv.ParseInt(f.ContentLength, 10, 64)
		d.Formats = append(d.Formats, models.Format{
			ID:              f.Itag,
			MimeType:        f.MimeType,
			Bitrate:         f.Bitrate,
			IsAudio:         strings.HasPrefix(f.MimeType, "audio/"),
			IsOriginalTrack: f.AudioTrack == nil || f.AudioTrack.AudioIsDefault,
			URL:             f.URL,
			SignatureCipher: f.SignatureCipher,
			ContentLength:   length,
		})
	}
	return d
}

// YouTubeServiceOpts configures [NewYouTubeService].
type YouTubeServiceOpts struct {
	BaseURL           string
	Credentials       Credentials
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Logger            *log.Logger
}

// YouTubeService implements [PlayerService] and [SignatureTimestampSource] via the proxy.
type YouTubeService struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger

	mu  sync.Mutex
	sts *int
}

// NewYouTubeService creates a new YouTube Music service instance.
func NewYouTubeService(opts YouTubeServiceOpts) *YouTubeService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultYTBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultClientTimeout}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRequestRate
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}

	client := opts.HTTPClient
	if opts.Credentials.TokenSource != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, opts.HTTPClient)
		client = oauth2.NewClient(ctx, opts.Credentials.TokenSource)
		client.Timeout = opts.HTTPClient.Timeout
	}

	return &YouTubeService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		creds:      opts.Credentials,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		logger:     opts.Logger,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube Music"
}

// Authenticated reports whether requests carry session credentials.
func (y *YouTubeService) Authenticated() bool {
	return y.creds.Authenticated()
}

func (y *YouTubeService) doRequest(ctx context.Context, op, method, endpoint string, body, result any) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	y.creds.apply(req)

	resp, err := y.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%s: %w: %w", op, shared.ErrTimeout, err)
		}
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Operation: op, Status: resp.StatusCode}
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errResp); err == nil {
			apiErr.Body = errResp.Detail
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Player issues a player request for one client profile.
//
// Calls POST /api/player on the proxy.
func (y *YouTubeService) Player(ctx context.Context, req PlayerRequest) (*models.PlaybackDescriptor, error) {
	if req.Profile.RequiresAuth && !y.Authenticated() {
		return nil, fmt.Errorf("player %s: %w", req.Profile.Name, shared.ErrNotAuthenticated)
	}

	body := playerRequestBody{
		VideoID:            req.TrackID.String(),
		PlaylistID:         req.PlaylistID,
		Client:             playerClient{Name: req.Profile.Name, Version: req.Profile.Version, UserAgent: req.Profile.UserAgent},
		SignatureTimestamp: req.SignatureTimestamp,
		PoToken:            req.OriginToken,
	}

	var resp YouTubePlayerResponse
	if err := y.doRequest(ctx, "player", http.MethodPost, "/api/player", body, &resp); err != nil {
		return nil, err
	}

	d := resp.Descriptor()
	y.logger.Debug("player response", "track", req.TrackID, "profile", req.Profile.Name, "status", d.Status, "formats", len(d.Formats))
	return d, nil
}

// SignatureTimestamp returns the memoized signature timestamp, fetching it on first use.
//
// Calls GET /api/player/sts on the proxy.
func (y *YouTubeService) SignatureTimestamp(ctx context.Context) (int, error) {
	y.mu.Lock()
	if y.sts != nil {
		v := *y.sts
		y.mu.Unlock()
		return v, nil
	}
	y.mu.Unlock()

	var resp struct {
		SignatureTimestamp int `json:"signatureTimestamp"`
	}
	if err := y.doRequest(ctx, "signature timestamp", http.MethodGet, "/api/player/sts", nil, &resp); err != nil {
		return 0, err
	}

	y.mu.Lock()
	y.sts = &resp.SignatureTimestamp
	y.mu.Unlock()
	return resp.SignatureTimestamp, nil
}

// ForceRefresh drops the memoized signature timestamp.
func (y *YouTubeService) ForceRefresh() {
	y.mu.Lock()
	y.sts = nil
	y.mu.Unlock()
}
