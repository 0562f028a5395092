package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/metrics"
	"github.com/desertthunder/ytplay/internal/shared"
)

const (
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultValidateTimeout = 5 * time.Second
)

// ValidatorOpts configures [NewValidator].
type ValidatorOpts struct {
	HTTPClient *http.Client
	UserAgent  string
	Cookie     string
	Timeout    time.Duration
	Logger     *log.Logger
}

// Validator probes candidate URLs with a HEAD request.
type Validator struct {
	client    *http.Client
	userAgent string
	cookie    string
	timeout   time.Duration
	logger    *log.Logger
}

// NewValidator returns a validator whose probes never outlive the timeout.
func NewValidator(opts ValidatorOpts) *Validator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultValidateTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}

	client := &http.Client{Timeout: opts.Timeout}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		c.Timeout = opts.Timeout
		client = &c
	}

	return &Validator{
		client:    client,
		userAgent: opts.UserAgent,
		cookie:    opts.Cookie,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
}

// IsReachable reports whether a HEAD request to rawURL succeeds with a 2xx status.
func (v *Validator) IsReachable(ctx context.Context, rawURL string) bool {
	ok := v.probe(ctx, rawURL)
	metrics.RecordProbe(ok)
	return ok
}

func (v *Validator) probe(ctx context.Context, rawURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		v.logger.Debug("probe request invalid", "error", err)
		return false
	}
	req.Header.Set("User-Agent", v.userAgent)
	if v.cookie != "" {
		req.Header.Set("Cookie", v.cookie)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("probe failed", "error", err)
		return false
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		v.logger.Debug("probe rejected", "status", resp.StatusCode)
		return false
	}
	return true
}
