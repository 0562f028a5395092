package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// ErrNoCandidate means a strategy had nothing to offer for the request.
var ErrNoCandidate = errors.New("no candidate url")

// URLRequest is the input to every deobfuscation strategy.
type URLRequest struct {
	TrackID        models.TrackID
	Format         models.Format
	Descriptor     *models.PlaybackDescriptor
	AllowExpensive bool
}

// Strategy turns a format into a fetchable URL.
type Strategy interface {
	Name() string
	// Expensive strategies are skipped when the request disallows them.
	Expensive() bool
	ResolveURL(ctx context.Context, req URLRequest) (string, error)
}

// SignatureDecoder decodes an obfuscated signature.
type SignatureDecoder interface {
	DecodeSignature(s string) (string, error)
}

// Deobfuscator tries its strategies in order and returns the first URL.
// A failing strategy is logged and skipped.
type Deobfuscator struct {
	strategies []Strategy
	logger     *log.Logger
}

// NewDeobfuscator keeps strategies in the given order. Cheap strategies must come first.
func NewDeobfuscator(logger *log.Logger, strategies ...Strategy) *Deobfuscator {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Deobfuscator{strategies: strategies, logger: logger}
}

// ResolveURL runs the chain. It stops at the first expensive strategy when
// req.AllowExpensive is false.
func (d *Deobfuscator) ResolveURL(ctx context.Context, req URLRequest) (string, bool) {
	for _, s := range d.strategies {
		if s.Expensive() && !req.AllowExpensive {
			d.logger.Debug("expensive fallback disabled", "track", req.TrackID, "strategy", s.Name())
			break
		}
		if ctx.Err() != nil {
			return "", false
		}

		u, err := s.ResolveURL(ctx, req)
		switch {
		case errors.Is(err, ErrNoCandidate):
			continue
		case err != nil:
			d.logger.Debug("url strategy failed", "track", req.TrackID, "format", req.Format.ID, "strategy", s.Name(), "error", err)
			continue
		case u != "":
			d.logger.Debug("url resolved", "track", req.TrackID, "format", req.Format.ID, "strategy", s.Name())
			return u, true
		}
	}
	return "", false
}

// RawURLStrategy returns the format's plain URL.
type RawURLStrategy struct{}

func (RawURLStrategy) Name() string    { return "raw" }
func (RawURLStrategy) Expensive() bool { return false }

func (RawURLStrategy) ResolveURL(_ context.Context, req URLRequest) (string, error) {
	if req.Format.URL == "" {
		return "", ErrNoCandidate
	}
	return req.Format.URL, nil
}

// CipherStrategy decodes a signatureCipher descriptor locally.
type CipherStrategy struct {
	Decoder SignatureDecoder
}

func (CipherStrategy) Name() string    { return "cipher" }
func (CipherStrategy) Expensive() bool { return false }

// ResolveURL parses s, sp and url from the descriptor and sets the decoded
// signature on the url under sp (default "signature").
func (c CipherStrategy) ResolveURL(_ context.Context, req URLRequest) (string, error) {
	if req.Format.SignatureCipher == "" || c.Decoder == nil {
		return "", ErrNoCandidate
	}

	params, err := url.ParseQuery(req.Format.SignatureCipher)
	if err != nil {
		return "", fmt.Errorf("malformed signature cipher: %w", err)
	}

	sig, raw := params.Get("s"), params.Get("url")
	if sig == "" || raw == "" {
		return "", fmt.Errorf("signature cipher missing s or url")
	}
	sp := params.Get("sp")
	if sp == "" {
		sp = "signature"
	}

	decoded, err := c.Decoder.DecodeSignature(sig)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed stream url: %w", err)
	}
	q := u.Query()
	q.Set(sp, decoded)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
