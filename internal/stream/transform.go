package stream

import (
	"context"
	"fmt"
	"net/url"

	"github.com/desertthunder/ytplay/internal/models"
)

// NTransformer rewrites the n query parameter of a stream URL.
type NTransformer interface {
	TransformN(n string) (string, error)
}

// OriginTokenProvider supplies the proof-of-origin token for a profile.
// An empty token with a nil error means none is available.
type OriginTokenProvider interface {
	OriginToken(ctx context.Context, profile models.ClientProfile) (string, error)
}

// StaticOriginToken serves one configured token to every profile.
type StaticOriginToken string

func (s StaticOriginToken) OriginToken(context.Context, models.ClientProfile) (string, error) {
	return string(s), nil
}

// applyN replaces the n parameter using t. URLs without n are returned unchanged.
func applyN(raw string, t NTransformer) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed stream url: %w", err)
	}

	q := u.Query()
	n := q.Get("n")
	if n == "" {
		return raw, nil
	}
	if t == nil {
		return "", fmt.Errorf("no n transform configured")
	}

	out, err := t.TransformN(n)
	if err != nil {
		return "", err
	}
	q.Set("n", out)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// withOriginToken appends the pot parameter.
func withOriginToken(raw, token string) string {
	if token == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("pot", token)
	u.RawQuery = q.Encode()
	return u.String()
}
