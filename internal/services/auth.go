package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/desertthunder/ytplay/internal/shared"
	"golang.org/x/oauth2"
)

// Credentials holds whatever the session was signed in with.
type Credentials struct {
	Cookie      string
	TokenSource oauth2.TokenSource
}

// Authenticated reports whether any credential is present.
func (c Credentials) Authenticated() bool {
	if c.TokenSource != nil {
		return true
	}
	if c.Cookie == "" {
		return false
	}
	return (&shared.CurlHeaders{Cookie: c.Cookie}).SignedIn()
}

// apply sets the cookie header. Bearer tokens are added by the oauth2 transport.
func (c Credentials) apply(req *http.Request) {
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}
}

// LoadTokenSource reads an [oauth2.Token] JSON file and returns a reusable token source.
func LoadTokenSource(path string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token file: %v", shared.ErrInvalidCredentials, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token file has no access_token", shared.ErrMissingCredentials)
	}
	if !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now()) {
		return nil, fmt.Errorf("%w: token expired at %s", shared.ErrTokenExpired, tok.Expiry.Format(time.RFC3339))
	}

	return oauth2.ReuseTokenSource(&tok, oauth2.StaticTokenSource(&tok)), nil
}

// CredentialsFromConfig builds [Credentials] from the [auth] section.
// A cookie file is only read when no raw cookie is configured.
func CredentialsFromConfig(cfg shared.AuthConfig) (Credentials, error) {
	creds := Credentials{Cookie: cfg.Cookie}

	if creds.Cookie == "" && cfg.CookieFile != "" {
		headers, err := shared.ParseCurlFile(cfg.CookieFile)
		if err != nil {
			return creds, err
		}
		creds.Cookie = headers.Cookie
	}

	if cfg.TokenFile != "" {
		ts, err := LoadTokenSource(cfg.TokenFile)
		if err != nil {
			return creds, err
		}
		creds.TokenSource = ts
	}

	return creds, nil
}
