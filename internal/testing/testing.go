// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/services"
)

// MockPlayerService is a test double for [services.PlayerService]. Responses
// and errors are keyed by profile name; unknown profiles return UNPLAYABLE.
type MockPlayerService struct {
	Responses map[string]*models.PlaybackDescriptor
	Errors    map[string]error
	Authed    bool

	mu    sync.Mutex
	calls []services.PlayerRequest
}

func (m *MockPlayerService) Player(ctx context.Context, req services.PlayerRequest) (*models.PlaybackDescriptor, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Errors[req.Profile.Name]; ok {
		return nil, err
	}
	if resp, ok := m.Responses[req.Profile.Name]; ok {
		cp := *resp
		return &cp, nil
	}
	return &models.PlaybackDescriptor{Status: models.StatusUnplayable, Reason: "no scripted response"}, nil
}

func (m *MockPlayerService) Authenticated() bool { return m.Authed }

// Calls returns the requests seen so far, in order.
func (m *MockPlayerService) Calls() []services.PlayerRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]services.PlayerRequest(nil), m.calls...)
}

// CalledProfiles returns the profile names of every request, in order.
func (m *MockPlayerService) CalledProfiles() []string {
	calls := m.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Profile.Name
	}
	return names
}

// MockTimestamps is a test double for [services.SignatureTimestampSource].
type MockTimestamps struct {
	Value     int
	Err       error
	mu        sync.Mutex
	refreshes int
}

func (m *MockTimestamps) SignatureTimestamp(context.Context) (int, error) {
	return m.Value, m.Err
}

func (m *MockTimestamps) ForceRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
}

// Refreshes reports how many times ForceRefresh was called.
func (m *MockTimestamps) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// MockValidator answers reachability from a fixed set of URLs and records every probe.
type MockValidator struct {
	Reachable map[string]bool

	mu     sync.Mutex
	probes []string
}

func (m *MockValidator) IsReachable(_ context.Context, rawURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, rawURL)
	return m.Reachable[rawURL]
}

// Probes returns the probed URLs, in order.
func (m *MockValidator) Probes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.probes...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
