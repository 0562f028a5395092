package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/ytplay/internal/cache"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/playback"
	"github.com/desertthunder/ytplay/internal/repositories"
	"github.com/desertthunder/ytplay/internal/shared"
	tu "github.com/desertthunder/ytplay/internal/testing"
	"github.com/urfave/cli/v3"
)

func newTestRunner(t *testing.T, config *shared.Config, service *tu.MockPlayerService) (*Runner, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	opts := RunnerOpts{
		Config: config,
		Logger: shared.NopLogger(),
		Output: output,
	}
	if service != nil {
		opts.Service = service
		opts.Timestamps = &tu.MockTimestamps{Value: 20117}
	}
	return NewRunner(opts), output
}

func run(t *testing.T, cmd *cli.Command, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return cmd.Run(ctx, append([]string{cmd.Name}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NopLogger()
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			service := &tu.MockPlayerService{}
			timestamps := &tu.MockTimestamps{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Service:    service,
				Timestamps: timestamps,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.service != service {
				t.Error("expected service to be set")
			}
			if runner.timestamps != timestamps {
				t.Error("expected timestamps to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected default http client")
			}
			if runner.starter == nil {
				t.Error("expected default starter")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			runner, output := newTestRunner(t, nil, nil)

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), "\n  \"key\": \"value\"\n") {
				t.Errorf("expected indented JSON, got %q", output.String())
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			runner, output := newTestRunner(t, nil, nil)

			if err := runner.writeJSON(map[string]int{"n": 1}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "{\"n\":1}\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner, _ := newTestRunner(t, nil, nil)

			err := runner.writeJSON(make(chan int), true)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NopLogger(), Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			buf := &bytes.Buffer{}
			w := tu.NewLimitedWriter(1, 0, buf)
			runner := NewRunner(RunnerOpts{Logger: shared.NopLogger(), Output: &w})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		runner, output := newTestRunner(t, nil, nil)

		if err := runner.writePlain("%d tracks", 3); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "3 tracks" {
			t.Errorf("unexpected output %q", output.String())
		}

		output.Reset()
		runner.writePlainln("done")
		if output.String() != "\ndone\n" {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("register", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil, nil)

		names := []string{}
		for _, c := range runner.register() {
			names = append(names, c.Name)
		}

		want := "setup,resolve,probe,profiles,prefetch,play,cache,history"
		if got := strings.Join(names, ","); got != want {
			t.Errorf("expected commands %s, got %s", want, got)
		}
	})

	t.Run("cipherPrograms", func(t *testing.T) {
		t.Run("empty programs stay nil", func(t *testing.T) {
			runner, _ := newTestRunner(t, nil, nil)

			sig, n, alt, err := runner.cipherPrograms()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if sig != nil || n != nil || alt != nil {
				t.Error("expected nil programs")
			}
		})

		t.Run("parses configured programs", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Cipher.Version = "abc123"
			config.Cipher.SignatureOps = "r,s2,w5"
			runner, _ := newTestRunner(t, config, nil)

			sig, _, _, err := runner.cipherPrograms()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if sig == nil || sig.Version != "abc123" || sig.String() != "r,s2,w5" {
				t.Errorf("unexpected program %+v", sig)
			}
		})

		t.Run("invalid program is a config error", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Cipher.NOps = "x9"
			runner, _ := newTestRunner(t, config, nil)

			if _, _, _, err := runner.cipherPrograms(); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("openCache", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil, nil)

		c, cleanup, err := runner.openCache(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer cleanup()

		if _, ok := c.(*cache.MemoryCache); !ok {
			t.Errorf("expected memory cache by default, got %T", c)
		}
	})
}

func TestTrackInput(t *testing.T) {
	t.Run("readTrackFile skips blanks and comments", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tracks.txt")
		content := "# morning queue\nabc123\n\n  def456  \n#skip\nghi789\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		ids, err := readTrackFile(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got := make([]string, len(ids))
		for i, id := range ids {
			got[i] = string(id)
		}
		if strings.Join(got, ",") != "abc123,def456,ghi789" {
			t.Errorf("unexpected ids %v", got)
		}
	})

	t.Run("readTrackFile missing file", func(t *testing.T) {
		if _, err := readTrackFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("play without ids", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil, nil)

		err := run(t, playCommand(runner))
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("prefetch without ids", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil, nil)

		err := run(t, prefetchCommand(runner))
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestResolve(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer media.Close()

	expires := 21600
	service := &tu.MockPlayerService{Responses: map[string]*models.PlaybackDescriptor{
		"WEB_REMIX": {
			Status: models.StatusOK,
			Formats: []models.Format{{
				ID:              251,
				MimeType:        "audio/webm; codecs=\"opus\"",
				Bitrate:         160000,
				IsAudio:         true,
				IsOriginalTrack: true,
				URL:             media.URL + "/videoplayback?id=1",
			}},
			ExpiresInSeconds: &expires,
		},
	}}

	t.Run("json output", func(t *testing.T) {
		runner, output := newTestRunner(t, nil, service)

		if err := run(t, resolveCommand(runner), "--format", "json", "dQw4w9WgXcQ"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var s models.ResolvedStream
		if err := json.Unmarshal(output.Bytes(), &s); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if s.TrackID != "dQw4w9WgXcQ" || s.FormatID != 251 {
			t.Errorf("unexpected stream %+v", s)
		}
		if !strings.HasPrefix(s.URL, media.URL) {
			t.Errorf("expected media server URL, got %s", s.URL)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil, service)

		if err := run(t, resolveCommand(runner)); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("invalid quality flag", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil, service)

		err := run(t, resolveCommand(runner), "--quality", "ultra", "dQw4w9WgXcQ")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestProbe(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer gone.Close()

	t.Run("reachable", func(t *testing.T) {
		runner, output := newTestRunner(t, nil, nil)

		if err := run(t, probeCommand(runner), up.URL); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "reachable") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		runner, output := newTestRunner(t, nil, nil)

		err := run(t, probeCommand(runner), gone.URL)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
		if !strings.Contains(output.String(), "unreachable") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}

func TestProfiles(t *testing.T) {
	t.Run("text lists the scan order", func(t *testing.T) {
		runner, output := newTestRunner(t, nil, nil)

		if err := run(t, profilesCommand(runner)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := output.String()
		remix := strings.Index(out, "WEB_REMIX")
		vr := strings.Index(out, "ANDROID_VR")
		ios := strings.Index(out, "IOS/")
		if remix < 0 || vr < 0 || ios < 0 {
			t.Fatalf("expected every profile listed:\n%s", out)
		}
		if remix > vr || vr > ios {
			t.Errorf("expected primary, then ANDROID_VR before IOS:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		runner, output := newTestRunner(t, nil, nil)

		if err := run(t, profilesCommand(runner), "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var got struct {
			Primary   models.ClientProfile   `json:"primary"`
			Fallbacks []models.ClientProfile `json:"fallbacks"`
		}
		if err := json.Unmarshal(output.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if got.Primary.Name != "WEB_REMIX" || len(got.Fallbacks) != 4 {
			t.Errorf("unexpected profiles %+v", got)
		}
	})
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	config := shared.DefaultConfig()
	config.Database.Path = path

	runner, output := newTestRunner(t, config, nil)

	db, err := runner.openDatabase()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	repo := repositories.NewEventRepository(db)
	category := playback.CategoryExpiredURL
	now := time.Now()
	for _, e := range []playback.Event{
		{Kind: playback.EventResolving, TrackID: "abc123", At: now},
		{Kind: playback.EventRetrying, TrackID: "abc123", Category: &category, Attempt: 1, Err: errors.New("403"), At: now.Add(time.Second)},
		{Kind: playback.EventPlaying, TrackID: "def456", At: now.Add(2 * time.Second)},
	} {
		if err := repo.Create(context.Background(), eventRecord("session-1", e)); err != nil {
			t.Fatalf("failed to record event: %v", err)
		}
	}
	db.Close()

	t.Run("by track", func(t *testing.T) {
		output.Reset()
		if err := run(t, historyCommand(runner), "--format", "json", "abc123"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var events []models.PlaybackEvent
		if err := json.Unmarshal(output.Bytes(), &events); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		for _, e := range events {
			if e.TrackID != "abc123" {
				t.Errorf("unexpected track %s", e.TrackID)
			}
		}
	})

	t.Run("by session", func(t *testing.T) {
		output.Reset()
		if err := run(t, historyCommand(runner), "--session", "session-1", "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var events []models.PlaybackEvent
		if err := json.Unmarshal(output.Bytes(), &events); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if len(events) != 3 {
			t.Errorf("expected 3 events, got %d", len(events))
		}
	})

	t.Run("empty text", func(t *testing.T) {
		output.Reset()
		if err := run(t, historyCommand(runner), "unknown"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "No playback events") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("requires id or session", func(t *testing.T) {
		if err := run(t, historyCommand(runner)); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestFollowEvents(t *testing.T) {
	follow := func(events <-chan playback.Event, done <-chan struct{}) (string, error) {
		runner, output := newTestRunner(t, shared.DefaultConfig(), nil)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := runner.followEvents(ctx, events, done)
		if ctx.Err() != nil {
			t.Fatal("followEvents did not return before the deadline")
		}
		return output.String(), err
	}

	t.Run("returns once recovery pauses playback", func(t *testing.T) {
		category := playback.CategoryNetwork
		events := make(chan playback.Event, 2)
		events <- playback.Event{Kind: playback.EventRetrying, TrackID: "abc12345678", Category: &category, Attempt: 3}
		events <- playback.Event{Kind: playback.EventPaused, TrackID: "abc12345678", Category: &category, Attempt: 4}

		out, err := follow(events, make(chan struct{}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Retrying abc12345678") || !strings.Contains(out, "Paused abc12345678") {
			t.Errorf("expected both events printed, got %q", out)
		}
		if !strings.Contains(out, "paused after repeated failures") {
			t.Errorf("expected pause notice, got %q", out)
		}
	})

	t.Run("returns when the queue finishes", func(t *testing.T) {
		done := make(chan struct{})
		close(done)

		out, err := follow(make(chan playback.Event), done)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Queue finished") {
			t.Errorf("expected finish notice, got %q", out)
		}
	})

	t.Run("returns when events close", func(t *testing.T) {
		events := make(chan playback.Event)
		close(events)
		if _, err := follow(events, make(chan struct{})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestEventRecord(t *testing.T) {
	category := playback.CategoryNetwork
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := eventRecord("s1", playback.Event{
		Kind:     playback.EventSkipped,
		TrackID:  "abc123",
		Category: &category,
		Attempt:  3,
		Err:      errors.New("connection reset"),
		At:       at,
	})

	if rec.SessionID != "s1" || rec.TrackID != "abc123" || rec.Attempt != 3 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Kind != playback.EventSkipped.String() || rec.Category != category.String() {
		t.Errorf("unexpected kind/category %s/%s", rec.Kind, rec.Category)
	}
	if rec.Detail != "connection reset" || !rec.CreatedAt.Equal(at) {
		t.Errorf("unexpected detail/time %s %v", rec.Detail, rec.CreatedAt)
	}

	plain := eventRecord("s1", playback.Event{Kind: playback.EventPlaying, TrackID: "abc123", At: at})
	if plain.Category != "" || plain.Detail != "" {
		t.Errorf("expected empty category and detail, got %+v", plain)
	}
}

func TestSetupCookie(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	curl := `curl 'https://music.youtube.com/youtubei/v1/player' -H 'User-Agent: TestAgent/1.0' -H 'Cookie: SID=abc; HSID=def; SAPISID=ghi'`

	t.Run("writes cookie into config", func(t *testing.T) {
		runner, output := newTestRunner(t, nil, nil)

		if err := run(t, setupCommand(runner), "cookie", "--config", configPath, "--curl", curl); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		config, err := shared.LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}
		if !strings.Contains(config.Auth.Cookie, "SAPISID=ghi") {
			t.Errorf("expected cookie to be saved, got %q", config.Auth.Cookie)
		}
		if config.Resolver.UserAgent != "TestAgent/1.0" {
			t.Errorf("expected user agent to be saved, got %q", config.Resolver.UserAgent)
		}
		if !strings.Contains(output.String(), "Session cookie saved") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("requires a source", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil, nil)

		err := run(t, setupCommand(runner), "cookie", "--config", configPath)
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("rejects both sources", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil, nil)

		err := run(t, setupCommand(runner), "cookie", "--config", configPath, "--curl", curl, "--curl-file", "x.txt")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSetupDatabase(t *testing.T) {
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "ytplay.db")
	runner, output := newTestRunner(t, config, nil)

	err := run(t, setupCommand(runner), "database", "--config", filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	tu.AssertFileExists(t, config.Database.Path)
	if !strings.Contains(output.String(), "schema version 2") {
		t.Errorf("unexpected output %q", output.String())
	}
}
