package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytplay/internal/formatter"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/playback"
	"github.com/desertthunder/ytplay/internal/player"
	"github.com/desertthunder/ytplay/internal/repositories"
	"github.com/desertthunder/ytplay/internal/server"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/desertthunder/ytplay/internal/tasks"
	"github.com/desertthunder/ytplay/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/ytplay-tui.log"

// Play plays a queue of tracks with automatic recovery from stream failures.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	ids, err := trackIDs(cmd)
	if err != nil {
		return err
	}

	policy, metered, err := r.quality(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("tui") {
		fileLogger, err := shared.NewFileLogger(tuiLogPath)
		if err != nil {
			return err
		}
		r.SetLogger(fileLogger)
	}

	resolver, cleanup, err := r.newResolver(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var history *repositories.EventRepository
	if cmd.Bool("history") {
		db, err := r.openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		history = repositories.NewEventRepository(db)
	}

	p := player.New(player.Opts{
		Queue:  ids,
		Start:  r.starter,
		Probe:  player.HTTPProber(r.httpClient, r.config.Resolver.UserAgent),
		Logger: r.logger,
	})
	defer p.Close()

	session, err := playback.NewSession(playback.SessionOpts{
		Resolver:   resolver,
		Pipeline:   p,
		PlaylistID: cmd.String("playlist"),
		Quality:    policy,
		Metered:    metered,
		RetryUnit:  r.config.Playback.RetryUnit.Duration,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}
	p.Bind(session, session)

	if addr := r.config.Metrics.Listen; addr != "" {
		stop := server.Serve(addr, server.NewPlaybackRouter(session.ID, p, r.logger), r.logger)
		defer stop()
	}

	events, wait := r.recordEvents(ctx, session, history)
	defer func() {
		session.Close()
		wait()
	}()

	r.logger.Info("starting playback", "session", session.ID, "tracks", len(ids))
	if err := session.Start(ctx); err != nil {
		session.OnError(err)
	}

	if cmd.Bool("tui") {
		model := ui.NewModel(ctx, ids, p, events, p.Done())
		if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	}

	return r.followEvents(ctx, events, p.Done())
}

// followEvents prints events until the queue finishes, recovery gives up and
// pauses playback, or ctx ends.
func (r *Runner) followEvents(ctx context.Context, events <-chan playback.Event, done <-chan struct{}) error {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			r.writeEvent(e)
			if e.Kind == playback.EventPaused {
				r.writePlainln("%s", ui.Muted("Playback paused after repeated failures"))
				return nil
			}
		case <-done:
			r.writePlainln("%s", ui.Success("✓ Queue finished"))
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// recordEvents drains the session's events, stores them when history is set,
// and forwards them to the returned channel. wait blocks until the session's
// channel is closed and every event is stored.
func (r *Runner) recordEvents(ctx context.Context, session *playback.Session, history *repositories.EventRepository) (<-chan playback.Event, func()) {
	out := make(chan playback.Event, 64)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)

		for e := range session.Events() {
			if history != nil {
				if err := history.Create(context.WithoutCancel(ctx), eventRecord(session.ID, e)); err != nil {
					r.logger.Warn("failed to record playback event", "error", err)
				}
			}
			select {
			case out <- e:
			default:
			}
		}
	}()

	return out, wg.Wait
}

func eventRecord(sessionID string, e playback.Event) *models.PlaybackEvent {
	rec := &models.PlaybackEvent{
		SessionID: sessionID,
		TrackID:   e.TrackID,
		Kind:      e.Kind.String(),
		Attempt:   e.Attempt,
		CreatedAt: e.At,
	}
	if e.Category != nil {
		rec.Category = e.Category.String()
	}
	if e.Err != nil {
		rec.Detail = e.Err.Error()
	}
	return rec
}

func (r *Runner) writeEvent(e playback.Event) {
	line := fmt.Sprintf("%s %s", e.Kind, e.TrackID)
	if e.Category != nil {
		line += fmt.Sprintf(" (%s, attempt %d)", *e.Category, e.Attempt)
	}
	if e.Err != nil {
		line += ": " + e.Err.Error()
	}
	r.writePlain("%s\n", ui.EventStyle(e.Kind).Render(line))
}

// Prefetch resolves tracks ahead of playback to warm the cache.
func (r *Runner) Prefetch(ctx context.Context, cmd *cli.Command) error {
	ids := make([]models.TrackID, 0, cmd.Args().Len())
	for _, a := range cmd.Args().Slice() {
		ids = append(ids, models.TrackID(a))
	}
	if path := cmd.String("file"); path != "" {
		fromFile, err := readTrackFile(path)
		if err != nil {
			return err
		}
		ids = append(ids, fromFile...)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: track ids or --file", shared.ErrMissingArgument)
	}

	policy, metered, err := r.quality(cmd)
	if err != nil {
		return err
	}

	resolver, cleanup, err := r.newResolver(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	prog := make(chan tasks.ProgressUpdate, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range prog {
			if u.Phase != tasks.QueueTracks {
				r.writePlain("%s\n", u.Message)
			}
		}
	}()

	report, err := tasks.NewPrefetcher(resolver, r.logger).Run(ctx, prog, ids, tasks.PrefetchOpts{
		PlaylistID: cmd.String("playlist"),
		Quality:    policy,
		Metered:    metered,
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  float64(cmd.Int("rate")),
		ReportPath: cmd.String("report"),
	})
	close(prog)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("Resolved %d/%d track(s), %d failed", report.Resolved, report.Total, report.Failed)
	if report.ReportPath != "" {
		r.writePlain("Report saved to: %s\n", report.ReportPath)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d tracks failed to resolve", report.Failed, report.Total)
	}
	return nil
}

// readTrackFile reads one track id per line, skipping blanks and # comments.
func readTrackFile(path string) ([]models.TrackID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track file: %w", err)
	}
	defer f.Close()

	var ids []models.TrackID
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, models.TrackID(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track file: %w", err)
	}
	return ids, nil
}

// History prints recorded playback events for a track or a session.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	id := models.TrackID(cmd.StringArg("id"))
	sessionID := cmd.String("session")
	if id == "" && sessionID == "" {
		return fmt.Errorf("%w: track id or --session", shared.ErrMissingArgument)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()
	repo := repositories.NewEventRepository(db)

	var records []*models.PlaybackEvent
	if sessionID != "" {
		records, err = repo.ListBySession(ctx, sessionID)
	} else {
		records, err = repo.ListByTrack(ctx, id, int(cmd.Int("limit")))
	}
	if err != nil {
		return err
	}

	events := make([]models.PlaybackEvent, len(records))
	for i, e := range records {
		events[i] = *e
	}

	switch cmd.String("format") {
	case "json":
		return r.writeJSON(events, true)
	case "csv":
		data, err := formatter.EventsToCSV(events)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	default:
		if len(events) == 0 {
			r.writePlain("No playback events recorded\n")
			return nil
		}
		return r.writeBytes(formatter.EventsToText(events))
	}
}
