package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/ytplay/internal/formatter"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers   = 4
	maxWorkers       = 10
	defaultRateLimit = 5.0
)

// PrefetchOpts contains configuration for bulk prefetches.
type PrefetchOpts struct {
	PlaylistID string               // Playlist context passed to the metadata API
	Quality    models.QualityPolicy // Format selection policy
	Metered    bool                 // Whether the network is metered
	NumWorkers int                  // Concurrent workers (default: 4, max: 10)
	RateLimit  float64              // Resolutions started per second (default: 5)
	ReportPath string               // Optional report file; .csv writes CSV, anything else JSON
}

type prefetchJob struct {
	index int
	id    models.TrackID
}

type prefetchOutcome struct {
	index  int
	result models.PrefetchResult
}

// Run resolves ids concurrently with rate limiting and progress tracking.
//
// It returns a report covering every unique id. The error is non-nil only when
// the input is empty, the context was cancelled, or the report file could not be written.
func (p *Prefetcher) Run(ctx context.Context, prog chan<- ProgressUpdate, ids []models.TrackID, opts PrefetchOpts) (*models.PrefetchReport, error) {
	if p.resolver == nil {
		return nil, fmt.Errorf("%w: resolver not initialized", shared.ErrServiceUnavailable)
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no track ids", shared.ErrInvalidInput)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	opts.NumWorkers = min(opts.NumWorkers, maxWorkers, len(ids))
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}

	report := &models.PrefetchReport{
		ID:        shared.GenerateID(),
		Total:     len(ids),
		StartedAt: time.Now(),
		Results:   make([]models.PrefetchResult, len(ids)),
	}
	logger := p.logger.With("prefetch", shared.ShortID(report.ID))
	logger.Info("prefetch started", "tracks", len(ids), "workers", opts.NumWorkers)

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan prefetchJob, len(ids))
	outcomes := make(chan prefetchOutcome, len(ids))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go p.worker(ctx, &wg, jobs, outcomes, opts)
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- prefetchJob{index: i, id: id}
			p.sendProgress(prog, queuedUpdate(i+1, len(ids), id))
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	attempted := make([]bool, len(ids))
	completed := 0
	for out := range outcomes {
		completed++
		attempted[out.index] = true
		report.Results[out.index] = out.result

		if out.result.OK() {
			report.Resolved++
			p.sendProgress(prog, resolvedUpdate(completed, len(ids), out.result))
		} else {
			report.Failed++
			logger.Warn("prefetch failed", "track", out.result.TrackID, "error", out.result.Error)
			p.sendProgress(prog, failedUpdate(completed, len(ids), out.result))
		}
	}

	for i, ok := range attempted {
		if !ok {
			report.Failed++
			report.Results[i] = models.PrefetchResult{TrackID: ids[i], Error: context.Canceled.Error()}
		}
	}
	report.FinishedAt = time.Now()
	logger.Info("prefetch finished", "resolved", report.Resolved, "failed", report.Failed)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if opts.ReportPath != "" {
		p.sendProgress(prog, reportUpdate(opts.ReportPath))
		if err := formatter.WritePrefetchReport(report, opts.ReportPath); err != nil {
			return report, fmt.Errorf("prefetch completed but failed to write report: %w", err)
		}
		report.ReportPath = opts.ReportPath
	}
	return report, nil
}

// worker resolves tracks from the jobs channel until it closes.
func (p *Prefetcher) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan prefetchJob,
	outcomes chan<- prefetchOutcome,
	opts PrefetchOpts,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		outcomes <- prefetchOutcome{index: job.index, result: p.resolveOne(ctx, job.id, opts)}
	}
}

func (p *Prefetcher) resolveOne(ctx context.Context, id models.TrackID, opts PrefetchOpts) models.PrefetchResult {
	started := time.Now()
	res := models.PrefetchResult{TrackID: id}

	s, err := p.resolver.Resolve(ctx, id, opts.PlaylistID, opts.Quality, opts.Metered)
	res.Duration = time.Since(started)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Profile = s.Profile
	res.ExpiresAt = s.ExpiresAt
	return res
}
