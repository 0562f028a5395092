package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytplay/internal/cache"
	"github.com/desertthunder/ytplay/internal/formatter"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/repositories"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/urfave/cli/v3"
)

// persistentCache opens the configured backend, refusing the in-process one
// because it would always be empty.
func (r *Runner) persistentCache(ctx context.Context) (cache.FormatCache, func(), error) {
	if r.config.Cache.Backend == "memory" {
		return nil, nil, fmt.Errorf("%w: cache commands need the redis or sqlite backend", shared.ErrInvalidConfig)
	}
	return r.openCache(ctx)
}

// streamCache opens the sqlite stream cache for commands only it supports.
func (r *Runner) streamCache() (*repositories.StreamCacheRepository, func(), error) {
	if r.config.Cache.Backend != "sqlite" {
		return nil, nil, fmt.Errorf("%w: listing and purging need the sqlite backend", shared.ErrNotImplemented)
	}
	db, err := r.openDatabase()
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewStreamCacheRepository(db), func() { db.Close() }, nil
}

// CacheGet prints the cached format for a track.
func (r *Runner) CacheGet(ctx context.Context, cmd *cli.Command) error {
	id := models.TrackID(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	c, cleanup, err := r.persistentCache(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	f, ok := c.Get(ctx, id)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrCacheMiss, id)
	}

	if cmd.String("format") == "json" {
		return r.writeJSON(f, true)
	}
	return r.writeBytes(formatter.StreamToText(f.Stream(), time.Now()))
}

// CacheInvalidate drops the cached format for each given track.
func (r *Runner) CacheInvalidate(ctx context.Context, cmd *cli.Command) error {
	ids, err := trackIDs(cmd)
	if err != nil {
		return err
	}

	c, cleanup, err := r.persistentCache(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var errs []error
	for _, id := range ids {
		if err := c.Invalidate(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		r.logger.Info("invalidated cached format", "track", id)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.writePlain("✓ Invalidated %d track(s)\n", len(ids))
	return nil
}

// CacheList lists unexpired cached formats.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	repo, cleanup, err := r.streamCache()
	if err != nil {
		return err
	}
	defer cleanup()

	formats, err := repo.List(ctx)
	if err != nil {
		return err
	}

	switch cmd.String("format") {
	case "json":
		return r.writeJSON(formats, true)
	case "csv":
		data, err := formatter.CachedFormatsToCSV(formats)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	default:
		return r.writeBytes(formatter.CachedFormatsToText(formats, time.Now()))
	}
}

// CachePurge deletes expired rows from the sqlite cache.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	repo, cleanup, err := r.streamCache()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := repo.Purge(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("purged expired formats", "count", n)
	r.writePlain("✓ Purged %d expired format(s)\n", n)
	return nil
}
