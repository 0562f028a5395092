package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/ytplay/internal/formatter"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/desertthunder/ytplay/internal/stream"
	"github.com/desertthunder/ytplay/internal/ui"
	"github.com/urfave/cli/v3"
)

// Resolve resolves one track to a playable stream and prints it.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	id := models.TrackID(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
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

	r.logger.Info("resolving track", "track", id, "quality", policy, "metered", metered)

	s, err := resolver.Resolve(ctx, id, cmd.String("playlist"), policy, metered)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", id, err)
	}

	if cmd.String("format") == "json" {
		return r.writeJSON(s, true)
	}
	return r.writeBytes(formatter.StreamToText(*s, time.Now()))
}

// Probe checks whether a stream URL answers a HEAD request.
func (r *Runner) Probe(ctx context.Context, cmd *cli.Command) error {
	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	started := time.Now()
	ok := r.validator().IsReachable(ctx, url)
	elapsed := time.Since(started).Truncate(time.Millisecond)

	if !ok {
		r.writePlain("%s %s (%s)\n", ui.Failure("✗ unreachable"), url, elapsed)
		return fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, url)
	}
	r.writePlain("%s %s (%s)\n", ui.Success("✓ reachable"), url, elapsed)
	return nil
}

// Profiles lists the client profile registry in the order the resolver tries it.
func (r *Runner) Profiles(ctx context.Context, cmd *cli.Command) error {
	registry, err := stream.RegistryFromConfig(r.config.Resolver)
	if err != nil {
		return err
	}

	if cmd.String("format") == "json" {
		return r.writeJSON(struct {
			Primary   models.ClientProfile   `json:"primary"`
			Creator   models.ClientProfile   `json:"creator"`
			Fallbacks []models.ClientProfile `json:"fallbacks"`
		}{registry.Primary(), registry.Creator(), registry.Fallbacks()}, true)
	}

	r.writePlainHeader("Client profiles")
	return r.writeBytes(formatter.ProfilesToText(registry.Primary(), registry.Creator(), registry.Fallbacks()))
}
