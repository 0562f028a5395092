package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/cache"
	"github.com/desertthunder/ytplay/internal/metrics"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/services"
	"github.com/desertthunder/ytplay/internal/shared"
	"golang.org/x/sync/singleflight"
)

// DefaultSafetyMargin is how long a cached stream must still be valid to be reused.
const DefaultSafetyMargin = 30 * time.Second

// resolveTimeout bounds a shared resolution once its callers have gone.
const resolveTimeout = 30 * time.Second

// URLValidator probes a candidate URL.
type URLValidator interface {
	IsReachable(ctx context.Context, rawURL string) bool
}

// ResolverOpts wires a [Resolver]. Service, Registry and Deobfuscator are required.
type ResolverOpts struct {
	Service       services.PlayerService
	Timestamps    services.SignatureTimestampSource
	Registry      *Registry
	Deobfuscator  *Deobfuscator
	NTransform    NTransformer
	AltNTransform NTransformer
	OriginTokens  OriginTokenProvider
	Validator     URLValidator
	Cache         cache.FormatCache
	SafetyMargin  time.Duration
	Now           func() time.Time
	Logger        *log.Logger
}

// Resolver turns track ids into [models.ResolvedStream]s.
type Resolver struct {
	service      services.PlayerService
	timestamps   services.SignatureTimestampSource
	registry     *Registry
	deobfuscator *Deobfuscator
	nTransform   NTransformer
	altN         NTransformer
	tokens       OriginTokenProvider
	validator    URLValidator
	cache        cache.FormatCache
	margin       time.Duration
	now          func() time.Time
	logger       *log.Logger
	group        singleflight.Group
}

// NewResolver creates a resolver from opts.
func NewResolver(opts ResolverOpts) (*Resolver, error) {
	if opts.Service == nil || opts.Registry == nil || opts.Deobfuscator == nil {
		return nil, fmt.Errorf("%w: resolver needs a service, registry and deobfuscator", shared.ErrInvalidConfig)
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator(ValidatorOpts{Logger: opts.Logger})
	}
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = DefaultSafetyMargin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}

	return &Resolver{
		service:      opts.Service,
		timestamps:   opts.Timestamps,
		registry:     opts.Registry,
		deobfuscator: opts.Deobfuscator,
		nTransform:   opts.NTransform,
		altN:         opts.AltNTransform,
		tokens:       opts.OriginTokens,
		validator:    opts.Validator,
		cache:        opts.Cache,
		margin:       opts.SafetyMargin,
		now:          opts.Now,
		logger:       opts.Logger,
	}, nil
}

// Resolve returns a playable stream for id. A cached stream is reused while it
// is valid for longer than the safety margin. Concurrent calls for the same
// track and policy share one resolution.
func (r *Resolver) Resolve(ctx context.Context, id models.TrackID, playlistID string, policy models.QualityPolicy, metered bool) (*models.ResolvedStream, error) {
	if s, ok := r.cached(ctx, id); ok {
		metrics.RecordResolution(s.Profile, "cached")
		return s, nil
	}

	// The shared resolution outlives any single caller; each caller waits on
	// its own ctx.
	detached := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%s|%s|%t", id, policy, metered)
	ch := r.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(detached, resolveTimeout)
		defer cancel()

		start := time.Now()
		s, err := r.resolve(ctx, id, playlistID, policy, metered)
		metrics.ObserveResolveDuration(time.Since(start))
		if err != nil {
			return nil, err
		}

		if r.cache != nil {
			if err := r.cache.Put(ctx, models.NewCachedFormat(*s)); err != nil {
				r.logger.Warn("failed to cache stream", "track", id, "error", err)
			}
		}
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		s := *res.Val.(*models.ResolvedStream)
		return &s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops every cached artifact for id and forces the signature
// timestamp to be fetched again. Safe to call for ids that were never cached.
func (r *Resolver) Invalidate(ctx context.Context, id models.TrackID) error {
	if r.timestamps != nil {
		r.timestamps.ForceRefresh()
	}
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, id)
}

func (r *Resolver) cached(ctx context.Context, id models.TrackID) (*models.ResolvedStream, bool) {
	if r.cache == nil {
		return nil, false
	}
	c, ok := r.cache.Get(ctx, id)
	if !ok {
		return nil, false
	}
	s := c.Stream()
	if s.ExpiresWithin(r.now(), r.margin) {
		return nil, false
	}
	return &s, true
}

// scan carries the per-resolution state shared by every profile attempt.
type scan struct {
	id             models.TrackID
	policy         models.QualityPolicy
	metered        bool
	allowExpensive bool
	privatelyOwned bool
}

func (r *Resolver) resolve(ctx context.Context, id models.TrackID, playlistID string, policy models.QualityPolicy, metered bool) (*models.ResolvedStream, error) {
	logger := shared.WithLogger(r.logger, "track", id)
	authed := r.service.Authenticated()
	sts := r.signatureTimestamp(ctx)

	mainProfile := r.registry.Primary()
	main, err := r.fetch(ctx, id, playlistID, mainProfile, sts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("primary profile failed", "profile", mainProfile.Name, "error", err)
	}

	failure := &ResolutionError{TrackID: id, Kind: KindBadStatus, Profile: mainProfile.Name, Err: err}
	if main != nil {
		failure.Status, failure.Reason, failure.Err = main.Status, main.Reason, nil
	}

	restricted := main != nil && main.Status.IsAgeRestricted()
	if restricted && authed {
		creator := r.registry.Creator()
		resp, err := r.fetch(ctx, id, playlistID, creator, sts)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("creator retry failed", "error", err)
		case resp.Status.IsOK():
			logger.Debug("adopted creator response", "profile", creator.Name)
			main, mainProfile = resp, creator
		default:
			logger.Debug("creator retry unplayable", "status", resp.Status)
		}
	}

	sc := scan{
		id:             id,
		policy:         policy,
		metered:        metered,
		allowExpensive: !restricted,
		privatelyOwned: main != nil && main.PrivatelyOwned,
	}

	last := r.registry.Len() - 1
	start := -1
	switch {
	case main == nil || main.Status.IsAgeRestricted():
		start = 0
	case sc.privatelyOwned:
		start = min(1, last)
	}

	for i := start; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		profile, resp := mainProfile, main
		if i >= 0 {
			profile = r.registry.At(i)
			if profile.RequiresAuth && !authed {
				logger.Debug("skipping profile without credentials", "profile", profile.Name)
				continue
			}

			resp, err = r.fetch(ctx, id, playlistID, profile, sts)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Debug("profile request failed", "profile", profile.Name, "error", err)
				failure = &ResolutionError{TrackID: id, Kind: KindBadStatus, Profile: profile.Name, Err: err}
				metrics.RecordResolution(profile.Name, string(KindBadStatus))
				continue
			}
		}

		s, ferr := r.tryProfile(ctx, sc, profile, resp, i == last || sc.privatelyOwned)
		if ferr != nil {
			logger.Debug("profile rejected", "profile", profile.Name, "kind", ferr.Kind, "status", ferr.Status)
			failure = ferr
			metrics.RecordResolution(profile.Name, string(ferr.Kind))
			continue
		}

		logger.Info("stream resolved", "profile", profile.Name, "format", s.FormatID, "expires", s.ExpiresAt.Format(time.RFC3339))
		metrics.RecordResolution(profile.Name, "resolved")
		return s, nil
	}

	logger.Warn("stream resolution failed", "kind", failure.Kind, "status", failure.Status)
	return nil, failure
}

// tryProfile runs format selection, URL resolution, transforms and validation
// against one descriptor. acceptUnvalidated skips the probe.
func (r *Resolver) tryProfile(ctx context.Context, sc scan, profile models.ClientProfile, resp *models.PlaybackDescriptor, acceptUnvalidated bool) (*models.ResolvedStream, *ResolutionError) {
	fail := func(kind FailureKind, reason string) *ResolutionError {
		return &ResolutionError{TrackID: sc.id, Kind: kind, Profile: profile.Name, Status: resp.Status, Reason: reason}
	}

	if !resp.Status.IsOK() {
		return nil, fail(KindBadStatus, resp.Reason)
	}

	format, ok := SelectFormat(resp.Formats, sc.policy, sc.metered)
	if !ok {
		return nil, fail(KindNoFormat, "")
	}

	base, ok := r.deobfuscator.ResolveURL(ctx, URLRequest{
		TrackID:        sc.id,
		Format:         format,
		Descriptor:     resp,
		AllowExpensive: sc.allowExpensive,
	})
	if !ok {
		return nil, fail(KindNoURL, "")
	}

	streamURL, token := base, ""
	if profile.SupportsOriginToken {
		if u, err := applyN(base, r.nTransform); err != nil {
			r.logger.Debug("n transform failed, using raw url", "track", sc.id, "profile", profile.Name, "error", err)
		} else {
			streamURL = u
		}
		token = r.originToken(ctx, profile)
		streamURL = withOriginToken(streamURL, token)
	}

	if resp.ExpiresInSeconds == nil {
		return nil, fail(KindMissingExpiry, "")
	}
	ttl := time.Duration(*resp.ExpiresInSeconds) * time.Second

	accepted := acceptUnvalidated || r.validator.IsReachable(ctx, streamURL)
	if !accepted && profile.SupportsOriginToken && r.altN != nil {
		if alt, err := applyN(base, r.altN); err == nil {
			alt = withOriginToken(alt, token)
			if alt != streamURL && r.validator.IsReachable(ctx, alt) {
				streamURL, accepted = alt, true
			}
		}
	}
	if !accepted {
		return nil, fail(KindNoURL, "validation failed")
	}

	return &models.ResolvedStream{
		TrackID:   sc.id,
		URL:       streamURL,
		ExpiresAt: r.now().Add(ttl),
		FormatID:  format.ID,
		MimeType:  format.MimeType,
		Bitrate:   format.Bitrate,
		Profile:   profile.Name,
	}, nil
}

func (r *Resolver) fetch(ctx context.Context, id models.TrackID, playlistID string, profile models.ClientProfile, sts *int) (*models.PlaybackDescriptor, error) {
	req := services.PlayerRequest{
		TrackID:            id,
		PlaylistID:         playlistID,
		Profile:            profile,
		SignatureTimestamp: sts,
	}
	if profile.SupportsOriginToken {
		req.OriginToken = r.originToken(ctx, profile)
	}
	return r.service.Player(ctx, req)
}

func (r *Resolver) signatureTimestamp(ctx context.Context) *int {
	if r.timestamps == nil {
		return nil
	}
	sts, err := r.timestamps.SignatureTimestamp(ctx)
	if err != nil {
		r.logger.Warn("signature timestamp unavailable", "error", err)
		return nil
	}
	return &sts
}

func (r *Resolver) originToken(ctx context.Context, profile models.ClientProfile) string {
	if r.tokens == nil {
		return ""
	}
	tok, err := r.tokens.OriginToken(ctx, profile)
	if err != nil {
		r.logger.Debug("origin token unavailable", "profile", profile.Name, "error", err)
		return ""
	}
	return tok
}
