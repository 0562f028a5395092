package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytplay/internal/cache"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/player"
	"github.com/desertthunder/ytplay/internal/repositories"
	"github.com/desertthunder/ytplay/internal/services"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/desertthunder/ytplay/internal/stream"
	"github.com/desertthunder/ytplay/internal/stream/cipher"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	service    services.PlayerService
	timestamps services.SignatureTimestampSource
	httpClient *http.Client
	starter    player.Starter
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Service and Timestamps default to a [services.YouTubeService] built from the config.
type RunnerOpts struct {
	Config     *shared.Config
	Service    services.PlayerService
	Timestamps services.SignatureTimestampSource
	HTTPClient *http.Client
	Starter    player.Starter
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Starter == nil {
		opts.Starter = player.MPVStarter(opts.Config.Playback.MPVPath)
	}

	return &Runner{
		config:     opts.Config,
		service:    opts.Service,
		timestamps: opts.Timestamps,
		httpClient: opts.HTTPClient,
		starter:    opts.Starter,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger swaps the logger, e.g. for a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, resolveCommand, probeCommand, profilesCommand, prefetchCommand, playCommand, cacheCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// credentials loads the configured session credentials. A broken credential
// source is logged and the session continues signed out.
func (r *Runner) credentials() services.Credentials {
	creds, err := services.CredentialsFromConfig(r.config.Auth)
	if err != nil {
		r.logger.Warn("ignoring credentials", "error", err)
		return services.Credentials{}
	}
	return creds
}

// metadataService returns the injected service or builds one against the configured proxy.
func (r *Runner) metadataService() (services.PlayerService, services.SignatureTimestampSource) {
	if r.service != nil {
		return r.service, r.timestamps
	}

	client := *r.httpClient
	client.Timeout = r.config.Service.Timeout.Duration
	svc := services.NewYouTubeService(services.YouTubeServiceOpts{
		BaseURL:           r.config.Service.Endpoint,
		Credentials:       r.credentials(),
		HTTPClient:        &client,
		RequestsPerSecond: r.config.Service.RequestsPerSecond,
		Logger:            r.logger,
	})
	r.service, r.timestamps = svc, svc
	return svc, svc
}

// cipherPrograms parses the configured programs. Empty programs stay nil.
func (r *Runner) cipherPrograms() (sig, n, alt *cipher.Program, err error) {
	cfg := r.config.Cipher
	parse := func(ops string) (*cipher.Program, error) {
		if ops == "" {
			return nil, nil
		}
		p, err := cipher.Parse(cfg.Version, ops)
		if err != nil {
			return nil, fmt.Errorf("%w: cipher program %q: %v", shared.ErrInvalidConfig, ops, err)
		}
		return p, nil
	}

	if sig, err = parse(cfg.SignatureOps); err != nil {
		return
	}
	if n, err = parse(cfg.NOps); err != nil {
		return
	}
	alt, err = parse(cfg.NAltOps)
	return
}

// deobfuscator builds the strategy chain: raw url, local cipher, external
// extractor, then the alternate stream set.
func (r *Runner) deobfuscator(sig *cipher.Program) *stream.Deobfuscator {
	strategies := []stream.Strategy{stream.RawURLStrategy{}}
	if sig != nil {
		strategies = append(strategies, stream.CipherStrategy{Decoder: sig})
	}
	strategies = append(strategies,
		stream.ExtractorStrategy{Client: stream.NewYouTubeExtractor(r.httpClient)},
		stream.AlternateStreamsStrategy{Source: stream.NewYtdlpSource()},
	)
	return stream.NewDeobfuscator(r.logger, strategies...)
}

func (r *Runner) validator() *stream.Validator {
	return stream.NewValidator(stream.ValidatorOpts{
		HTTPClient: r.httpClient,
		UserAgent:  r.config.Resolver.UserAgent,
		Cookie:     r.credentials().Cookie,
		Timeout:    r.config.Resolver.ValidateTimeout.Duration,
		Logger:     r.logger,
	})
}

// newResolver wires a resolver over the configured cache backend. The
// returned cleanup releases the backend.
func (r *Runner) newResolver(ctx context.Context) (*stream.Resolver, func(), error) {
	registry, err := stream.RegistryFromConfig(r.config.Resolver)
	if err != nil {
		return nil, nil, err
	}

	sig, n, alt, err := r.cipherPrograms()
	if err != nil {
		return nil, nil, err
	}

	formatCache, cleanup, err := r.openCache(ctx)
	if err != nil {
		return nil, nil, err
	}

	service, timestamps := r.metadataService()
	opts := stream.ResolverOpts{
		Service:      service,
		Timestamps:   timestamps,
		Registry:     registry,
		Deobfuscator: r.deobfuscator(sig),
		Validator:    r.validator(),
		Cache:        formatCache,
		SafetyMargin: r.config.Cache.SafetyMargin.Duration,
		Logger:       r.logger,
	}
	if n != nil {
		opts.NTransform = n
	}
	if alt != nil {
		opts.AltNTransform = alt
	}
	if token := r.config.Resolver.OriginToken; token != "" {
		opts.OriginTokens = stream.StaticOriginToken(token)
	}

	resolver, err := stream.NewResolver(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return resolver, cleanup, nil
}

// openCache opens the configured cache backend.
func (r *Runner) openCache(ctx context.Context) (cache.FormatCache, func(), error) {
	switch r.config.Cache.Backend {
	case "redis":
		c, err := cache.NewRedisCache(ctx, r.config.Cache.Redis, r.logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {
			r.logStats(c.Stats(context.WithoutCancel(ctx)))
			c.Close()
		}, nil
	case "sqlite":
		db, err := r.openDatabase()
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewStreamCacheRepository(db), func() { db.Close() }, nil
	default:
		c := cache.NewMemoryCache(time.Minute)
		return c, func() {
			r.logStats(c.Stats())
			c.Close()
		}, nil
	}
}

func (r *Runner) logStats(s cache.Stats) {
	r.logger.Debug("cache stats", "hits", s.Hits, "misses", s.Misses, "sets", s.Sets, "evictions", s.Evictions, "size", s.CurrentSize)
}

// openDatabase opens the configured database and applies pending migrations.
func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// quality reads --quality and --metered, falling back to the config.
func (r *Runner) quality(cmd *cli.Command) (models.QualityPolicy, bool, error) {
	raw := r.config.Resolver.Quality
	if cmd.IsSet("quality") {
		raw = cmd.String("quality")
	}
	policy, err := models.ParseQualityPolicy(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%w: --quality: %v", shared.ErrInvalidFlag, err)
	}

	metered := r.config.Resolver.Metered
	if cmd.IsSet("metered") {
		metered = cmd.Bool("metered")
	}
	return policy, metered, nil
}

// trackIDs collects track ids from the command arguments.
func trackIDs(cmd *cli.Command) ([]models.TrackID, error) {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: at least one track id", shared.ErrMissingArgument)
	}

	ids := make([]models.TrackID, len(args))
	for i, a := range args {
		ids[i] = models.TrackID(a)
	}
	return ids, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
