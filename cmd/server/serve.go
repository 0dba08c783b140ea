package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	persistlog "dyewash.ai/internal/persistence/log"
	"dyewash.ai/internal/persistence/redispub"
	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/tuning"
	"dyewash.ai/internal/sim/world"
	"dyewash.ai/internal/telemetry"
	"dyewash.ai/internal/transport/ws"
)

type serveOptions struct {
	addr      string
	worldID   string
	dataDir   string
	logLevel  string
	logFormat string
	disableDB bool
	admin     bool
}

func newServeCommand() *cobra.Command {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the world loop and the host bridge endpoint",
		Example: `  # Serve with the default tuning
  dyewash-server serve

  # Pick a world id and data directory
  dyewash-server serve --world overworld --data /var/lib/dyewash`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), tuningPath(cmd), o)
		},
	}
	cmd.Flags().StringVar(&o.addr, "addr", ":8080", "http listen address")
	cmd.Flags().StringVar(&o.worldID, "world", "overworld", "world id")
	cmd.Flags().StringVar(&o.dataDir, "data", "./data", "runtime data directory")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "log level (overrides tuning)")
	cmd.Flags().StringVar(&o.logFormat, "log-format", "", "console or json (overrides tuning)")
	cmd.Flags().BoolVar(&o.disableDB, "disable-db", false, "disable the sqlite index")
	cmd.Flags().BoolVar(&o.admin, "admin", true, "serve loopback-only admin endpoints")
	return cmd
}

func runServe(ctx context.Context, tp string, o serveOptions) error {
	tune, err := tuning.Load(tp)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if o.logLevel != "" {
		tune.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		tune.Log.Format = o.logFormat
	}
	logger, err := telemetry.NewLogger(tune.Log.Level, tune.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	profile, err := tune.ResolveProfile()
	if err != nil {
		logger.Error().Err(err).Str("using", profile.Tag).Msg("unknown profile, falling back to newest")
	}
	cat, err := tune.Catalog(profile)
	if err != nil {
		return fmt.Errorf("material catalog: %w", err)
	}

	runID := uuid.NewString()
	runDir := filepath.Join(o.dataDir, "worlds", o.worldID, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}

	w, err := world.New(world.ConfigFromTuning(o.worldID, tune, profile), cat, logger)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	w.SetRunID(runID)

	if err := persistlog.WriteManifest(runDir, persistlog.RunManifest{
		RunID:         runID,
		WorldID:       o.worldID,
		Profile:       profile.Tag,
		CatalogDigest: cat.Digest(),
		TuningPath:    tp,
		StartedAt:     time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("run manifest: %w", err)
	}

	var (
		tickLoggers  multiTickLogger
		auditLoggers multiAuditLogger
		closers      []func() error
	)
	if tune.TickLog {
		tl := persistlog.NewTickLogger(runDir)
		tickLoggers = append(tickLoggers, tl)
		closers = append(closers, tl.Close)
	}
	al := persistlog.NewAuditLogger(runDir)
	auditLoggers = append(auditLoggers, al)
	closers = append(closers, al.Close)
	xl := persistlog.NewTransformLogger(runDir, telemetry.Component(logger, "transform-log"))
	w.AddTransformSink(xl)
	closers = append(closers, xl.Close)

	metrics := telemetry.NewMetrics(w)

	backend := tune.Index.Backend
	if o.disableDB {
		backend = "none"
	}
	idx, err := openIndex(runDir, backend, telemetry.Component(logger, "index"))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if idx != nil {
		upsertCatalog(idx, profile, cat, tune, logger)
		tickLoggers = append(tickLoggers, idx)
		auditLoggers = append(auditLoggers, idx)
		w.AddTransformSink(idx)
		closers = append(closers, idx.Close)
		metrics.Gauge("index_queue_depth", "Rows waiting for the sqlite writer.", func() float64 { return float64(idx.Stats().QueueDepth) })
		metrics.Counter("index_dropped_total", "Rows dropped because the index queue was full.", func() float64 {
			s := idx.Stats()
			return float64(s.DropTickTotal + s.DropAuditTotal + s.DropTransformTotal)
		})
	}

	if tune.Redis.Addr != "" {
		pub, err := redispub.New(redispub.Config{Addr: tune.Redis.Addr, Channel: tune.Redis.Channel}, o.worldID, runID, telemetry.Component(logger, "redis"))
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := pub.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Str("addr", tune.Redis.Addr).Msg("redis unreachable, publishing anyway")
		}
		cancel()
		w.AddTransformSink(pub)
		closers = append(closers, pub.Close)
		metrics.Counter("redis_published_total", "Transformations published to redis.", func() float64 { return float64(pub.Stats().Published) })
		metrics.Counter("redis_failed_total", "Transformations that failed to publish.", func() float64 { return float64(pub.Stats().Failed) })
	}

	if len(tickLoggers) > 0 {
		w.SetTickLogger(tickLoggers)
	}
	w.SetAuditLogger(auditLoggers)

	validator, err := protocol.NewValidator()
	if err != nil {
		return fmt.Errorf("protocol schemas: %w", err)
	}

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("world stopped")
		}
	}()

	srv := &http.Server{
		Addr: o.addr,
		Handler: newMux(httpDeps{
			world:   w,
			metrics: metrics,
			ws:      ws.NewServer(w, validator, telemetry.Component(logger, "ws")),
			admin:   o.admin,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().
		Str("addr", o.addr).
		Str("world", o.worldID).
		Str("run", runID).
		Str("profile", profile.Tag).
		Int("materials", cat.Len()).
		Msg("listening")
	serveErr := srv.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	} else {
		w.Stop()
	}

	// Sinks such as the redis publisher are closed only once the world loop has exited.
	<-worldDone
	closeAll(closers, logger)
	logger.Info().Uint64("tick", w.CurrentTick()).Msg("stopped")
	return serveErr
}

func closeAll(closers []func() error, logger zerolog.Logger) {
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Warn().Err(err).Msg("close")
		}
	}
}
