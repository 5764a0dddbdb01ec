// Package app wires all ricardo subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and blocks until the context is cancelled,
// and Shutdown tears everything down in order.
//
// For testing, inject in-memory implementations via functional options
// (WithStore, WithSemanticIndex). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xChin/ricardo/internal/archive"
	"github.com/0xChin/ricardo/internal/archive/postgres"
	"github.com/0xChin/ricardo/internal/capture"
	"github.com/0xChin/ricardo/internal/config"
	"github.com/0xChin/ricardo/internal/discord"
	"github.com/0xChin/ricardo/internal/feed"
	"github.com/0xChin/ricardo/internal/health"
	"github.com/0xChin/ricardo/internal/mcptools"
	"github.com/0xChin/ricardo/internal/observe"
	"github.com/0xChin/ricardo/internal/summary"
	"github.com/0xChin/ricardo/internal/transcript"
	"github.com/0xChin/ricardo/internal/transcript/phonetic"
	"github.com/0xChin/ricardo/pkg/audio"
	"github.com/0xChin/ricardo/pkg/provider/embeddings"
	"github.com/0xChin/ricardo/pkg/provider/llm"
	"github.com/0xChin/ricardo/pkg/provider/stt"
)

// captureFormat is the PCM format delivered by the Discord voice transport.
var captureFormat = audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16}

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	Embeddings embeddings.Provider
	Audio      audio.Platform
}

// App owns all subsystem lifetimes and orchestrates the recording pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logger    *slog.Logger

	store      archive.Store
	index      archive.SemanticIndex
	hub        *feed.Hub
	pipeline   *transcript.Pipeline
	dispatcher *capture.AsyncDispatcher
	engine     *capture.Engine
	summariser *summary.Summariser
	recorder   *discord.Recorder
	server     *http.Server
	checkers   []health.Checker

	// closers are called in reverse-init order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an archive store instead of creating one from config.
func WithStore(s archive.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSemanticIndex injects a semantic index instead of creating one from
// config.
func WithSemanticIndex(i archive.SemanticIndex) Option {
	return func(a *App) { a.index = i }
}

// WithHealthCheckers adds readiness checks beyond the built-in archive one
// (e.g. the Discord gateway).
func WithHealthCheckers(cs ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, cs...) }
}

// WithMetrics overrides the metrics sink. Defaults to the process-wide
// instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). An STT provider is
// required; everything else degrades gracefully when absent.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: an stt provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initCapture()
	if err := a.initRecorder(); err != nil {
		return nil, fmt.Errorf("app: init recorder: %w", err)
	}
	if err := a.initHTTP(); err != nil {
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	return a, nil
}

// initArchive connects the transcript store: Postgres when a DSN is
// configured, in-memory otherwise.
func (a *App) initArchive(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	if dsn := a.cfg.Archive.PostgresDSN; dsn != "" {
		dims := a.cfg.Archive.EmbeddingDimensions
		if dims == 0 {
			dims = 1536
		}
		pg, err := postgres.NewStore(ctx, dsn, dims)
		if err != nil {
			return err
		}
		a.store = pg
		if a.index == nil {
			a.index = pg
		}
		a.checkers = append(a.checkers, health.Checker{Name: "archive", Check: pg.Ping})
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		a.logger.Info("archive connected", "backend", "postgres", "embedding_dims", dims)
		return nil
	}

	mem := archive.NewMemStore()
	a.store = mem
	if a.index == nil {
		a.index = mem
	}
	a.logger.Warn("no archive DSN configured, transcripts are kept in memory only")
	return nil
}

// initPipeline builds the turn processing pipeline and the live feed hub.
func (a *App) initPipeline() error {
	a.hub = feed.NewHub(
		feed.WithLogger(a.logger),
		feed.WithMetrics(a.metrics),
	)

	pipeOpts := []transcript.PipelineOption{
		transcript.WithFeed(a.hub),
		transcript.WithPipelineLogger(a.logger),
		transcript.WithPipelineMetrics(a.metrics),
	}
	if terms := a.cfg.Vocabulary.Terms; len(terms) > 0 {
		corrector := transcript.NewCorrector(phonetic.New(), terms)
		pipeOpts = append(pipeOpts, transcript.WithCorrector(corrector))
		a.logger.Info("vocabulary correction enabled", "terms", len(terms))
	}
	if a.providers.Embeddings != nil {
		pipeOpts = append(pipeOpts, transcript.WithSemanticIndex(a.index, a.providers.Embeddings))
	}

	pipeline, err := transcript.NewPipeline(a.providers.STT, a.store, pipeOpts...)
	if err != nil {
		return err
	}
	a.pipeline = pipeline
	return nil
}

// initCapture builds the dispatcher and the capture engine on top of the
// pipeline.
func (a *App) initCapture() {
	dispatchOpts := []capture.DispatcherOption{
		capture.WithDispatchLogger(a.logger),
		capture.WithDropHook(func() {
			a.metrics.TurnsDropped.Add(context.Background(), 1)
		}),
		capture.WithDoneHook(func(err error, elapsed time.Duration) {
			a.metrics.DispatchDuration.Record(context.Background(), elapsed.Seconds())
			if err != nil {
				a.metrics.DispatchErrors.Add(context.Background(), 1)
			}
		}),
	}
	if n := a.cfg.Capture.DispatchWorkers; n > 0 {
		dispatchOpts = append(dispatchOpts, capture.WithWorkers(n))
	}
	if n := a.cfg.Capture.DispatchQueueSize; n > 0 {
		dispatchOpts = append(dispatchOpts, capture.WithQueueSize(n))
	}
	a.dispatcher = capture.NewAsyncDispatcher(a.pipeline.Handler(), dispatchOpts...)
	a.closers = append(a.closers, a.dispatcher.Close)

	a.engine = capture.New(capture.Config{
		QuietPeriod: a.cfg.Capture.QuietPeriod(),
		SpoolDir:    a.cfg.Capture.SpoolDir,
		Format:      captureFormat,
	}, a.dispatcher,
		capture.WithLogger(a.logger),
		capture.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.engine.Close)
}

// initRecorder builds the summariser and the voice session recorder. Both
// are optional: the summariser needs an LLM, the recorder an audio platform.
func (a *App) initRecorder() error {
	if a.providers.LLM != nil && a.cfg.Summary.Enabled {
		sumOpts := []summary.Option{
			summary.WithLogger(a.logger),
			summary.WithMetrics(a.metrics),
		}
		if p := a.cfg.Summary.SystemPrompt; p != "" {
			sumOpts = append(sumOpts, summary.WithSystemPrompt(p))
		}
		if n := a.cfg.Summary.MaxTokens; n > 0 {
			sumOpts = append(sumOpts, summary.WithMaxTokens(n))
		}
		s, err := summary.New(a.providers.LLM, a.store, sumOpts...)
		if err != nil {
			return err
		}
		a.summariser = s
	}

	if a.providers.Audio == nil {
		a.logger.Warn("no audio platform configured, recording commands are unavailable")
		return nil
	}

	recOpts := []discord.RecorderOption{
		discord.WithDrainer(a.dispatcher),
		discord.WithRecorderLogger(a.logger),
	}
	if a.summariser != nil {
		recOpts = append(recOpts, discord.WithSummariser(a.summariser))
	}
	rec, err := discord.NewRecorder(a.providers.Audio, a.engine, a.store, recOpts...)
	if err != nil {
		return err
	}
	a.recorder = rec
	return nil
}

// initHTTP assembles the server mux: metrics, health, the live feed, and
// the MCP archive tools.
func (a *App) initHTTP() error {
	mcpOpts := []mcptools.Option{
		mcptools.WithLogger(a.logger),
		mcptools.WithMetrics(a.metrics),
	}
	if a.providers.Embeddings != nil {
		mcpOpts = append(mcpOpts, mcptools.WithSemanticSearch(a.index, a.providers.Embeddings))
	}
	if a.summariser != nil {
		mcpOpts = append(mcpOpts, mcptools.WithSummariser(a.summariser))
	}
	tools, err := mcptools.New(a.store, mcpOpts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /feed", a.hub)
	mux.Handle("/mcp", tools.Handler())

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Recorder returns the voice session recorder, or nil when no audio
// platform is configured. main.go wires it to the slash command handlers.
func (a *App) Recorder() *discord.Recorder {
	return a.recorder
}

// Handler returns the HTTP handler serving metrics, health, the live feed,
// and the MCP endpoint. Exposed for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info("http server listening", "addr", a.cfg.Server.ListenAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops any active recording and tears down all subsystems in
// reverse-init order. It respects the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.recorder != nil {
			if _, err := a.recorder.Stop(ctx); err != nil && !errors.Is(err, capture.ErrNoActiveSession) {
				a.logger.Warn("stopping active recording failed", "err", err)
			}
		}

		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("http server shutdown error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
