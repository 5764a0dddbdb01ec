// Command ricardo runs the voice session recording bot: it joins Discord
// voice channels on command, captures per-speaker speaking turns,
// transcribes them, and serves the archive over a live feed and MCP tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/0xChin/ricardo/internal/app"
	"github.com/0xChin/ricardo/internal/config"
	"github.com/0xChin/ricardo/internal/discord"
	"github.com/0xChin/ricardo/internal/health"
	"github.com/0xChin/ricardo/internal/observe"
	"github.com/0xChin/ricardo/pkg/audio"
	"github.com/0xChin/ricardo/pkg/provider/embeddings"
	oaembed "github.com/0xChin/ricardo/pkg/provider/embeddings/openai"
	"github.com/0xChin/ricardo/pkg/provider/llm"
	"github.com/0xChin/ricardo/pkg/provider/llm/anyllm"
	"github.com/0xChin/ricardo/pkg/provider/stt"
	"github.com/0xChin/ricardo/pkg/provider/stt/whisper"
)

const version = "1.0.0"

const shutdownTimeout = 15 * time.Second

// anyLLMBackends are the chat completion backends supported through
// any-llm-go. Each is registered under its own provider name.
var anyLLMBackends = []string{
	"openai", "anthropic", "gemini", "mistral", "groq",
	"deepseek", "xai", "openrouter", "ollama",
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ricardo %s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found (create one or pass -config)", configPath)
		}
		return err
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting ricardo", "version", version, "config", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "ricardo",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown error", "err", err)
		}
	}()

	registry := config.NewRegistry()
	registerBuiltinProviders(registry)

	// The Discord bot is optional: without a token the HTTP surfaces
	// (feed, MCP, metrics) still serve the existing archive.
	var bot *discord.Bot
	if cfg.Discord.Token != "" {
		bot, err = discord.New(cfg.Discord, logger)
		if err != nil {
			return fmt.Errorf("connect discord: %w", err)
		}
		defer bot.Close()
		registry.RegisterAudio("discord", func(config.ProviderEntry) (audio.Platform, error) {
			return bot.Platform(), nil
		})
	} else {
		logger.Warn("no discord token configured, running without the bot")
	}

	providers := buildProviders(registry, cfg, logger)
	if bot != nil && providers.Audio == nil {
		providers.Audio = bot.Platform()
	}

	appOpts := []app.Option{app.WithLogger(logger)}
	if bot != nil {
		appOpts = append(appOpts, app.WithHealthCheckers(health.Checker{
			Name:  "discord",
			Check: bot.Healthcheck,
		}))
	}
	a, err := app.New(ctx, cfg, providers, appOpts...)
	if err != nil {
		return err
	}

	if bot != nil && a.Recorder() != nil {
		discord.RegisterCommands(bot.Router(), a.Recorder(), bot.Permissions())
	}

	// Config edits on disk need a restart to take effect; the watcher just
	// makes that visible instead of silently ignoring them.
	watcher, err := config.NewWatcher(configPath, func(_, _ *config.Config) {
		logger.Warn("config file changed on disk, restart to apply")
	})
	if err != nil {
		logger.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, providers, bot != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := a.Shutdown(sctx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// registerBuiltinProviders wires the provider implementations shipped with
// this binary into the registry. Deployments embedding ricardo as a library
// can register their own on top.
func registerBuiltinProviders(r *config.Registry) {
	for _, backend := range anyLLMBackends {
		r.RegisterLLM(backend, llmFactory(backend))
	}

	r.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if p := optString(entry.Options, "model_path"); p != "" {
			modelPath = p
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	r.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

func llmFactory(backend string) func(config.ProviderEntry) (llm.Provider, error) {
	return func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	}
}

// buildProviders instantiates every configured provider slot. An unknown
// provider name is a warning, not a fatal error: the app degrades (no recap
// without an LLM, no semantic search without embeddings) instead of refusing
// to start.
func buildProviders(r *config.Registry, cfg *config.Config, logger *slog.Logger) *app.Providers {
	p := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		llmProvider, err := r.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			logProviderError(logger, "llm", name, err)
		} else {
			p.LLM = llmProvider
		}
	}
	if name := cfg.Providers.STT.Name; name != "" {
		sttProvider, err := r.CreateSTT(cfg.Providers.STT)
		if err != nil {
			logProviderError(logger, "stt", name, err)
		} else {
			p.STT = sttProvider
		}
	}
	if name := cfg.Providers.Embeddings.Name; name != "" {
		emb, err := r.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			logProviderError(logger, "embeddings", name, err)
		} else {
			p.Embeddings = emb
		}
	}
	if name := cfg.Providers.Audio.Name; name != "" {
		platform, err := r.CreateAudio(cfg.Providers.Audio)
		if err != nil {
			logProviderError(logger, "audio", name, err)
		} else {
			p.Audio = platform
		}
	}

	return p
}

func logProviderError(logger *slog.Logger, kind, name string, err error) {
	if errors.Is(err, config.ErrProviderNotRegistered) {
		logger.Warn("unknown provider, skipping", "kind", kind, "name", name)
		return
	}
	logger.Warn("provider init failed, skipping", "kind", kind, "name", name, "err", err)
}

// optString reads a string value from a provider entry's options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

func printStartupSummary(cfg *config.Config, p *app.Providers, botConnected bool) {
	status := func(ok bool) string {
		if ok {
			return "ready"
		}
		return "disabled"
	}
	archive := "memory"
	if cfg.Archive.PostgresDSN != "" {
		archive = "postgres"
	}

	lines := []string{
		fmt.Sprintf("ricardo %s", version),
		fmt.Sprintf("listen     %s", cfg.Server.ListenAddr),
		fmt.Sprintf("discord    %s", status(botConnected)),
		fmt.Sprintf("stt        %s", status(p.STT != nil)),
		fmt.Sprintf("llm        %s", status(p.LLM != nil)),
		fmt.Sprintf("embeddings %s", status(p.Embeddings != nil)),
		fmt.Sprintf("archive    %s", archive),
	}
	width := 0
	for _, l := range lines {
		if len(l) > width {
			width = len(l)
		}
	}
	border := "+" + strings.Repeat("-", width+2) + "+"
	fmt.Fprintln(os.Stderr, border)
	for _, l := range lines {
		fmt.Fprintf(os.Stderr, "| %-*s |\n", width, l)
	}
	fmt.Fprintln(os.Stderr, border)
}
