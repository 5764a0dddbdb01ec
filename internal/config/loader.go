package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper-native"},
	"embeddings": {"openai"},
	"audio":      {"discord"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Discord
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; the bot will not be able to connect")
	}

	// Capture
	if cfg.Capture.QuietPeriodMS < 0 {
		errs = append(errs, fmt.Errorf("capture.quiet_period_ms %d must not be negative", cfg.Capture.QuietPeriodMS))
	}
	if cfg.Capture.DispatchWorkers < 0 {
		errs = append(errs, fmt.Errorf("capture.dispatch_workers %d must not be negative", cfg.Capture.DispatchWorkers))
	}
	if cfg.Capture.DispatchQueueSize < 0 {
		errs = append(errs, fmt.Errorf("capture.dispatch_queue_size %d must not be negative", cfg.Capture.DispatchQueueSize))
	}

	// Provider name validation, warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required; the turn pipeline cannot run without transcription"))
	}
	if cfg.Summary.Enabled && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("summary.enabled requires providers.llm to be configured"))
	}

	// Embeddings / archive dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Archive.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but archive.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Archive.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but archive.postgres_dsn is empty; the semantic index will not be built")
	}

	// Archive availability
	if cfg.Archive.PostgresDSN == "" {
		slog.Warn("archive.postgres_dsn is empty; sessions will be kept in memory and lost on restart")
	}

	// Vocabulary duplicate term detection
	termsSeen := make(map[string]int, len(cfg.Vocabulary.Terms))
	for i, term := range cfg.Vocabulary.Terms {
		prefix := fmt.Sprintf("vocabulary.terms[%d]", i)
		if term == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", prefix))
			continue
		}
		if prev, ok := termsSeen[term]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of vocabulary.terms[%d]", prefix, term, prev))
		}
		termsSeen[term] = i
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
