package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/0xChin/ricardo/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup
// and shared across all concurrent transcriptions.
type Provider struct {
	model     whisperlib.Model
	modelPath string
	language  string
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en". A per-request Language hint
// takes precedence.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:     model,
		modelPath: modelPath,
		language:  defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// ModelID implements stt.Provider.
func (p *Provider) ModelID() string {
	return "whisper.cpp:" + p.modelPath
}

// Transcribe implements stt.Provider. The clip must be 16 kHz PCM; callers
// resample before transcription. Clips whose RMS falls below the silence
// threshold return an empty Result without running inference.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if req.SampleRate != requiredSampleRate {
		return nil, fmt.Errorf("whisper: sample rate %d not supported, need %d", req.SampleRate, requiredSampleRate)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	samples := pcmToFloat32Mono(req.PCM, req.Channels)
	if computeRMS(samples) < silenceRMSThreshold {
		return &stt.Result{Language: lang}, nil
	}

	text, err := p.infer(samples, lang)
	if err != nil {
		return nil, err
	}
	return &stt.Result{Text: text, Language: lang}, nil
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text. Each context is NOT thread-safe, but the model
// can be shared across goroutines.
func (p *Provider) infer(samples []float32, lang string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
