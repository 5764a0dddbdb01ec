package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/0xChin/ricardo/internal/archive"
	"github.com/0xChin/ricardo/internal/capture"
	"github.com/0xChin/ricardo/internal/observe"
	"github.com/0xChin/ricardo/pkg/audio"
	"github.com/0xChin/ricardo/pkg/provider/embeddings"
	"github.com/0xChin/ricardo/pkg/provider/stt"
)

// sttFormat is the PCM format submitted to the STT provider. Whisper models
// operate on 16 kHz mono.
var sttFormat = audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// Feed receives archived turns for live distribution to subscribers.
// Implementations must not block.
type Feed interface {
	BroadcastTurn(turn archive.Turn)
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithCorrector attaches a vocabulary [Corrector]. When nil (the default),
// transcripts are archived as produced by the STT provider.
func WithCorrector(c *Corrector) PipelineOption {
	return func(p *Pipeline) { p.corrector = c }
}

// WithSemanticIndex enables embedding and indexing of every archived turn.
// Both the index and the embeddings provider must be non-nil for the stage
// to run. Index failures are logged and do not fail the turn.
func WithSemanticIndex(index archive.SemanticIndex, embedder embeddings.Provider) PipelineOption {
	return func(p *Pipeline) {
		p.index = index
		p.embedder = embedder
	}
}

// WithFeed attaches a live feed that receives every archived turn.
func WithFeed(f Feed) PipelineOption {
	return func(p *Pipeline) { p.feed = f }
}

// WithPipelineLogger sets the logger. Defaults to slog.Default.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPipelineMetrics sets the metrics sink. When nil, no metrics are
// recorded.
func WithPipelineMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline processes finalized capture turns: it reads the spooled clip,
// downmixes and resamples the audio to the STT format, transcribes it,
// applies vocabulary correction, archives the transcript, and fans the
// result out to the semantic index and the live feed.
//
// Pipeline is safe for concurrent use and is intended to run as the handler
// of a [capture.AsyncDispatcher] worker pool.
type Pipeline struct {
	stt       stt.Provider
	store     archive.Store
	corrector *Corrector
	index     archive.SemanticIndex
	embedder  embeddings.Provider
	feed      Feed
	logger    *slog.Logger
	metrics   *observe.Metrics
}

// NewPipeline constructs a Pipeline. provider and store are required; the
// optional stages are attached via options.
func NewPipeline(provider stt.Provider, store archive.Store, opts ...PipelineOption) (*Pipeline, error) {
	if provider == nil {
		return nil, errors.New("transcript: stt provider must not be nil")
	}
	if store == nil {
		return nil, errors.New("transcript: archive store must not be nil")
	}
	p := &Pipeline{
		stt:    provider,
		store:  store,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Handler adapts the pipeline to the dispatcher's handler signature.
func (p *Pipeline) Handler() capture.TurnHandler {
	return p.Handle
}

// Handle processes one finalized turn. The clip's spool file is consumed
// (deleted) regardless of outcome. A turn whose clip contains no
// recognisable speech is dropped silently.
func (p *Pipeline) Handle(ctx context.Context, turn capture.TurnResult) error {
	pcm, err := p.readClip(turn)
	if err != nil {
		return err
	}

	converted := audio.Convert(pcm, turn.Clip.Format(), sttFormat)

	sttStart := time.Now()
	res, err := p.stt.Transcribe(ctx, stt.Request{
		PCM:        converted,
		SampleRate: sttFormat.SampleRate,
		Channels:   sttFormat.Channels,
	})
	if p.metrics != nil {
		p.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds(),
			metric.WithAttributes(observe.Attr("model", p.stt.ModelID())),
		)
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordProviderError(ctx, p.stt.ModelID(), "stt")
		}
		return fmt.Errorf("transcript: transcribe: %w", err)
	}

	rawText := strings.TrimSpace(res.Text)
	if rawText == "" {
		p.logger.Debug("no speech recognised in clip",
			"session_id", turn.SessionID,
			"speaker_id", turn.SpeakerID,
			"clip_duration", turn.Duration,
		)
		return nil
	}

	text := rawText
	var corrections []Correction
	if p.corrector != nil {
		text, corrections = p.corrector.Apply(rawText)
	}

	archived := archive.Turn{
		ID:          uuid.NewString(),
		SessionID:   turn.SessionID,
		SpeakerID:   turn.SpeakerID,
		SpeakerName: turn.DisplayName,
		Text:        text,
		RawText:     rawText,
		StartedAt:   turn.StartedAt,
		Duration:    turn.Duration,
	}
	if err := p.store.AppendTurn(ctx, archived); err != nil {
		return fmt.Errorf("transcript: archive turn: %w", err)
	}

	if p.feed != nil {
		p.feed.BroadcastTurn(archived)
	}

	p.indexTurn(ctx, archived)

	p.logger.Info("turn transcribed",
		"session_id", archived.SessionID,
		"speaker", archived.SpeakerName,
		"words", len(strings.Fields(text)),
		"corrections", len(corrections),
	)
	return nil
}

// readClip reads the turn's spooled PCM and releases the spool file.
func (p *Pipeline) readClip(turn capture.TurnResult) ([]byte, error) {
	rc, err := turn.Clip.Open()
	if err != nil {
		return nil, fmt.Errorf("transcript: open clip: %w", err)
	}
	pcm, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil {
		p.logger.Warn("clip close failed", "err", cerr)
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: read clip: %w", err)
	}
	return pcm, nil
}

// indexTurn embeds and indexes an archived turn. Failures are logged, not
// returned: the transcript is already durable and the index can be rebuilt.
func (p *Pipeline) indexTurn(ctx context.Context, turn archive.Turn) {
	if p.index == nil || p.embedder == nil {
		return
	}

	vec, err := p.embedder.Embed(ctx, turn.Text)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordProviderError(ctx, p.embedder.ModelID(), "embeddings")
		}
		p.logger.Warn("turn embedding failed", "turn_id", turn.ID, "err", err)
		return
	}
	if err := p.index.IndexTurn(ctx, turn, vec); err != nil {
		p.logger.Warn("turn indexing failed", "turn_id", turn.ID, "err", err)
	}
}
