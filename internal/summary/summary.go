// Package summary produces end-of-session recaps of recorded voice sessions.
//
// The [Summariser] formats a session's archived turns into a readable
// transcript and asks an LLM to condense it into a recap covering decisions,
// action items, and open questions. Recaps are stored back on the session via
// [archive.Store.SetSummary].
//
// All exported types are safe for concurrent use.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/0xChin/ricardo/internal/archive"
	"github.com/0xChin/ricardo/internal/observe"
	"github.com/0xChin/ricardo/pkg/provider/llm"
)

// recapPrompt is the default system prompt sent to the LLM when summarising
// a session transcript.
const recapPrompt = `Summarise the following voice-chat session transcript.
Preserve: decisions made, action items and their owners, open questions, and
disagreements that were not resolved. Attribute statements to speakers where
it matters. Be concise; use short bullet points.`

// defaultMaxTokens caps the recap length when the caller does not configure
// a limit.
const defaultMaxTokens = 1024

// Option configures a [Summariser].
type Option func(*Summariser)

// WithSystemPrompt overrides the built-in recap instructions.
func WithSystemPrompt(prompt string) Option {
	return func(s *Summariser) {
		if prompt != "" {
			s.prompt = prompt
		}
	}
}

// WithMaxTokens caps the recap length. Zero keeps the default.
func WithMaxTokens(n int) Option {
	return func(s *Summariser) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Summariser) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. When nil, no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Summariser) { s.metrics = m }
}

// Summariser generates LLM recaps for archived sessions.
type Summariser struct {
	llm       llm.Provider
	store     archive.Store
	prompt    string
	maxTokens int
	logger    *slog.Logger
	metrics   *observe.Metrics
}

// New creates a Summariser backed by the given LLM provider and archive.
func New(provider llm.Provider, store archive.Store, opts ...Option) (*Summariser, error) {
	if provider == nil {
		return nil, errors.New("summary: llm provider must not be nil")
	}
	if store == nil {
		return nil, errors.New("summary: archive store must not be nil")
	}
	s := &Summariser{
		llm:       provider,
		store:     store,
		prompt:    recapPrompt,
		maxTokens: defaultMaxTokens,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Recap generates a recap for the session's archived turns, stores it on the
// session, and returns it. A session without any transcribed turns yields an
// empty recap and no LLM call.
func (s *Summariser) Recap(ctx context.Context, sessionID string) (string, error) {
	turns, err := s.store.Turns(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("summary: load turns: %w", err)
	}
	if len(turns) == 0 {
		s.logger.Info("session has no transcribed turns, skipping recap", "session_id", sessionID)
		return "", nil
	}

	start := time.Now()
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: s.prompt,
		Messages: []llm.Message{
			{Role: "user", Content: formatTranscript(turns)},
		},
		Temperature: 0.3,
		MaxTokens:   s.maxTokens,
	})
	if s.metrics != nil {
		s.metrics.SummaryDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError(ctx, "summary", "llm")
		}
		return "", fmt.Errorf("summary: recap session %s: %w", sessionID, err)
	}

	recap := strings.TrimSpace(resp.Content)
	if err := s.store.SetSummary(ctx, sessionID, recap); err != nil {
		return "", fmt.Errorf("summary: store recap: %w", err)
	}

	s.logger.Info("session recap stored",
		"session_id", sessionID,
		"turns", len(turns),
		"recap_chars", len(recap),
	)
	return recap, nil
}

// formatTranscript renders archived turns as a readable transcript for the
// LLM, one line per turn with a session-relative timestamp.
func formatTranscript(turns []archive.Turn) string {
	var sb strings.Builder
	start := turns[0].StartedAt
	for _, turn := range turns {
		offset := turn.StartedAt.Sub(start).Round(time.Second)
		fmt.Fprintf(&sb, "[%s %s]: %s\n", formatOffset(offset), turn.SpeakerName, turn.Text)
	}
	return sb.String()
}

// formatOffset renders a session-relative offset as mm:ss or h:mm:ss.
func formatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
