package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0xChin/ricardo/internal/archive"
	"github.com/0xChin/ricardo/internal/capture"
	"github.com/0xChin/ricardo/pkg/audio"
)

// recapDrainTimeout bounds how long Stop waits for in-flight transcription
// before generating the recap. Turns still pending afterwards simply miss
// the recap; they are archived regardless.
const recapDrainTimeout = 30 * time.Second

// Summariser generates and stores a recap for an archived session.
// Implemented by summary.Summariser.
type Summariser interface {
	Recap(ctx context.Context, sessionID string) (string, error)
}

// Drainer waits until all dispatched turns have been processed.
// Implemented by capture.AsyncDispatcher.
type Drainer interface {
	WaitIdle(ctx context.Context) error
}

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithSummariser enables recap generation on Stop.
func WithSummariser(s Summariser) RecorderOption {
	return func(r *Recorder) { r.summariser = s }
}

// WithDrainer makes Stop wait for in-flight transcription before the recap.
func WithDrainer(d Drainer) RecorderOption {
	return func(r *Recorder) { r.drainer = d }
}

// WithRecorderLogger sets the logger. Defaults to slog.Default.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// StopResult is the outcome of a stopped recording session.
type StopResult struct {
	SessionID   string
	ChannelName string
	StartedAt   time.Time
	EndedAt     time.Time
	Turns       int

	// Recap is the generated session summary. Empty when no summariser is
	// configured, the session had no transcribed turns, or generation failed
	// (failures are logged, not fatal).
	Recap string
}

// Recorder drives one voice recording session end to end: it joins the
// channel via the audio platform, bridges speaker events and PCM frames
// into the capture engine, mirrors the session lifecycle into the archive,
// and produces the recap when recording stops.
//
// At most one session is active at a time; Start while recording returns
// [capture.ErrAlreadyRecording]. Safe for concurrent use.
type Recorder struct {
	platform   audio.Platform
	engine     *capture.Engine
	store      archive.Store
	summariser Summariser
	drainer    Drainer
	logger     *slog.Logger

	mu        sync.Mutex
	conn      audio.Connection
	sessionID string
	pumpDone  chan struct{}
}

// NewRecorder creates a Recorder. platform, engine, and store are required.
func NewRecorder(platform audio.Platform, engine *capture.Engine, store archive.Store, opts ...RecorderOption) (*Recorder, error) {
	if platform == nil {
		return nil, errors.New("discord: audio platform must not be nil")
	}
	if engine == nil {
		return nil, errors.New("discord: capture engine must not be nil")
	}
	if store == nil {
		return nil, errors.New("discord: archive store must not be nil")
	}
	r := &Recorder{
		platform: platform,
		engine:   engine,
		store:    store,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Start joins the voice channel and begins recording. Returns the new
// session ID, or [capture.ErrAlreadyRecording] when a session is active.
func (r *Recorder) Start(ctx context.Context, channelID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return "", capture.ErrAlreadyRecording
	}

	conn, err := r.platform.Connect(ctx, channelID)
	if err != nil {
		return "", fmt.Errorf("discord: join voice channel: %w", err)
	}

	sessionID, err := r.engine.Begin(ctx, conn.ChannelName())
	if err != nil {
		_ = conn.Disconnect()
		return "", err
	}

	err = r.store.CreateSession(ctx, archive.Session{
		ID:          sessionID,
		ChannelName: conn.ChannelName(),
		StartedAt:   time.Now(),
	})
	if err != nil {
		_, _ = r.engine.End(ctx)
		_ = conn.Disconnect()
		return "", fmt.Errorf("discord: create archive session: %w", err)
	}

	conn.OnSpeaking(func(ev audio.Event) {
		switch ev.Type {
		case audio.EventSpeakingStart:
			r.engine.SpeakingStart(ev.SpeakerID, ev.DisplayName)
		case audio.EventSpeakingStop, audio.EventLeave:
			r.engine.SpeakingEnd(ev.SpeakerID)
		}
	})

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for frame := range conn.Frames() {
			r.engine.Ingest(frame.SpeakerID, frame.PCM)
		}
	}()

	r.conn = conn
	r.sessionID = sessionID
	r.pumpDone = pumpDone
	r.logger.Info("recording started",
		"session_id", sessionID,
		"channel", conn.ChannelName(),
	)
	return sessionID, nil
}

// Stop ends the active session: leaves the voice channel, closes out the
// archive session, and generates the recap. Returns
// [capture.ErrNoActiveSession] when nothing is recording.
func (r *Recorder) Stop(ctx context.Context) (*StopResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil, capture.ErrNoActiveSession
	}

	snap, err := r.engine.End(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.conn.Disconnect(); err != nil {
		r.logger.Warn("voice disconnect failed", "err", err)
	}
	<-r.pumpDone
	r.conn = nil
	r.sessionID = ""
	r.pumpDone = nil

	if err := r.store.EndSession(ctx, snap.SessionID, snap.EndedAt); err != nil {
		r.logger.Warn("archive session close failed",
			"session_id", snap.SessionID,
			"err", err,
		)
	}

	res := &StopResult{
		SessionID:   snap.SessionID,
		ChannelName: snap.ChannelName,
		StartedAt:   snap.StartedAt,
		EndedAt:     snap.EndedAt,
		Turns:       len(snap.Turns),
	}
	res.Recap = r.recap(ctx, snap.SessionID)

	r.logger.Info("recording stopped",
		"session_id", snap.SessionID,
		"turns", res.Turns,
		"elapsed", snap.EndedAt.Sub(snap.StartedAt),
	)
	return res, nil
}

// Status reports the active session, or [capture.ErrNoActiveSession].
func (r *Recorder) Status(ctx context.Context) (capture.SessionInfo, error) {
	return r.engine.Info(ctx)
}

// recap flushes pending transcription and generates the session summary.
// Failures are logged; the stop still succeeds.
func (r *Recorder) recap(ctx context.Context, sessionID string) string {
	if r.summariser == nil {
		return ""
	}
	if r.drainer != nil {
		drainCtx, cancel := context.WithTimeout(ctx, recapDrainTimeout)
		err := r.drainer.WaitIdle(drainCtx)
		cancel()
		if err != nil {
			r.logger.Warn("transcription drain timed out before recap",
				"session_id", sessionID,
				"err", err,
			)
		}
	}
	recap, err := r.summariser.Recap(ctx, sessionID)
	if err != nil {
		r.logger.Warn("recap generation failed",
			"session_id", sessionID,
			"err", err,
		)
		return ""
	}
	return recap
}
