package capture

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xChin/ricardo/internal/observe"
)

// errEngineClosed is returned by session commands after Close.
var errEngineClosed = errors.New("capture: engine closed")

// turnState tracks where a speaker's turn sits in its lifecycle. Turns leave
// the engine entirely on finalize or failure, so only the live states exist.
type turnState int

const (
	stateCapturing turnState = iota
	stateEndPending
)

// turn is the engine's per-speaker recording state. Only the event loop
// reads or mutates it, except for rec, which Ingest appends to directly.
type turn struct {
	speakerID   string
	displayName string
	state       turnState

	// gen increments on every transition that invalidates a pending quiet
	// timer, so a stale fire can be recognised and discarded.
	gen uint64

	startedAt time.Time

	// lastStop is the raw stop instant behind the current EndPending state.
	// Turn duration measures to this instant, not to the debounce fire.
	lastStop time.Time

	rec *recorder
}

// session is the engine's active-session state, owned by the event loop.
type session struct {
	id          string
	channelName string
	startedAt   time.Time
	turns       []TurnRecord
}

// Engine coordinates per-speaker turn capture for at most one recording
// session at a time. All state transitions run on a single event loop, so
// overlapping speaker activity is processed strictly in arrival order.
// Audio bytes bypass the loop: Ingest resolves the speaker's recorder under
// a read lock and appends synchronously, keeping the hot path off the
// control plane.
type Engine struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *observe.Metrics
	now        func() time.Time
	sched      *Scheduler

	events  chan any
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// mu guards turns for the Ingest fast path. The event loop takes the
	// write lock only to insert and remove entries.
	mu    sync.RWMutex
	turns map[string]*turn

	sess *session
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Used in tests to pin turn
// timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics attaches capture metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine and starts its event loop. Call Close to stop it.
func New(cfg Config, dispatcher Dispatcher, opts ...Option) *Engine {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	e := &Engine{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		now:        time.Now,
		events:     make(chan any, 128),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		turns:      make(map[string]*turn),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sched = NewScheduler(cfg.QuietPeriod, func(speakerID string, gen uint64) {
		e.enqueue(evQuietElapsed{speakerID: speakerID, gen: gen})
	})

	go e.run()
	return e
}

// Event loop messages. Commands carry a reply channel; signals do not.
type (
	evBegin struct {
		channelName string
		resp        chan beginReply
	}
	beginReply struct {
		id  string
		err error
	}

	evEnd struct {
		resp chan endReply
	}
	endReply struct {
		snap *SessionSnapshot
		err  error
	}

	evInfo struct {
		resp chan infoReply
	}
	infoReply struct {
		info SessionInfo
		err  error
	}

	evSpeakingStart struct {
		speakerID   string
		displayName string
	}

	evSpeakingEnd struct {
		speakerID string
	}

	evQuietElapsed struct {
		speakerID string
		gen       uint64
	}

	evCaptureError struct {
		speakerID string
		rec       *recorder
		err       error
	}
)

// Begin starts a new recording session for the named channel and returns its
// session ID. Returns [ErrAlreadyRecording] if a session is active.
func (e *Engine) Begin(ctx context.Context, channelName string) (string, error) {
	resp := make(chan beginReply, 1)
	select {
	case e.events <- evBegin{channelName: channelName, resp: resp}:
	case <-e.done:
		return "", errEngineClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-resp:
		return r.id, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// End stops the active session. All in-flight turns are finalized and
// dispatched before the snapshot is returned. Returns [ErrNoActiveSession]
// if no session is active.
func (e *Engine) End(ctx context.Context) (*SessionSnapshot, error) {
	resp := make(chan endReply, 1)
	select {
	case e.events <- evEnd{resp: resp}:
	case <-e.done:
		return nil, errEngineClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Info reports metadata about the active session. Returns
// [ErrNoActiveSession] when none is active.
func (e *Engine) Info(ctx context.Context) (SessionInfo, error) {
	resp := make(chan infoReply, 1)
	select {
	case e.events <- evInfo{resp: resp}:
	case <-e.done:
		return SessionInfo{}, errEngineClosed
	case <-ctx.Done():
		return SessionInfo{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.info, r.err
	case <-ctx.Done():
		return SessionInfo{}, ctx.Err()
	}
}

// SpeakingStart signals that a speaker began (or resumed) transmitting.
// Idempotent for a speaker already capturing; a start during the quiet
// window cancels the pending end and the turn keeps accumulating.
func (e *Engine) SpeakingStart(speakerID, displayName string) {
	e.enqueue(evSpeakingStart{speakerID: speakerID, displayName: displayName})
}

// SpeakingEnd signals a raw stop for a speaker. The turn is not confirmed
// ended until the quiet period elapses without a new start. Spurious stops
// for speakers with no open turn are ignored.
func (e *Engine) SpeakingEnd(speakerID string) {
	e.enqueue(evSpeakingEnd{speakerID: speakerID})
}

// Ingest appends a PCM chunk to the speaker's open turn. Chunks for
// speakers with no open turn are silently dropped. Safe to call from the
// platform receive goroutine concurrently with all other methods.
func (e *Engine) Ingest(speakerID string, pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	e.mu.RLock()
	t := e.turns[speakerID]
	e.mu.RUnlock()
	if t == nil {
		return
	}
	if err := t.rec.append(pcm); err != nil {
		if errors.Is(err, errRecorderClosed) {
			// Turn finalized between lookup and write.
			return
		}
		e.enqueue(evCaptureError{speakerID: speakerID, rec: t.rec, err: err})
	}
}

// Close stops the event loop. Any active session is aborted: open turns are
// destroyed without dispatch. Safe to call more than once.
func (e *Engine) Close() error {
	e.once.Do(func() {
		close(e.done)
		<-e.stopped
	})
	return nil
}

func (e *Engine) enqueue(ev any) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.done:
			e.shutdown()
			return
		case ev := <-e.events:
			switch ev := ev.(type) {
			case evBegin:
				ev.resp <- e.handleBegin(ev.channelName)
			case evEnd:
				ev.resp <- e.handleEnd()
			case evInfo:
				ev.resp <- e.handleInfo()
			case evSpeakingStart:
				e.handleSpeakingStart(ev.speakerID, ev.displayName)
			case evSpeakingEnd:
				e.handleSpeakingEnd(ev.speakerID)
			case evQuietElapsed:
				e.handleQuietElapsed(ev.speakerID, ev.gen)
			case evCaptureError:
				e.handleCaptureError(ev.speakerID, ev.rec, ev.err)
			}
		}
	}
}

func (e *Engine) handleBegin(channelName string) beginReply {
	if e.sess != nil {
		return beginReply{err: ErrAlreadyRecording}
	}
	e.sess = &session{
		id:          uuid.NewString(),
		channelName: channelName,
		startedAt:   e.now(),
	}
	if e.metrics != nil {
		e.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	e.logger.Info("recording session started",
		"session_id", e.sess.id,
		"channel", channelName,
	)
	return beginReply{id: e.sess.id}
}

func (e *Engine) handleEnd() endReply {
	if e.sess == nil {
		return endReply{err: ErrNoActiveSession}
	}
	now := e.now()
	e.sched.CancelAll()

	// Finalize remaining turns in start order so force-ended snapshots are
	// deterministic.
	open := make([]*turn, 0, len(e.turns))
	for _, t := range e.turns {
		open = append(open, t)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].startedAt.Before(open[j].startedAt) })
	for _, t := range open {
		end := now
		if t.state == stateEndPending {
			end = t.lastStop
		}
		e.finalizeTurn(t, end)
	}

	snap := &SessionSnapshot{
		SessionID:   e.sess.id,
		ChannelName: e.sess.channelName,
		StartedAt:   e.sess.startedAt,
		EndedAt:     now,
		Turns:       e.sess.turns,
	}
	e.logger.Info("recording session ended",
		"session_id", snap.SessionID,
		"turns", len(snap.Turns),
		"elapsed", now.Sub(snap.StartedAt),
	)
	e.sess = nil
	if e.metrics != nil {
		e.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	return endReply{snap: snap}
}

func (e *Engine) handleInfo() infoReply {
	if e.sess == nil {
		return infoReply{err: ErrNoActiveSession}
	}
	return infoReply{info: SessionInfo{
		SessionID:      e.sess.id,
		ChannelName:    e.sess.channelName,
		StartedAt:      e.sess.startedAt,
		ActiveTurns:    len(e.turns),
		CompletedTurns: len(e.sess.turns),
	}}
}

func (e *Engine) handleSpeakingStart(speakerID, displayName string) {
	if e.sess == nil {
		return
	}
	if t, ok := e.turns[speakerID]; ok {
		if t.state == stateEndPending {
			// Resumed within the quiet window: the pause is part of the turn.
			e.sched.Cancel(speakerID)
			t.gen++
			t.state = stateCapturing
		}
		if t.displayName == "" && displayName != "" {
			t.displayName = displayName
		}
		return
	}

	rec, err := newRecorder(e.cfg.SpoolDir, speakerID, e.cfg.Format)
	if err != nil {
		e.logger.Error("turn capture failed to start",
			"speaker_id", speakerID,
			"err", err,
		)
		if e.metrics != nil {
			e.metrics.TurnsFailed.Add(context.Background(), 1)
		}
		return
	}
	t := &turn{
		speakerID:   speakerID,
		displayName: displayName,
		state:       stateCapturing,
		startedAt:   e.now(),
		rec:         rec,
	}
	e.setTurn(t)
	if e.metrics != nil {
		e.metrics.ActiveTurns.Add(context.Background(), 1)
	}
	e.logger.Debug("turn started", "speaker_id", speakerID, "name", displayName)
}

func (e *Engine) handleSpeakingEnd(speakerID string) {
	t, ok := e.turns[speakerID]
	if !ok {
		return
	}
	// Raw stops may repeat while already pending; the latest one wins and
	// restarts the quiet window.
	t.state = stateEndPending
	t.lastStop = e.now()
	t.gen++
	e.sched.Arm(speakerID, t.gen)
}

func (e *Engine) handleQuietElapsed(speakerID string, gen uint64) {
	t, ok := e.turns[speakerID]
	if !ok || t.state != stateEndPending || t.gen != gen {
		// Stale fire: the speaker resumed or the turn already ended.
		return
	}
	e.finalizeTurn(t, t.lastStop)
}

func (e *Engine) handleCaptureError(speakerID string, rec *recorder, err error) {
	t, ok := e.turns[speakerID]
	if !ok || t.rec != rec {
		return
	}
	e.sched.Cancel(speakerID)
	e.removeTurn(speakerID)
	_ = t.rec.destroy()
	if e.metrics != nil {
		e.metrics.ActiveTurns.Add(context.Background(), -1)
		e.metrics.TurnsFailed.Add(context.Background(), 1)
	}
	e.logger.Error("turn dropped on capture failure",
		"speaker_id", speakerID,
		"err", err,
	)
}

// finalizeTurn seals the turn's recorder, records it on the session, and
// dispatches the result. The turn is removed from the engine either way.
func (e *Engine) finalizeTurn(t *turn, end time.Time) {
	e.removeTurn(t.speakerID)
	if e.metrics != nil {
		e.metrics.ActiveTurns.Add(context.Background(), -1)
	}

	clip, err := t.rec.close()
	if err != nil {
		_ = t.rec.destroy()
		if e.metrics != nil {
			e.metrics.TurnsFailed.Add(context.Background(), 1)
		}
		e.logger.Error("turn dropped on finalize failure",
			"speaker_id", t.speakerID,
			"err", err,
		)
		return
	}

	duration := end.Sub(t.startedAt)
	if duration < 0 {
		duration = 0
	}

	e.sess.turns = append(e.sess.turns, TurnRecord{
		SpeakerID:   t.speakerID,
		DisplayName: t.displayName,
		StartedAt:   t.startedAt,
		Duration:    duration,
	})

	if e.metrics != nil {
		e.metrics.TurnsFinalized.Add(context.Background(), 1)
		e.metrics.TurnDuration.Record(context.Background(), duration.Seconds())
	}
	e.logger.Debug("turn finalized",
		"speaker_id", t.speakerID,
		"duration", duration,
		"bytes", clip.Size(),
	)

	e.dispatcher.Dispatch(TurnResult{
		SessionID:   e.sess.id,
		SpeakerID:   t.speakerID,
		DisplayName: t.displayName,
		StartedAt:   t.startedAt,
		Duration:    duration,
		Clip:        clip,
	})
}

// shutdown aborts any active session without dispatching.
func (e *Engine) shutdown() {
	e.sched.CancelAll()
	e.mu.Lock()
	turns := e.turns
	e.turns = make(map[string]*turn)
	e.mu.Unlock()
	for _, t := range turns {
		_ = t.rec.destroy()
	}
	if e.sess != nil {
		e.logger.Warn("engine closed with active session", "session_id", e.sess.id)
		e.sess = nil
	}
}

func (e *Engine) setTurn(t *turn) {
	e.mu.Lock()
	e.turns[t.speakerID] = t
	e.mu.Unlock()
}

func (e *Engine) removeTurn(speakerID string) {
	e.mu.Lock()
	delete(e.turns, speakerID)
	e.mu.Unlock()
}

// sanitizeName makes a string safe for use in a spool file name.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
