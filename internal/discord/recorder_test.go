package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/0xChin/ricardo/internal/archive"
	"github.com/0xChin/ricardo/internal/capture"
	"github.com/0xChin/ricardo/pkg/audio"
	audiomock "github.com/0xChin/ricardo/pkg/audio/mock"
)

// collectDispatcher records finalized turns and releases their clips.
type collectDispatcher struct {
	mu      sync.Mutex
	results []capture.TurnResult
}

func (d *collectDispatcher) Dispatch(result capture.TurnResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if result.Clip != nil {
		_ = result.Clip.Discard()
	}
	d.results = append(d.results, result)
}

func (d *collectDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.results)
}

type fakeSummariser struct {
	mu    sync.Mutex
	recap string
	err   error
	calls []string
}

func (f *fakeSummariser) Recap(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sessionID)
	return f.recap, f.err
}

type fakeDrainer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeDrainer) WaitIdle(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func newTestEngine(t *testing.T, d capture.Dispatcher) *capture.Engine {
	t.Helper()
	e := capture.New(capture.Config{
		QuietPeriod: 30 * time.Millisecond,
		SpoolDir:    t.TempDir(),
		Format:      audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16},
	}, d, capture.WithLogger(testLogger()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestRecorder_StartStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dispatcher := &collectDispatcher{}
	engine := newTestEngine(t, dispatcher)
	store := archive.NewMemStore()
	conn := audiomock.NewConnection("war-room")
	platform := &audiomock.Platform{ConnectResult: conn}
	sum := &fakeSummariser{recap: "- Discussed the launch."}
	drainer := &fakeDrainer{}

	rec, err := NewRecorder(platform, engine, store,
		WithSummariser(sum),
		WithDrainer(drainer),
		WithRecorderLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	sessionID, err := rec.Start(ctx, "chan-42")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(platform.ConnectCalls) != 1 || platform.ConnectCalls[0].ChannelID != "chan-42" {
		t.Errorf("connect calls = %+v", platform.ConnectCalls)
	}

	sess, err := store.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("archive session missing after Start: %v", err)
	}
	if sess.ChannelName != "war-room" {
		t.Errorf("ChannelName = %q, want war-room", sess.ChannelName)
	}

	// One speaking turn: start, audio, stop, then the quiet period elapses.
	conn.EmitEvent(audio.Event{Type: audio.EventSpeakingStart, SpeakerID: "u1", DisplayName: "Alice"})
	conn.PushFrame(audio.Frame{SpeakerID: "u1", PCM: []byte{1, 2, 3, 4}})
	conn.EmitEvent(audio.Event{Type: audio.EventSpeakingStop, SpeakerID: "u1"})

	deadline := time.Now().Add(2 * time.Second)
	for dispatcher.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("turn was never dispatched")
		}
		time.Sleep(5 * time.Millisecond)
	}
	dispatcher.mu.Lock()
	turn := dispatcher.results[0]
	dispatcher.mu.Unlock()
	if turn.SessionID != sessionID || turn.SpeakerID != "u1" || turn.DisplayName != "Alice" {
		t.Errorf("dispatched turn = %+v", turn)
	}

	res, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.SessionID != sessionID || res.ChannelName != "war-room" || res.Turns != 1 {
		t.Errorf("StopResult = %+v", res)
	}
	if res.Recap != "- Discussed the launch." {
		t.Errorf("Recap = %q", res.Recap)
	}
	if drainer.calls != 1 {
		t.Errorf("drainer calls = %d, want 1", drainer.calls)
	}
	if len(sum.calls) != 1 || sum.calls[0] != sessionID {
		t.Errorf("summariser calls = %v", sum.calls)
	}
	if conn.CallCountDisconnect == 0 {
		t.Error("voice connection was not disconnected")
	}

	sess, err = store.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.EndedAt.IsZero() {
		t.Error("archive session was not closed")
	}
}

func TestRecorder_StartWhileRecording(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t, &collectDispatcher{})
	store := archive.NewMemStore()
	conn := audiomock.NewConnection("war-room")
	platform := &audiomock.Platform{ConnectResult: conn}

	rec, err := NewRecorder(platform, engine, store, WithRecorderLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if _, err := rec.Start(ctx, "chan-42"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := rec.Start(ctx, "chan-43"); !errors.Is(err, capture.ErrAlreadyRecording) {
		t.Errorf("second Start err = %v, want ErrAlreadyRecording", err)
	}
	if _, err := rec.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRecorder_StopWithoutSession(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t, &collectDispatcher{})
	rec, err := NewRecorder(&audiomock.Platform{}, engine, archive.NewMemStore(),
		WithRecorderLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if _, err := rec.Stop(context.Background()); !errors.Is(err, capture.ErrNoActiveSession) {
		t.Errorf("Stop err = %v, want ErrNoActiveSession", err)
	}
}

func TestRecorder_ConnectFailure(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t, &collectDispatcher{})
	platform := &audiomock.Platform{ConnectError: errors.New("voice gateway unreachable")}
	rec, err := NewRecorder(platform, engine, archive.NewMemStore(),
		WithRecorderLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	if _, err := rec.Start(context.Background(), "chan-42"); err == nil {
		t.Fatal("expected error when voice connect fails")
	}
	// The engine must not be left with a dangling session.
	if _, err := rec.Stop(context.Background()); !errors.Is(err, capture.ErrNoActiveSession) {
		t.Errorf("Stop err = %v, want ErrNoActiveSession", err)
	}
}

func TestRecorder_RecapFailureDoesNotFailStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t, &collectDispatcher{})
	store := archive.NewMemStore()
	conn := audiomock.NewConnection("war-room")
	platform := &audiomock.Platform{ConnectResult: conn}
	sum := &fakeSummariser{err: errors.New("llm unavailable")}

	rec, err := NewRecorder(platform, engine, store,
		WithSummariser(sum),
		WithRecorderLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if _, err := rec.Start(ctx, "chan-42"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Recap != "" {
		t.Errorf("Recap = %q, want empty on summariser failure", res.Recap)
	}
}

func TestRecorder_Status(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t, &collectDispatcher{})
	store := archive.NewMemStore()
	conn := audiomock.NewConnection("war-room")
	platform := &audiomock.Platform{ConnectResult: conn}

	rec, err := NewRecorder(platform, engine, store, WithRecorderLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	if _, err := rec.Status(ctx); !errors.Is(err, capture.ErrNoActiveSession) {
		t.Errorf("Status err = %v, want ErrNoActiveSession", err)
	}

	sessionID, err := rec.Start(ctx, "chan-42")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	info, err := rec.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.SessionID != sessionID || info.ChannelName != "war-room" {
		t.Errorf("info = %+v", info)
	}
	if _, err := rec.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
