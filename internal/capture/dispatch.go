package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Compile-time interface assertion.
var _ Dispatcher = (*AsyncDispatcher)(nil)

// TurnHandler processes one finalized turn. Handlers own the turn's clip:
// they must either open and close it or discard it.
type TurnHandler func(ctx context.Context, result TurnResult) error

const (
	defaultDispatchWorkers = 2
	defaultDispatchQueue   = 64
)

// AsyncDispatcher runs a bounded queue drained by a fixed worker pool.
// Dispatch never blocks: when the queue is full the turn is dropped, its
// clip discarded, and a warning logged. Handler failures are logged and
// contained; they only cost that one turn's downstream content.
type AsyncDispatcher struct {
	handler TurnHandler
	queue   chan TurnResult
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once

	// pending counts queued plus in-flight turns, for WaitIdle.
	pending atomic.Int64

	// onDrop, when set, observes each queue-full drop. Used for metrics.
	onDrop func()
	// onDone observes each handler completion with its error and elapsed time.
	onDone func(err error, elapsed time.Duration)
}

// DispatcherOption customises an AsyncDispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	workers int
	queue   int
	logger  *slog.Logger
	onDrop  func()
	onDone  func(err error, elapsed time.Duration)
}

// WithWorkers sets the worker pool size (default 2).
func WithWorkers(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize sets the bounded queue capacity (default 64).
func WithQueueSize(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.queue = n
		}
	}
}

// WithDispatchLogger sets the logger used for drop and failure warnings.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDropHook registers fn to be called on every queue-full drop.
func WithDropHook(fn func()) DispatcherOption {
	return func(o *dispatcherOptions) { o.onDrop = fn }
}

// WithDoneHook registers fn to be called after every handler invocation.
func WithDoneHook(fn func(err error, elapsed time.Duration)) DispatcherOption {
	return func(o *dispatcherOptions) { o.onDone = fn }
}

// NewAsyncDispatcher starts the worker pool and returns a ready dispatcher.
// Call Close to drain the queue and stop the workers.
func NewAsyncDispatcher(handler TurnHandler, opts ...DispatcherOption) *AsyncDispatcher {
	o := dispatcherOptions{
		workers: defaultDispatchWorkers,
		queue:   defaultDispatchQueue,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &AsyncDispatcher{
		handler: handler,
		queue:   make(chan TurnResult, o.queue),
		logger:  o.logger,
		ctx:     ctx,
		cancel:  cancel,
		onDrop:  o.onDrop,
		onDone:  o.onDone,
	}

	d.wg.Add(o.workers)
	for i := 0; i < o.workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch implements [Dispatcher]. Non-blocking; drops on a full queue.
func (d *AsyncDispatcher) Dispatch(result TurnResult) {
	d.pending.Add(1)
	select {
	case d.queue <- result:
	default:
		d.pending.Add(-1)
		d.logger.Warn("dispatch queue full, dropping turn",
			"speaker_id", result.SpeakerID,
			"duration", result.Duration,
		)
		if result.Clip != nil {
			_ = result.Clip.Discard()
		}
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}

// Close stops accepting new turns, drains the queue, and waits for in-flight
// handlers to finish.
func (d *AsyncDispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.queue)
		d.wg.Wait()
		d.cancel()
	})
	return nil
}

func (d *AsyncDispatcher) worker() {
	defer d.wg.Done()
	for result := range d.queue {
		start := time.Now()
		err := d.handler(d.ctx, result)
		if err != nil {
			d.logger.Warn("turn dispatch failed",
				"speaker_id", result.SpeakerID,
				"started_at", result.StartedAt,
				"err", err,
			)
		}
		if d.onDone != nil {
			d.onDone(err, time.Since(start))
		}
		d.pending.Add(-1)
	}
}

// WaitIdle blocks until every queued turn has been handled or ctx expires.
// Callers use it to flush in-flight transcription before reading results
// that depend on it, such as an end-of-session recap.
func (d *AsyncDispatcher) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if d.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
