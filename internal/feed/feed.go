// Package feed streams finalized turn transcripts to WebSocket observers.
//
// The [Hub] fans archived turns out to all connected subscribers. Each
// subscriber has a bounded queue; a subscriber that cannot keep up is
// disconnected rather than allowed to stall the broadcast path.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/0xChin/ricardo/internal/archive"
	"github.com/0xChin/ricardo/internal/observe"
	"github.com/0xChin/ricardo/internal/transcript"
)

var _ transcript.Feed = (*Hub)(nil)
var _ http.Handler = (*Hub)(nil)

const (
	defaultQueueSize = 32
	writeTimeout     = 5 * time.Second
)

// Option configures a [Hub].
type Option func(*Hub)

// WithQueueSize sets the per-subscriber message queue length. Values below
// one keep the default.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. When nil, no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// turnEvent is the wire format for a broadcast turn.
type turnEvent struct {
	Type        string        `json:"type"`
	SessionID   string        `json:"session_id"`
	SpeakerID   string        `json:"speaker_id"`
	SpeakerName string        `json:"speaker_name"`
	Text        string        `json:"text"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// subscriber is one connected feed client. msgs is bounded; closeSlow tears
// the connection down when the queue overflows.
type subscriber struct {
	msgs      chan []byte
	closeSlow func()
}

// Hub broadcasts archived turns to WebSocket subscribers. It implements
// the transcript pipeline's Feed interface and http.Handler for the feed
// endpoint. Safe for concurrent use.
type Hub struct {
	queueSize int
	logger    *slog.Logger
	metrics   *observe.Metrics

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty Hub ready to accept subscribers.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
		subs:      make(map[*subscriber]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// BroadcastTurn fans one archived turn out to every subscriber. It never
// blocks: subscribers whose queue is full are disconnected.
func (h *Hub) BroadcastTurn(turn archive.Turn) {
	payload, err := json.Marshal(turnEvent{
		Type:        "turn",
		SessionID:   turn.SessionID,
		SpeakerID:   turn.SpeakerID,
		SpeakerName: turn.SpeakerName,
		Text:        turn.Text,
		StartedAt:   turn.StartedAt,
		Duration:    turn.Duration,
	})
	if err != nil {
		h.logger.Warn("feed: encode turn event", "err", err)
		return
	}
	h.publish(payload)
}

// publish delivers a raw payload to all subscribers.
func (h *Hub) publish(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.msgs <- payload:
		default:
			go s.closeSlow()
		}
	}
}

// SubscriberCount returns the number of currently connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request to a WebSocket and streams turn events to
// the client until it disconnects or falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("feed: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	if err := h.stream(r.Context(), conn); err != nil {
		h.logger.Debug("feed: subscriber disconnected", "remote", r.RemoteAddr, "err", err)
	}
}

// stream registers a subscriber for the connection and pumps its queue to
// the socket. Reads are discarded; the feed is one-way.
func (h *Hub) stream(ctx context.Context, conn *websocket.Conn) error {
	sub := &subscriber{
		msgs: make(chan []byte, h.queueSize),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "subscriber too slow to keep up")
		},
	}
	h.addSubscriber(sub)
	defer h.removeSubscriber(sub)

	ctx = conn.CloseRead(ctx)
	for {
		select {
		case payload := <-sub.msgs:
			if err := writeWithTimeout(ctx, conn, payload); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) addSubscriber(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.FeedSubscribers.Add(context.Background(), 1)
	}
}

func (h *Hub) removeSubscriber(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.FeedSubscribers.Add(context.Background(), -1)
	}
}

func writeWithTimeout(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
