// Package mock provides in-memory mock implementations of the
// [audio.Platform] and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields the test can set to control return values.
//
// Typical usage:
//
//	conn := mock.NewConnection("war-room")
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "channel-42")
//	conn.EmitEvent(audio.Event{Type: audio.EventSpeakingStart, SpeakerID: "u1"})
//	conn.PushFrame(audio.Frame{SpeakerID: "u1", PCM: pcm})
package mock

import (
	"context"
	"sync"

	"github.com/0xChin/ricardo/pkg/audio"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection].
// Create one with [NewConnection]; inspect the Call* fields after use.
type Connection struct {
	mu sync.Mutex

	// FormatResult is returned by [Connection.Format].
	FormatResult audio.Format

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	// RecordedCallbacks holds the callbacks registered via OnSpeaking,
	// in order of registration.
	RecordedCallbacks []func(audio.Event)

	name     string
	frames   chan audio.Frame
	closed   bool
}

// NewConnection creates a mock connection for the named channel with a
// buffered frames channel and a 48 kHz stereo 16-bit default format.
func NewConnection(channelName string) *Connection {
	return &Connection{
		name:         channelName,
		frames:       make(chan audio.Frame, 64),
		FormatResult: audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16},
	}
}

// Frames implements [audio.Connection].
func (c *Connection) Frames() <-chan audio.Frame {
	return c.frames
}

// Format implements [audio.Connection]. Returns FormatResult.
func (c *Connection) Format() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.FormatResult
}

// ChannelName implements [audio.Connection].
func (c *Connection) ChannelName() string {
	return c.name
}

// OnSpeaking implements [audio.Connection].
// The callback is appended to RecordedCallbacks. To simulate events in
// tests, call [Connection.EmitEvent].
func (c *Connection) OnSpeaking(cb func(audio.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RecordedCallbacks = append(c.RecordedCallbacks, cb)
}

// Disconnect implements [audio.Connection]. Closes the frames channel on the
// first call and returns DisconnectError.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return c.DisconnectError
}

// EmitEvent calls all registered speaking callbacks with the given event.
// Use this in tests to simulate speaking starts and stops.
func (c *Connection) EmitEvent(ev audio.Event) {
	c.mu.Lock()
	cbs := make([]func(audio.Event), len(c.RecordedCallbacks))
	copy(cbs, c.RecordedCallbacks)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// PushFrame delivers a frame to consumers of [Connection.Frames].
func (c *Connection) PushFrame(f audio.Frame) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.frames <- f
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	// ChannelID is the channelID argument passed to Connect.
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is the [audio.Connection] returned by Connect.
	ConnectResult audio.Connection

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

// Connect implements [audio.Platform]. Records the call and returns
// ConnectResult / ConnectError.
func (p *Platform) Connect(_ context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{ChannelID: channelID})
	return p.ConnectResult, p.ConnectError
}
