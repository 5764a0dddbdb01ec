// Package audio defines the interfaces and types for voice-platform
// connectivity and the PCM utilities shared by the capture pipeline.
//
// The two primary abstractions are:
//
//   - [Platform] connects to a voice channel and returns a [Connection].
//   - [Connection] is an active receive-only session on that channel, giving
//     callers a demuxed stream of per-speaker PCM frames plus speaking
//     start/stop signals.
//
// Implementations are provided by platform-specific adapter packages
// (e.g., audio/discord). The interfaces are intentionally narrow so the
// capture engine stays decoupled from provider details.
//
// This package lives under pkg/ because external code (third-party platform
// adapters) is expected to implement [Platform] and [Connection].
package audio

import "context"

// EventType classifies speaker activity events emitted by a [Connection].
type EventType int

const (
	// EventSpeakingStart is emitted when a participant begins transmitting voice.
	EventSpeakingStart EventType = iota

	// EventSpeakingStop is emitted when a participant stops transmitting voice.
	// Stops are raw signals: they may repeat, arrive during brief pauses, or
	// arrive for speakers that never produced audio. Consumers debounce them.
	EventSpeakingStop

	// EventLeave is emitted when a participant leaves the voice channel.
	EventLeave
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventSpeakingStart:
		return "SPEAKING_START"
	case EventSpeakingStop:
		return "SPEAKING_STOP"
	case EventLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Event describes a speaker activity change on a voice channel.
// Callbacks registered via [Connection.OnSpeaking] receive values of this type.
type Event struct {
	// Type indicates the kind of activity change.
	Type EventType

	// SpeakerID is the platform-specific unique identifier for the participant.
	SpeakerID string

	// DisplayName is the human-readable name of the participant, when the
	// platform has resolved one. May be empty for speakers identified only
	// by a transport-level ID.
	DisplayName string
}

// Connection represents an active receive session on a voice channel.
//
// A Connection is obtained from [Platform.Connect] and remains valid until
// [Connection.Disconnect] is called. The frames channel is closed when the
// connection terminates.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// Frames returns the read-only channel delivering decoded per-speaker PCM.
	// Frames for one speaker are delivered in capture order; frames from
	// different speakers interleave arbitrarily. The channel is closed on
	// Disconnect.
	Frames() <-chan Frame

	// Format reports the PCM format of every frame this connection delivers.
	Format() Format

	// ChannelName returns a descriptive label for the connected channel.
	ChannelName() string

	// OnSpeaking registers cb as the callback invoked on speaker activity
	// changes. Only one callback may be registered at a time; subsequent
	// calls replace the previous registration. The callback is invoked on an
	// internal goroutine; callers must not block.
	OnSpeaking(cb func(Event))

	// Disconnect tears down the connection and closes the frames channel.
	// Safe to call more than once; subsequent calls are no-ops returning nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
// Implementations wrap provider-specific SDKs and expose a uniform
// [Connection] abstraction.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by channelID and returns an
	// active [Connection]. The supplied ctx governs the connection attempt
	// only; once connected, the Connection lives until Disconnect.
	Connect(ctx context.Context, channelID string) (Connection, error)
}
