// Package capture implements the per-speaker recording state machine at the
// heart of ricardo: one gap-tolerant audio clip per speaking turn, assembled
// into a session transcript feed and handed to downstream processing without
// blocking live audio ingestion.
//
// The central type is [Engine]. It consumes speaking start/stop signals from
// a voice platform, owns a set of per-speaker turn recorders, debounces raw
// stop signals into confirmed turn ends via a [Scheduler], and dispatches
// each finalized turn through a [Dispatcher] (fire-and-forget). All turn
// state transitions happen on a single event loop, so the non-commutative
// start/stop orderings of overlapping speakers are processed strictly in
// arrival order.
package capture

import (
	"errors"
	"time"

	"github.com/0xChin/ricardo/pkg/audio"
)

// Sentinel errors surfaced to callers of the session commands.
var (
	// ErrAlreadyRecording is returned by [Engine.Begin] when a recording
	// session is already active. At most one session runs per process.
	ErrAlreadyRecording = errors.New("capture: a recording session is already active")

	// ErrNoActiveSession is returned by [Engine.End] when no session is active.
	ErrNoActiveSession = errors.New("capture: no active recording session")
)

// TurnResult is the immutable output contract handed to a [Dispatcher] for
// each finalized speaking turn. Ownership of the clip transfers with it: the
// engine discards its reference at dispatch time and never touches the clip
// again.
type TurnResult struct {
	// SessionID is the recording session this turn belongs to.
	SessionID string

	// SpeakerID is the stable identifier of the speaking participant.
	SpeakerID string

	// DisplayName is the participant's name as resolved at turn start.
	DisplayName string

	// StartedAt is the capture start instant of the turn.
	StartedAt time.Time

	// Duration spans from capture start to the raw stop instant that led to
	// the confirmed end; the debounce tail is excluded. Turns force-ended
	// while still capturing measure to the finalize instant instead.
	Duration time.Duration

	// Clip is the one-shot readable handle to the turn's raw PCM audio.
	Clip *ClipHandle
}

// TurnRecord is the per-turn entry retained in a [SessionSnapshot]. It is
// the audio-free projection of a [TurnResult].
type TurnRecord struct {
	SpeakerID   string
	DisplayName string
	StartedAt   time.Time
	Duration    time.Duration
}

// SessionSnapshot is the completed-session view returned by [Engine.End].
// Turns appear in completion order, not speech order; consumers needing
// chronology must sort by StartedAt.
type SessionSnapshot struct {
	SessionID   string
	ChannelName string
	StartedAt   time.Time
	EndedAt     time.Time
	Turns       []TurnRecord
}

// SessionInfo holds metadata about the active session, for status displays.
type SessionInfo struct {
	SessionID   string
	ChannelName string
	StartedAt   time.Time

	// ActiveTurns is the number of speakers currently capturing or pending end.
	ActiveTurns int

	// CompletedTurns is the number of turns finalized so far.
	CompletedTurns int
}

// Dispatcher receives finalized turns for downstream processing (format
// conversion, transcription, archival). Dispatch must not block the caller:
// implementations hand the work to their own goroutines and contain all
// failures. A failed dispatch only means that turn's content is absent from
// the eventual transcript.
type Dispatcher interface {
	Dispatch(result TurnResult)
}

// Config holds the deployment-wide capture parameters.
type Config struct {
	// QuietPeriod is the debounce window: a speaker must stay silent this
	// long after a raw stop signal before the turn is confirmed ended.
	QuietPeriod time.Duration

	// SpoolDir is the directory turn clips are spooled to while recording.
	// Empty means the OS temp directory.
	SpoolDir string

	// Format is the PCM format of ingested audio, threaded through to every
	// clip handle so downstream WAV muxing uses the right header fields.
	Format audio.Format
}

// DefaultQuietPeriod is used when Config.QuietPeriod is zero.
const DefaultQuietPeriod = 1500 * time.Millisecond
