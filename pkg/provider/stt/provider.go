// Package stt defines the Provider interface for speech-to-text backends.
//
// Unlike streaming voice assistants, ricardo transcribes complete clips: the
// capture engine seals one audio file per speaking turn, and the transcript
// pipeline hands each finished clip to a Provider in a single call. This
// keeps backends trivially swappable (local whisper.cpp, remote APIs) and
// sidesteps partial-result plumbing entirely.
//
// Implementations must be safe for concurrent use; the dispatcher runs
// multiple turn pipelines in parallel.
package stt

import "context"

// Request carries one complete clip of 16-bit little-endian PCM audio.
type Request struct {
	// PCM is the raw audio, interleaved when Channels > 1.
	PCM []byte

	// SampleRate in Hz of the PCM data.
	SampleRate int

	// Channels is the channel count of the PCM data.
	Channels int

	// Language is an optional BCP-47 hint (e.g., "en", "de"). Empty lets the
	// backend use its configured default.
	Language string
}

// Result is the transcription of one clip.
type Result struct {
	// Text is the full transcript, empty when the clip contained no speech.
	Text string

	// Language is the language the backend transcribed in.
	Language string
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts one complete clip to text. A clip with no
	// detectable speech yields a Result with empty Text, not an error.
	Transcribe(ctx context.Context, req Request) (*Result, error)

	// ModelID returns the backend-specific model identifier, for logging
	// and metrics attribution.
	ModelID() string
}
