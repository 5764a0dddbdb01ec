package audio

import "time"

// Format describes the PCM encoding of an audio byte stream: sample rate,
// channel count, and bits per sample. A deployment uses one capture Format
// for every speaker; it travels with each finished clip so downstream
// consumers can mux correct WAV headers without guessing.
type Format struct {
	// SampleRate in Hz (e.g., 48000 for Discord Opus decode output,
	// 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// BitDepth is the bits per sample. Only 16 (little-endian int16) is
	// produced by the built-in decoders.
	BitDepth int
}

// BytesPerSecond returns the PCM byte rate for this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Duration returns the play time of n PCM bytes in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Frame is a chunk of decoded PCM audio attributed to one speaker.
// Frames are the unit of transport between a voice platform connection and
// the capture engine; within one speaker they arrive in capture order.
type Frame struct {
	// SpeakerID is the platform-specific identifier of the participant
	// this audio belongs to.
	SpeakerID string

	// PCM holds little-endian int16 samples in the connection's capture format.
	PCM []byte

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}
