// Package whisper provides a local speech-to-text provider backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all concurrent
// transcriptions; each Transcribe call runs on its own whisper context.
package whisper

const (
	// defaultLanguage is the BCP-47 code used when no language is configured.
	defaultLanguage = "en"

	// requiredSampleRate is the only input rate whisper.cpp accepts.
	// Callers must resample clips before transcription.
	requiredSampleRate = 16000

	// silenceRMSThreshold is the normalised RMS below which a clip is
	// treated as silence and skipped without inference.
	silenceRMSThreshold = 0.005
)
