package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/0xChin/ricardo/pkg/audio"
)

// errRecorderClosed is returned by append after close or destroy. Callers
// treat it as a benign drop: the turn ended between lookup and write.
var errRecorderClosed = errors.New("capture: recorder closed")

// errClipConsumed is returned by ClipHandle.Open after the first call.
var errClipConsumed = errors.New("capture: clip already consumed")

const spoolBufferSize = 64 * 1024

// recorder accumulates one speaking turn's PCM audio in a spool file.
// Appends are buffered through bufio so per-frame writes stay cheap; the
// mutex serialises appends against close/destroy, which may run on the
// engine's event loop while frames arrive from the platform receive loop.
type recorder struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	size   int64
	format audio.Format
	closed bool
}

// newRecorder opens a fresh spool file in dir for one speaker's turn.
func newRecorder(dir, speakerID string, format audio.Format) (*recorder, error) {
	f, err := os.CreateTemp(dir, "turn-"+sanitizeName(speakerID)+"-*.pcm")
	if err != nil {
		return nil, fmt.Errorf("capture: create spool file: %w", err)
	}
	return &recorder{
		file:   f,
		buf:    bufio.NewWriterSize(f, spoolBufferSize),
		format: format,
	}, nil
}

// append writes a PCM chunk to the spool file.
func (r *recorder) append(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRecorderClosed
	}
	n, err := r.buf.Write(pcm)
	r.size += int64(n)
	if err != nil {
		return fmt.Errorf("capture: spool write: %w", err)
	}
	return nil
}

// close flushes the spool file and seals it into a one-shot ClipHandle.
// The recorder is unusable afterwards.
func (r *recorder) close() (*ClipHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errRecorderClosed
	}
	r.closed = true

	flushErr := r.buf.Flush()
	closeErr := r.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		_ = os.Remove(r.file.Name())
		return nil, fmt.Errorf("capture: seal spool file: %w", err)
	}

	return &ClipHandle{
		path:   r.file.Name(),
		size:   r.size,
		format: r.format,
	}, nil
}

// destroy aborts the recording and removes the spool file.
// Safe to call after close; it then only removes the file if still present.
func (r *recorder) destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		_ = r.file.Close()
	}
	if err := os.Remove(r.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("capture: remove spool file: %w", err)
	}
	return nil
}

// ClipHandle is a one-shot readable reference to a finalized turn's raw PCM
// audio. Open may be called exactly once; closing the returned reader deletes
// the backing spool file. Holders that never open the clip must call Discard
// to release the file.
type ClipHandle struct {
	path   string
	size   int64
	format audio.Format

	mu       sync.Mutex
	consumed bool
}

// NewClipHandle wraps an existing raw PCM file in a one-shot handle. Useful
// for reprocessing spooled clips outside the capture engine.
func NewClipHandle(path string, size int64, format audio.Format) *ClipHandle {
	return &ClipHandle{path: path, size: size, format: format}
}

// Size returns the clip length in bytes of raw PCM.
func (h *ClipHandle) Size() int64 { return h.size }

// Format returns the PCM format the clip was captured in.
func (h *ClipHandle) Format() audio.Format { return h.format }

// Duration returns the clip's audio length derived from its byte size.
func (h *ClipHandle) Duration() time.Duration { return h.format.Duration(int(h.size)) }

// Open returns a reader over the clip's PCM bytes. The clip is consumed:
// a second Open returns an error, and closing the reader deletes the
// backing file.
func (h *ClipHandle) Open() (io.ReadCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.consumed {
		return nil, errClipConsumed
	}
	f, err := os.Open(h.path)
	if err != nil {
		return nil, fmt.Errorf("capture: open clip: %w", err)
	}
	h.consumed = true
	return &clipReader{File: f, path: h.path}, nil
}

// Discard releases the clip without reading it, removing the backing file.
// Safe to call after Open or repeatedly.
func (h *ClipHandle) Discard() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.consumed {
		return nil
	}
	h.consumed = true
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("capture: discard clip: %w", err)
	}
	return nil
}

// clipReader deletes the spool file when closed.
type clipReader struct {
	*os.File
	path string
}

func (r *clipReader) Close() error {
	err := r.File.Close()
	if rmErr := os.Remove(r.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
