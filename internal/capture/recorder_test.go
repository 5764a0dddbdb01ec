package capture

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/0xChin/ricardo/pkg/audio"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

func TestRecorder_AppendCloseRoundTrip(t *testing.T) {
	t.Parallel()
	rec, err := newRecorder(t.TempDir(), "user-1", testFormat)
	if err != nil {
		t.Fatalf("newRecorder: %v", err)
	}

	if err := rec.append([]byte("hello ")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := rec.append([]byte("world")); err != nil {
		t.Fatalf("append: %v", err)
	}

	clip, err := rec.close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if clip.Size() != 11 {
		t.Errorf("Size() = %d, want 11", clip.Size())
	}
	if clip.Format() != testFormat {
		t.Errorf("Format() = %+v, want %+v", clip.Format(), testFormat)
	}

	r, err := clip.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("clip content = %q, want %q", data, "hello world")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close reader: %v", err)
	}

	// Closing the reader removes the spool file.
	if _, err := os.Stat(clip.path); !os.IsNotExist(err) {
		t.Errorf("spool file still exists after reader close: %v", err)
	}
}

func TestClipHandle_OpenIsOneShot(t *testing.T) {
	t.Parallel()
	rec, err := newRecorder(t.TempDir(), "user-1", testFormat)
	if err != nil {
		t.Fatalf("newRecorder: %v", err)
	}
	if err := rec.append([]byte{1, 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	clip, err := rec.close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := clip.Open()
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer r.Close()

	if _, err := clip.Open(); !errors.Is(err, errClipConsumed) {
		t.Errorf("second Open error = %v, want errClipConsumed", err)
	}
}

func TestClipHandle_DiscardRemovesFile(t *testing.T) {
	t.Parallel()
	rec, err := newRecorder(t.TempDir(), "user-1", testFormat)
	if err != nil {
		t.Fatalf("newRecorder: %v", err)
	}
	if err := rec.append([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("append: %v", err)
	}
	clip, err := rec.close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := clip.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := os.Stat(clip.path); !os.IsNotExist(err) {
		t.Error("spool file still exists after Discard")
	}

	// Discard is idempotent and Open after Discard fails.
	if err := clip.Discard(); err != nil {
		t.Errorf("second Discard: %v", err)
	}
	if _, err := clip.Open(); err == nil {
		t.Error("Open after Discard succeeded")
	}
}

func TestRecorder_AppendAfterClose(t *testing.T) {
	t.Parallel()
	rec, err := newRecorder(t.TempDir(), "user-1", testFormat)
	if err != nil {
		t.Fatalf("newRecorder: %v", err)
	}
	clip, err := rec.close()
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	defer clip.Discard()

	if err := rec.append([]byte{1}); !errors.Is(err, errRecorderClosed) {
		t.Errorf("append after close = %v, want errRecorderClosed", err)
	}
	if _, err := rec.close(); !errors.Is(err, errRecorderClosed) {
		t.Errorf("second close = %v, want errRecorderClosed", err)
	}
}

func TestRecorder_DestroyRemovesFile(t *testing.T) {
	t.Parallel()
	rec, err := newRecorder(t.TempDir(), "user-1", testFormat)
	if err != nil {
		t.Fatalf("newRecorder: %v", err)
	}
	if err := rec.append([]byte{1, 2, 3}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := rec.destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := os.Stat(rec.file.Name()); !os.IsNotExist(err) {
		t.Error("spool file still exists after destroy")
	}

	// Destroy after destroy is a no-op.
	if err := rec.destroy(); err != nil {
		t.Errorf("second destroy: %v", err)
	}
}
