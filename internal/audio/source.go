// Package audio acquires PCM audio for the visualizer.
//
// A Source hands out fixed-length mono frames stamped with the time the read
// completed. The live source is a named pipe written by the audio server's
// FIFO output; a replay source plays an audio file through the same contract
// for bench testing.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSourceUnavailable reports that the FIFO (or replay file) does not
	// exist yet. Retry with backoff.
	ErrSourceUnavailable = errors.New("audio: source unavailable")

	// ErrSourceIO reports an unexpected read or open failure. Close the
	// source and reopen with backoff.
	ErrSourceIO = errors.New("audio: source i/o error")

	// ErrStreamClosed reports that the writer side of the FIFO is closed,
	// usually because the player stopped. Close and reopen later.
	ErrStreamClosed = errors.New("audio: stream closed")

	// ErrNoData reports that the read timeout expired before a full frame
	// arrived. Bytes already read are kept for the next call.
	ErrNoData = errors.New("audio: no data before timeout")

	// ErrSourceDone reports that a finite source, such as a replay file
	// without looping, has played to its end. It also matches
	// ErrStreamClosed. Callers should not reopen it.
	ErrSourceDone = errors.New("audio: source finished")
)

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int

	// BitDepth is 8 (unsigned), 16, 24 or 32 (signed).
	BitDepth int
}

// FrameSize returns the byte size of one interleaved sample frame.
func (f Format) FrameSize() int {
	return f.Channels * f.BitDepth / 8
}

// Duration returns the playback time of n sample frames.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate)
}

// Frame is one read worth of mono samples in [-1, 1].
type Frame struct {
	Samples    []float64
	SampleRate int

	// Captured is the monotonic time at which the read completed.
	Captured time.Time
}

// Source yields audio frames.
type Source interface {
	// Format reports the PCM layout of the underlying stream.
	Format() Format

	// ReadFrame blocks, bounded by the source's read timeout, until n mono
	// samples are available. It returns ErrStreamClosed, ErrSourceIO,
	// ErrNoData or the context's error otherwise.
	ReadFrame(ctx context.Context, n int) (Frame, error)

	Close() error
}

// Opener opens a fresh Source. It returns ErrSourceUnavailable or
// ErrSourceIO (wrapped) when the source cannot be opened.
type Opener interface {
	Open(ctx context.Context) (Source, error)
}
