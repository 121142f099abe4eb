package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/olivier-w/tftviz/internal/clock"
)

const defaultReadTimeout = 100 * time.Millisecond

// FIFOSource reads PCM from a named pipe.
//
// The pipe is opened non-blocking so opening never waits for a writer, and
// the descriptor is served by the runtime poller so reads honour deadlines.
// With no writer attached a read reports end of file, which surfaces as
// ErrStreamClosed.
type FIFOSource struct {
	f       *os.File
	format  Format
	timeout time.Duration
	clock   clock.Clock

	raw     []byte
	pending []byte // bytes of an incomplete frame carried to the next read

	closeOnce sync.Once
	closeErr  error
}

// FIFOOpener opens FIFOSources for a fixed path and format.
type FIFOOpener struct {
	Path        string
	Format      Format
	ReadTimeout time.Duration
	Clock       clock.Clock
}

// Open implements Opener.
func (o FIFOOpener) Open(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return OpenFIFO(o.Path, o.Format, o.ReadTimeout, o.Clock)
}

// OpenFIFO opens the pipe at path. A zero timeout uses 100ms and a nil
// clock uses the system clock.
func OpenFIFO(path string, format Format, timeout time.Duration, clk clock.Clock) (*FIFOSource, error) {
	if format.FrameSize() <= 0 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid format %+v", format)
	}
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if clk == nil {
		clk = clock.System{}
	}

	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrSourceIO, path, err)
	}

	return &FIFOSource{
		f:       f,
		format:  format,
		timeout: timeout,
		clock:   clk,
	}, nil
}

// Format implements Source.
func (s *FIFOSource) Format() Format { return s.format }

// ReadFrame implements Source.
func (s *FIFOSource) ReadFrame(ctx context.Context, n int) (Frame, error) {
	if n <= 0 {
		return Frame{}, fmt.Errorf("audio: invalid frame length %d", n)
	}
	need := n * s.format.FrameSize()
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	buf := s.raw[:need]

	got := copy(buf, s.pending)
	s.pending = append(s.pending[:0], s.pending[got:]...)

	if got < need {
		if err := s.fill(ctx, buf, got); err != nil {
			return Frame{}, err
		}
	}

	return Frame{
		Samples:    DecodeMono(nil, buf, s.format),
		SampleRate: s.format.SampleRate,
		Captured:   s.clock.Now(),
	}, nil
}

// fill reads into buf[got:] until it is full, the timeout expires or ctx is
// cancelled.
func (s *FIFOSource) fill(ctx context.Context, buf []byte, got int) error {
	if err := s.f.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %v", ErrSourceIO, err)
	}
	// Cancellation interrupts a pending read by moving the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = s.f.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	for got < len(buf) {
		m, err := s.f.Read(buf[got:])
		got += m
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.pending = s.pending[:0]
				return ctxErr
			}
			s.pending = append(s.pending[:0], buf[:got]...)
			return ErrNoData
		case errors.Is(err, io.EOF):
			s.pending = s.pending[:0]
			return ErrStreamClosed
		default:
			s.pending = s.pending[:0]
			return fmt.Errorf("%w: read: %v", ErrSourceIO, err)
		}
	}
	return nil
}

// Close releases the pipe. It is safe to call more than once.
func (s *FIFOSource) Close() error {
	s.closeOnce.Do(func() {
		s.pending = nil
		s.closeErr = s.f.Close()
	})
	return s.closeErr
}
