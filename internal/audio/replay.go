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

	"github.com/olivier-w/tftviz/internal/clock"
)

// ReplaySource plays an audio file through the Source contract, standing in
// for the FIFO when no player is running.
type ReplaySource struct {
	path     string
	loop     bool
	realtime bool
	clock    clock.Clock

	file   *os.File
	dec    pcmDecoder
	format Format
	raw    []byte

	started time.Time
	served  int

	closeOnce sync.Once
	closeErr  error
}

// ReplayOpener opens ReplaySources for a fixed file.
type ReplayOpener struct {
	Path string

	// Loop restarts the file at end of stream instead of reporting
	// ErrSourceDone.
	Loop bool

	// Realtime paces reads so samples are handed out no faster than they
	// would play.
	Realtime bool

	Clock clock.Clock
}

// Open implements Opener.
func (o ReplayOpener) Open(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clk := o.Clock
	if clk == nil {
		clk = clock.System{}
	}
	s := &ReplaySource{
		path:     o.Path,
		loop:     o.Loop,
		realtime: o.Realtime,
		clock:    clk,
	}
	if err := s.rewind(); err != nil {
		return nil, err
	}
	s.started = clk.Now()
	return s, nil
}

// rewind (re)opens the file and its decoder at the first sample.
func (s *ReplaySource) rewind() error {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceUnavailable, s.path)
		}
		return fmt.Errorf("%w: open %s: %v", ErrSourceIO, s.path, err)
	}
	dec, err := newDecoder(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrSourceIO, s.path, err)
	}
	format := Format{SampleRate: dec.SampleRate(), Channels: dec.ChannelCount(), BitDepth: 16}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		f.Close()
		return fmt.Errorf("%w: %s: invalid stream format %+v", ErrSourceIO, s.path, format)
	}
	if s.dec != nil && format != s.format {
		f.Close()
		return fmt.Errorf("%w: %s: format changed on rewind", ErrSourceIO, s.path)
	}
	s.file = f
	s.dec = dec
	s.format = format
	return nil
}

// Format implements Source.
func (s *ReplaySource) Format() Format { return s.format }

// ReadFrame implements Source.
func (s *ReplaySource) ReadFrame(ctx context.Context, n int) (Frame, error) {
	if n <= 0 {
		return Frame{}, fmt.Errorf("audio: invalid frame length %d", n)
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	need := n * s.format.FrameSize()
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	buf := s.raw[:need]

	got := 0
	rewound := false
	for got < need {
		m, err := io.ReadFull(s.dec, buf[got:])
		got += m
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("%w: %s: %v", ErrSourceIO, s.path, err)
		}
		// An empty file would spin forever on rewind.
		if !s.loop || (rewound && m == 0) {
			return Frame{}, fmt.Errorf("%w: %s: %w", ErrSourceDone, s.path, ErrStreamClosed)
		}
		if err := s.rewind(); err != nil {
			return Frame{}, err
		}
		rewound = true
	}

	if s.realtime {
		if err := s.pace(ctx, n); err != nil {
			return Frame{}, err
		}
	}
	s.served += n

	return Frame{
		Samples:    DecodeMono(nil, buf, s.format),
		SampleRate: s.format.SampleRate,
		Captured:   s.clock.Now(),
	}, nil
}

// pace waits until the next n samples would have finished playing.
func (s *ReplaySource) pace(ctx context.Context, n int) error {
	due := s.started.Add(s.format.Duration(s.served + n))
	wait := due.Sub(s.clock.Now())
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close releases the file. It is safe to call more than once.
func (s *ReplaySource) Close() error {
	s.closeOnce.Do(func() {
		if s.file != nil {
			s.closeErr = s.file.Close()
		}
	})
	return s.closeErr
}
