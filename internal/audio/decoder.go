package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// pcmDecoder yields 16-bit little-endian interleaved PCM.
type pcmDecoder interface {
	io.Reader
	SampleRate() int
	ChannelCount() int
}

// SupportedExts lists the file extensions the replay source can decode.
var SupportedExts = []string{".wav", ".mp3", ".flac", ".ogg"}

// newDecoder detects format by file extension and returns the appropriate decoder.
func newDecoder(f *os.File) (pcmDecoder, error) {
	ext := strings.ToLower(filepath.Ext(f.Name()))
	switch ext {
	case ".mp3":
		return newMP3Decoder(f)
	case ".wav":
		return newWAVDecoder(f)
	case ".flac":
		return newFLACDecoder(f)
	case ".ogg":
		return newOGGDecoder(f)
	default:
		return nil, fmt.Errorf("unsupported format: %s", ext)
	}
}

// clamp16 saturates v to the int16 range and stores it at b.
func clamp16(b []byte, v int) {
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	binary.LittleEndian.PutUint16(b, uint16(int16(v)))
}

// --- MP3 ---

type mp3Decoder struct {
	dec *mp3.Decoder
}

func newMP3Decoder(f *os.File) (*mp3Decoder, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decoding MP3: %w", err)
	}
	return &mp3Decoder{dec: dec}, nil
}

func (d *mp3Decoder) Read(p []byte) (int, error) { return d.dec.Read(p) }
func (d *mp3Decoder) SampleRate() int            { return d.dec.SampleRate() }

// go-mp3 always emits stereo.
func (d *mp3Decoder) ChannelCount() int { return 2 }

// --- WAV ---

type wavDecoder struct {
	r          io.Reader // bounded to the data chunk
	buf        []byte
	src        []byte
	sampleRate int
	channels   int
	bitDepth   int
}

func newWAVDecoder(f *os.File) (*wavDecoder, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	// FwdToPCM positions the reader at the start of PCM data
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("reading WAV PCM data: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported WAV bit depth %d", bitDepth)
	}

	return &wavDecoder{
		r:          io.LimitReader(f, dec.PCMLen()),
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   bitDepth,
	}, nil
}

func (d *wavDecoder) Read(p []byte) (int, error) {
	if len(d.buf) > 0 {
		n := copy(p, d.buf)
		d.buf = d.buf[n:]
		return n, nil
	}

	srcBytesPerSample := d.bitDepth / 8
	numOutputSamples := max(len(p)/2, 1)
	if cap(d.src) < numOutputSamples*srcBytesPerSample {
		d.src = make([]byte, numOutputSamples*srcBytesPerSample)
	}
	src := d.src[:numOutputSamples*srcBytesPerSample]
	n, err := io.ReadFull(d.r, src)
	samplesRead := n / srcBytesPerSample
	if samplesRead == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}

	raw := make([]byte, samplesRead*2)
	for i := range samplesRead {
		// sampleAt scales to [-1, 1); shift back to the 16-bit range.
		v := sampleAt(src[i*srcBytesPerSample:], d.bitDepth)
		clamp16(raw[i*2:], int(v*32768))
	}

	written := copy(p, raw)
	if written < len(raw) {
		d.buf = raw[written:]
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err == io.EOF && len(d.buf) > 0 {
		err = nil
	}
	return written, err
}

func (d *wavDecoder) SampleRate() int   { return d.sampleRate }
func (d *wavDecoder) ChannelCount() int { return d.channels }

// --- FLAC ---

type flacDecoder struct {
	stream     *flac.Stream
	buf        []byte
	sampleRate int
	channels   int
	bps        int
}

func newFLACDecoder(f *os.File) (*flacDecoder, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("decoding FLAC: %w", err)
	}
	info := stream.Info
	return &flacDecoder{
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bps:        int(info.BitsPerSample),
	}, nil
}

func (d *flacDecoder) Read(p []byte) (int, error) {
	if len(d.buf) > 0 {
		n := copy(p, d.buf)
		d.buf = d.buf[n:]
		return n, nil
	}

	frame, err := d.stream.ParseNext()
	if err != nil {
		return 0, err
	}

	nSamples := int(frame.Subframes[0].NSamples)
	raw := make([]byte, nSamples*d.channels*2)
	for i := range nSamples {
		for ch := range d.channels {
			sample := int(frame.Subframes[ch].Samples[i])
			switch {
			case d.bps > 16:
				sample >>= (d.bps - 16)
			case d.bps < 16:
				sample <<= (16 - d.bps)
			}
			clamp16(raw[(i*d.channels+ch)*2:], sample)
		}
	}

	written := copy(p, raw)
	if written < len(raw) {
		d.buf = raw[written:]
	}
	return written, nil
}

func (d *flacDecoder) SampleRate() int   { return d.sampleRate }
func (d *flacDecoder) ChannelCount() int { return d.channels }

// --- Ogg Vorbis ---

type oggDecoder struct {
	reader  *oggvorbis.Reader
	buf     []byte
	samples []float32
}

func newOGGDecoder(f *os.File) (*oggDecoder, error) {
	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decoding OGG: %w", err)
	}
	return &oggDecoder{reader: reader}, nil
}

func (d *oggDecoder) Read(p []byte) (int, error) {
	if len(d.buf) > 0 {
		n := copy(p, d.buf)
		d.buf = d.buf[n:]
		return n, nil
	}

	want := max(len(p)/2, 1)
	if cap(d.samples) < want {
		d.samples = make([]float32, want)
	}
	n, err := d.reader.Read(d.samples[:want])
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	raw := make([]byte, n*2)
	for i, s := range d.samples[:n] {
		clamp16(raw[i*2:], int(s*32767))
	}

	written := copy(p, raw)
	if written < len(raw) {
		d.buf = raw[written:]
	}
	if err == io.EOF && len(d.buf) > 0 {
		err = nil
	}
	return written, err
}

func (d *oggDecoder) SampleRate() int   { return d.reader.SampleRate() }
func (d *oggDecoder) ChannelCount() int { return d.reader.Channels() }
