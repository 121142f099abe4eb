package audio

import "encoding/binary"

// DecodeMono converts interleaved little-endian PCM in raw to mono samples
// in [-1, 1], averaging channels. dst is reused when it has enough capacity.
// A trailing partial sample frame in raw is ignored.
func DecodeMono(dst []float64, raw []byte, f Format) []float64 {
	frameSize := f.FrameSize()
	if frameSize <= 0 {
		return dst[:0]
	}
	n := len(raw) / frameSize
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	bytesPerSample := f.BitDepth / 8
	scale := 1 / float64(f.Channels)
	for i := range n {
		var sum float64
		off := i * frameSize
		for range f.Channels {
			sum += sampleAt(raw[off:], f.BitDepth)
			off += bytesPerSample
		}
		dst[i] = sum * scale
	}
	return dst
}

func sampleAt(b []byte, bitDepth int) float64 {
	switch bitDepth {
	case 8:
		// 8-bit PCM is unsigned
		return float64(int(b[0])-128) / 128
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 24:
		s := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if s&0x800000 != 0 {
			s |= ^0xFFFFFF // sign extend
		}
		return float64(s) / 8388608
	case 32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	}
	return 0
}
