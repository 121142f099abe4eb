package spectrum

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Transformer computes the one-sided discrete Fourier transform of a real
// sequence. *fourier.FFT from gonum satisfies it directly.
type Transformer interface {
	// Len returns the transform length.
	Len() int

	// Coefficients writes the Len()/2+1 coefficients of seq into dst,
	// allocating when dst is nil, and returns it. len(seq) must equal Len().
	Coefficients(dst []complex128, seq []float64) []complex128
}

// Backend names accepted by NewTransformer.
const (
	BackendGonum  = "gonum"
	BackendGoDSP  = "go-dsp"
	BackendRadix2 = "radix2"
)

// NewTransformer returns the named FFT implementation for length n, which
// must be a power of two.
func NewTransformer(backend string, n int) (Transformer, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, fmt.Errorf("spectrum: fft size %d is not a power of two", n)
	}
	switch backend {
	case BackendGonum, "":
		return fourier.NewFFT(n), nil
	case BackendGoDSP:
		return goDSPTransform{n: n}, nil
	case BackendRadix2:
		return newRadix2(n), nil
	default:
		return nil, fmt.Errorf("spectrum: unknown fft backend %q", backend)
	}
}

func resizeCoefficients(dst []complex128, n int) []complex128 {
	if cap(dst) < n {
		return make([]complex128, n)
	}
	return dst[:n]
}

// goDSPTransform wraps go-dsp, which returns the full two-sided spectrum.
type goDSPTransform struct {
	n int
}

func (t goDSPTransform) Len() int { return t.n }

func (t goDSPTransform) Coefficients(dst []complex128, seq []float64) []complex128 {
	if len(seq) != t.n {
		panic("spectrum: sequence length mismatch")
	}
	full := fft.FFTReal(seq)
	dst = resizeCoefficients(dst, t.n/2+1)
	copy(dst, full[:t.n/2+1])
	return dst
}

// radix2 is an in-place iterative Cooley-Tukey transform with precomputed
// twiddle factors.
type radix2 struct {
	real, imag []float64
	cos, sin   []float64
}

func newRadix2(n int) *radix2 {
	r := &radix2{
		real: make([]float64, n),
		imag: make([]float64, n),
		cos:  make([]float64, n/2),
		sin:  make([]float64, n/2),
	}
	for k := range n / 2 {
		angle := -2 * math.Pi * float64(k) / float64(n)
		r.cos[k] = math.Cos(angle)
		r.sin[k] = math.Sin(angle)
	}
	return r
}

func (r *radix2) Len() int { return len(r.real) }

func (r *radix2) Coefficients(dst []complex128, seq []float64) []complex128 {
	n := len(r.real)
	if len(seq) != n {
		panic("spectrum: sequence length mismatch")
	}
	copy(r.real, seq)
	clear(r.imag)
	r.transform()

	dst = resizeCoefficients(dst, n/2+1)
	for i := range dst {
		dst[i] = complex(r.real[i], r.imag[i])
	}
	return dst
}

func (r *radix2) transform() {
	re, im := r.real, r.imag
	n := len(re)

	// Bit-reversal permutation
	j := 0
	for i := 1; i < n; i++ {
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	// Butterfly operations
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size
		for i := 0; i < n; i += size {
			for k := range half {
				wr := r.cos[k*step]
				wi := r.sin[k*step]
				a := i + k
				b := a + half
				tr := wr*re[b] - wi*im[b]
				ti := wr*im[b] + wi*re[b]
				re[b] = re[a] - tr
				im[b] = im[a] - ti
				re[a] += tr
				im[a] += ti
			}
		}
	}
}
