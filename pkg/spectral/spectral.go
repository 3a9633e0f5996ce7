// Package spectral turns a completed event's per-channel sample sequences
// into magnitude spectra: each channel is zero-centered against its own
// mean, run through a complex FFT with zero imaginary input, and reduced to
// per-bin magnitudes. The two channels of one event are written out as
// interleaved float32 pairs in bin order.
package spectral

import (
	"encoding/binary"
	"math"
	"math/cmplx"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Processor holds the FFT plan for a fixed transform size.
type Processor struct {
	n   int
	fft *fourier.CmplxFFT
	in  []complex128
	out []complex128
}

// New builds a processor for transform size n (the per-half scan count).
func New(n int) *Processor {
	return &Processor{
		n:   n,
		fft: fourier.NewCmplxFFT(n),
		in:  make([]complex128, n),
		out: make([]complex128, n),
	}
}

// Size returns the transform size.
func (p *Processor) Size() int { return p.n }

// Magnitudes zero-centers samples in place, transforms them and returns the
// n per-bin magnitudes. len(samples) must equal the transform size.
func (p *Processor) Magnitudes(samples []float64) []float64 {
	ZeroCenter(samples)

	for i, v := range samples {
		p.in[i] = complex(v, 0)
	}
	p.fft.Coefficients(p.out, p.in)

	mags := make([]float64, p.n)
	for i, c := range p.out {
		mags[i] = cmplx.Abs(c)
	}
	return mags
}

// Mean returns the arithmetic mean of x, accumulated in float64 so large
// transform sizes do not lose precision.
func Mean(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// ZeroCenter subtracts the mean of x from every sample, in place.
func ZeroCenter(x []float64) {
	m := Mean(x)
	for i := range x {
		x[i] -= m
	}
}

// DecodeChannel pulls n samples of one channel out of a raw little-endian
// uint16 payload interleaved across stride channels.
func DecodeChannel(raw []byte, stride, ch, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		off := (i*stride + ch) * 2
		out[i] = float64(binary.LittleEndian.Uint16(raw[off:]))
	}
	return out
}

// WriteFile stores two magnitude spectra as interleaved little-endian
// float32 pairs (chA[i], chB[i]) in increasing bin order.
func WriteFile(path string, magA, magB []float64) error {
	if len(magA) != len(magB) {
		return errors.Errorf("spectral: channel length mismatch %d vs %d", len(magA), len(magB))
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "spectral: create output")
	}

	buf := make([]byte, len(magA)*8)
	for i := range magA {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(float32(magA[i])))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(float32(magB[i])))
	}

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return errors.Wrap(err, "spectral: write output")
	}
	return errors.Wrap(f.Close(), "spectral: close output")
}
