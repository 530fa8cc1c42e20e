// Package iqgen generates I/Q test signals in the formats produced by rtl-sdr
// dongles and provides a direct-form reference filter to check them against.
package iqgen

import (
	"fmt"
	"math"
)

// CmplxOscillatorU8 returns samples of a complex tone at freq Hz as
// interleaved unsigned 8-bit I/Q with the given amplitude (0 to 1).
func CmplxOscillatorU8(samples int, freq, samplerate, amplitude float64) []byte {
	signal := make([]byte, samples<<1)

	for idx := 0; idx < samples; idx++ {
		s, c := math.Sincos(2 * math.Pi * float64(idx) * freq / samplerate)
		signal[idx<<1] = F64toU8(c * amplitude)
		signal[idx<<1+1] = F64toU8(s * amplitude)
	}

	return signal
}

// CmplxOscillator returns samples of a complex tone at freq Hz.
func CmplxOscillator(samples int, freq, samplerate float64) []complex64 {
	signal := make([]complex64, samples)

	for idx := range signal {
		s, c := math.Sincos(2 * math.Pi * float64(idx) * freq / samplerate)
		signal[idx] = complex(float32(c), float32(s))
	}

	return signal
}

// Constant returns samples pairs of the raw values i and q.
func Constant(samples int, i, q byte) []byte {
	signal := make([]byte, samples<<1)
	for idx := 0; idx < len(signal); idx += 2 {
		signal[idx] = i
		signal[idx+1] = q
	}
	return signal
}

// Alternating returns samples pairs cycling through the given raw values,
// both channels of a pair taking the same value.
func Alternating(samples int, values ...byte) []byte {
	if len(values) == 0 {
		panic(fmt.Errorf("iqgen: no values to alternate"))
	}

	signal := make([]byte, samples<<1)
	for idx := 0; idx < samples; idx++ {
		v := values[idx%len(values)]
		signal[idx<<1] = v
		signal[idx<<1+1] = v
	}
	return signal
}

// F64toU8 converts a value in [-1.0, 1.0] to the unsigned 8-bit
// representation, saturating at the limits.
func F64toU8(val float64) uint8 {
	v := math.Round(val*127.5 + 127.5)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// U8toC64 normalizes interleaved unsigned 8-bit I/Q to complex samples using
// v/127.5 - 1. A trailing odd byte is ignored.
func U8toC64(u8 []byte) []complex64 {
	out := make([]complex64, len(u8)>>1)
	for idx := range out {
		out[idx] = complex(
			float32(u8[idx<<1])/127.5-1,
			float32(u8[idx<<1+1])/127.5-1,
		)
	}
	return out
}

// Convolve is the direct-form FIR y[n] = sum_k h[k] x[n-k] over the whole
// input, with x zero before the first sample. The output has len(x) samples.
func Convolve(x []complex64, h []float32) []complex64 {
	y := make([]complex64, len(x))
	for n := range y {
		var acc complex128
		for k, c := range h {
			if n-k < 0 {
				break
			}
			acc += complex(float64(c), 0) * complex128(x[n-k])
		}
		y[n] = complex64(acc)
	}
	return y
}

// Correlate is the FIR with tap 0 applied to the oldest of the last len(h)
// samples, y[n] = sum_k h[k] x[n-len(h)+1+k]. This is Convolve with the taps
// reversed.
func Correlate(x []complex64, h []float32) []complex64 {
	r := make([]float32, len(h))
	for idx, c := range h {
		r[len(h)-1-idx] = c
	}
	return Convolve(x, r)
}

// Decimate keeps every m-th sample of x starting with sample m-1.
func Decimate(x []complex64, m int) []complex64 {
	y := make([]complex64, 0, len(x)/m)
	for idx := m - 1; idx < len(x); idx += m {
		y = append(y, x[idx])
	}
	return y
}

// Power returns the mean squared magnitude of x.
func Power(x []complex64) float64 {
	if len(x) == 0 {
		return 0
	}

	var sum float64
	for _, v := range x {
		r, i := float64(real(v)), float64(imag(v))
		sum += r*r + i*i
	}
	return sum / float64(len(x))
}
