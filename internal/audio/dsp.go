package audio

import (
	"math"
	"math/cmplx"
)

// Resample converts s to rate using linear interpolation. A signal already
// at rate is returned unchanged.
func Resample(s Signal, rate int) Signal {
	if rate <= 0 || s.SampleRate == rate || len(s.Samples) == 0 {
		return s
	}

	ratio := float64(s.SampleRate) / float64(rate)
	n := int(math.Floor(float64(len(s.Samples)) / ratio))
	out := make([]float32, n)
	last := len(s.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = s.Samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = s.Samples[j]*(1-frac) + s.Samples[j+1]*frac
	}
	return Signal{Samples: out, SampleRate: rate}
}

// Peak returns the maximum absolute sample value.
func Peak(samples []float32) float64 {
	var p float64
	for _, v := range samples {
		if a := math.Abs(float64(v)); a > p {
			p = a
		}
	}
	return p
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS converts a linear amplitude to decibels relative to full scale.
// Zero maps to -Inf.
func DBFS(amplitude float64) float64 {
	return 20 * math.Log10(amplitude)
}

// NormalizePeak scales s so its peak sits at targetDBFS. Silent input is
// returned unchanged.
func NormalizePeak(s Signal, targetDBFS float64) Signal {
	peak := Peak(s.Samples)
	if peak == 0 {
		return s
	}
	gain := float32(math.Pow(10, targetDBFS/20) / peak)
	out := make([]float32, len(s.Samples))
	for i, v := range s.Samples {
		out[i] = v * gain
	}
	return Signal{Samples: out, SampleRate: s.SampleRate}
}

// ClippedRatio returns the fraction of samples whose magnitude is at or
// above level.
func ClippedRatio(samples []float32, level float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var n int
	for _, v := range samples {
		if math.Abs(float64(v)) >= level {
			n++
		}
	}
	return float64(n) / float64(len(samples))
}

// FrameStats splits samples into non-overlapping frames and returns the RMS
// and zero-crossing rate of each.
func FrameStats(samples []float32, frameSize int) (rms, zcr []float64) {
	if frameSize <= 0 {
		return nil, nil
	}
	for start := 0; start+frameSize <= len(samples); start += frameSize {
		frame := samples[start : start+frameSize]
		rms = append(rms, RMS(frame))
		var crossings int
		for i := 1; i < len(frame); i++ {
			if (frame[i-1] >= 0) != (frame[i] >= 0) {
				crossings++
			}
		}
		zcr = append(zcr, float64(crossings)/float64(frameSize))
	}
	return rms, zcr
}

// Spectrum is an averaged power spectrum; Power[k] is the energy of the
// bin centred on k*BinHz.
type Spectrum struct {
	Power []float64
	BinHz float64
}

// PowerSpectrum averages Hann-windowed FFT power over non-overlapping frames
// of frameSize samples. frameSize is rounded up to a power of two.
func PowerSpectrum(s Signal, frameSize int) Spectrum {
	size := 1
	for size < frameSize {
		size <<= 1
	}
	bins := size/2 + 1
	power := make([]float64, bins)

	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}

	buf := make([]complex128, size)
	frames := 0
	for start := 0; start+size <= len(s.Samples); start += size {
		for i := 0; i < size; i++ {
			buf[i] = complex(float64(s.Samples[start+i])*window[i], 0)
		}
		fft(buf)
		for k := 0; k < bins; k++ {
			a := cmplx.Abs(buf[k])
			power[k] += a * a
		}
		frames++
	}
	if frames > 0 {
		for k := range power {
			power[k] /= float64(frames)
		}
	}

	return Spectrum{Power: power, BinHz: float64(s.SampleRate) / float64(size)}
}

// Total returns the summed power across all bins except DC.
func (sp Spectrum) Total() float64 {
	var sum float64
	for k := 1; k < len(sp.Power); k++ {
		sum += sp.Power[k]
	}
	return sum
}

// BandRatio returns the fraction of non-DC energy between lo and hi Hz.
func (sp Spectrum) BandRatio(lo, hi float64) float64 {
	total := sp.Total()
	if total == 0 {
		return 0
	}
	var band float64
	for k := 1; k < len(sp.Power); k++ {
		f := float64(k) * sp.BinHz
		if f >= lo && f < hi {
			band += sp.Power[k]
		}
	}
	return band / total
}

// Flatness is the ratio of the geometric to the arithmetic mean of the
// non-DC power bins: near 1 for noise-like spectra, near 0 for tonal ones.
func (sp Spectrum) Flatness() float64 {
	if len(sp.Power) < 2 {
		return 0
	}
	const floor = 1e-12
	var logSum, sum float64
	n := float64(len(sp.Power) - 1)
	for k := 1; k < len(sp.Power); k++ {
		p := sp.Power[k] + floor
		logSum += math.Log(p)
		sum += p
	}
	arith := sum / n
	if arith == 0 {
		return 0
	}
	return math.Exp(logSum/n) / arith
}

// fft is an in-place iterative radix-2 Cooley–Tukey transform. len(x) must
// be a power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		w := cmplx.Exp(complex(0, -2*math.Pi/float64(length)))
		for i := 0; i < n; i += length {
			wn := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := x[i+k]
				v := x[i+k+length/2] * wn
				x[i+k] = u + v
				x[i+k+length/2] = u - v
				wn *= w
			}
		}
	}
}
