package avtk

import (
	"encoding/binary"
	"math"
)

// PlanarToPacked interleaves per-channel PCM planes into one packed
// buffer. All planes must have equal length. Sample width is given in
// bytes and preserved as-is, so the conversion works for any format.
func PlanarToPacked(planes [][]byte, bytesPerSample int) []byte {
	if len(planes) == 0 {
		return nil
	}
	channels := len(planes)
	samples := len(planes[0]) / bytesPerSample
	out := make([]byte, samples*channels*bytesPerSample)
	for ch, plane := range planes {
		for i := 0; i < samples; i++ {
			src := i * bytesPerSample
			dst := (i*channels + ch) * bytesPerSample
			copy(out[dst:dst+bytesPerSample], plane[src:src+bytesPerSample])
		}
	}
	return out
}

// PackedToPlanar splits interleaved PCM into per-channel planes. The
// inverse of PlanarToPacked.
func PackedToPlanar(packed []byte, channels, bytesPerSample int) [][]byte {
	if channels <= 0 {
		return nil
	}
	samples := len(packed) / (channels * bytesPerSample)
	planes := make([][]byte, channels)
	for ch := range planes {
		planes[ch] = make([]byte, samples*bytesPerSample)
	}
	for i := 0; i < samples; i++ {
		for ch := 0; ch < channels; ch++ {
			src := (i*channels + ch) * bytesPerSample
			dst := i * bytesPerSample
			copy(planes[ch][dst:dst+bytesPerSample], packed[src:src+bytesPerSample])
		}
	}
	return planes
}

// F32ToS16 converts 32-bit float PCM to signed 16-bit PCM, clamping
// out-of-range samples. Both sides are little-endian and interleaved.
func F32ToS16(data []byte) []byte {
	n := len(data) / 4
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int16(v * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// S16ToF32 converts signed 16-bit PCM to 32-bit float PCM.
func S16ToF32(data []byte) []byte {
	n := len(data) / 2
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		v := float32(s) / 32767
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// SineSweep generates a test tone that slowly rises in pitch. The
// phase increment itself grows every sample, so the tone sweeps
// upward for as long as the generator runs.
type SineSweep struct {
	t      float64
	tincr  float64
	tincr2 float64
}

// NewSineSweep starts a sweep at the given frequency.
func NewSineSweep(freqHz float64, sampleRate int) *SineSweep {
	tincr := 2 * math.Pi * freqHz / float64(sampleRate)
	return &SineSweep{
		tincr:  tincr,
		tincr2: tincr / float64(sampleRate),
	}
}

// FillS16 writes n sample frames of the sweep into dst as interleaved
// signed 16-bit PCM, the same value on every channel.
func (s *SineSweep) FillS16(dst []byte, n, channels int) {
	for i := 0; i < n; i++ {
		v := int16(math.Sin(s.t) * 10000)
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(dst[(i*channels+ch)*2:], uint16(v))
		}
		s.t += s.tincr
		s.tincr += s.tincr2
	}
}

// FillF32 writes n sample frames of the sweep into dst as interleaved
// 32-bit float PCM.
func (s *SineSweep) FillF32(dst []byte, n, channels int) {
	for i := 0; i < n; i++ {
		v := float32(math.Sin(s.t) * 0.3)
		bits := math.Float32bits(v)
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint32(dst[(i*channels+ch)*4:], bits)
		}
		s.t += s.tincr
		s.tincr += s.tincr2
	}
}
