//go:build darwin || linux

// Sample rate conversion via libsamplerate (Secret Rabbit Code)
// using purego.

package avtk

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	samplerateOnce    sync.Once
	samplerateHandle  uintptr
	samplerateInitErr error
	samplerateLoaded  bool
)

// libsamplerate function pointers
var (
	srcNew               func(converterType, channels int32, err uintptr) uintptr
	srcDelete            func(state uintptr) uintptr
	srcProcess           func(state, data uintptr) int32
	srcReset             func(state uintptr) int32
	srcStrerror          func(err int32) uintptr
	srcShortToFloatArray func(in, out uintptr, length int32)
	srcFloatToShortArray func(in, out uintptr, length int32)
)

// ResampleQuality selects the libsamplerate converter.
type ResampleQuality int32

const (
	ResampleSincBest    ResampleQuality = 0
	ResampleSincMedium  ResampleQuality = 1
	ResampleSincFastest ResampleQuality = 2
	ResampleZeroOrder   ResampleQuality = 3
	ResampleLinear      ResampleQuality = 4
)

func (q ResampleQuality) String() string {
	switch q {
	case ResampleSincBest:
		return "sinc-best"
	case ResampleSincMedium:
		return "sinc-medium"
	case ResampleSincFastest:
		return "sinc-fastest"
	case ResampleZeroOrder:
		return "zero-order-hold"
	case ResampleLinear:
		return "linear"
	default:
		return fmt.Sprintf("quality(%d)", int32(q))
	}
}

// srcData mirrors SRC_DATA from samplerate.h.
type srcData struct {
	dataIn          uintptr // const float*
	dataOut         uintptr // float*
	inputFrames     int64
	outputFrames    int64
	inputFramesUsed int64
	outputFramesGen int64
	endOfInput      int32
	_               [4]byte
	srcRatio        float64
}

func loadSamplerate() error {
	samplerateOnce.Do(func() {
		samplerateInitErr = loadSamplerateLib()
		if samplerateInitErr == nil {
			samplerateLoaded = true
		}
	})
	return samplerateInitErr
}

func loadSamplerateLib() error {
	handle, err := openLibrary("SAMPLERATE_LIB_PATH", samplerateLibNames()...)
	if err != nil {
		return fmt.Errorf("failed to load libsamplerate: %w", err)
	}
	samplerateHandle = handle

	purego.RegisterLibFunc(&srcNew, handle, "src_new")
	purego.RegisterLibFunc(&srcDelete, handle, "src_delete")
	purego.RegisterLibFunc(&srcProcess, handle, "src_process")
	purego.RegisterLibFunc(&srcReset, handle, "src_reset")
	purego.RegisterLibFunc(&srcStrerror, handle, "src_strerror")
	purego.RegisterLibFunc(&srcShortToFloatArray, handle, "src_short_to_float_array")
	purego.RegisterLibFunc(&srcFloatToShortArray, handle, "src_float_to_short_array")
	return nil
}

func samplerateLibNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libsamplerate.dylib", "libsamplerate.0.dylib"}
	}
	return []string{"libsamplerate.so.0", "libsamplerate.so"}
}

// IsResamplerAvailable reports whether libsamplerate could be loaded.
func IsResamplerAvailable() bool {
	loadSamplerate()
	return samplerateLoaded
}

func samplerateError(code int32) error {
	msg := goStringFromPtr(srcStrerror(code))
	if msg == "" {
		msg = fmt.Sprintf("error %d", code)
	}
	return fmt.Errorf("libsamplerate: %s", msg)
}

// Resampler converts interleaved 16-bit PCM between sample rates. It
// is stateful: filter history carries across Convert calls, so blocks
// from one stream must go through one Resampler in order.
type Resampler struct {
	mu       sync.Mutex
	state    uintptr
	data     *srcData
	channels int
	inRate   int
	outRate  int
	ratio    float64
	quality  ResampleQuality
	floatIn  []float32
	floatOut []float32
	nextPTS  int64
}

// NewResampler creates a converter from inRate to outRate.
func NewResampler(inRate, outRate, channels int, quality ResampleQuality) (*Resampler, error) {
	if err := loadSamplerate(); err != nil {
		return nil, err
	}
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", inRate, outRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	errCode := new(int32)
	state := srcNew(int32(quality), int32(channels), uintptr(unsafe.Pointer(errCode)))
	runtime.KeepAlive(errCode)
	if state == 0 {
		return nil, fmt.Errorf("src_new failed: %w", samplerateError(*errCode))
	}

	return &Resampler{
		state:    state,
		data:     new(srcData),
		channels: channels,
		inRate:   inRate,
		outRate:  outRate,
		ratio:    float64(outRate) / float64(inRate),
		quality:  quality,
	}, nil
}

// Convert resamples one block. The output sample count varies from
// call to call because the converter buffers filter history; it can
// be zero for short inputs.
func (r *Resampler) Convert(in *AudioSamples) (*AudioSamples, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == 0 {
		return nil, fmt.Errorf("resampler is closed")
	}
	if in.Format != AudioFormatS16 {
		return nil, fmt.Errorf("resampler requires S16 input, got %s", in.Format)
	}
	if in.Channels != r.channels {
		return nil, fmt.Errorf("block has %d channels, resampler configured for %d",
			in.Channels, r.channels)
	}
	return r.process(in.Data, in.SampleCount, false)
}

// Drain flushes buffered filter history one block per call, then
// reports io.EOF.
func (r *Resampler) Drain() (*AudioSamples, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == 0 {
		return nil, fmt.Errorf("resampler is closed")
	}
	out, err := r.process(nil, 0, true)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, io.EOF
	}
	return out, nil
}

func (r *Resampler) process(pcm []byte, frames int, endOfInput bool) (*AudioSamples, error) {
	inSamples := frames * r.channels
	if cap(r.floatIn) < inSamples {
		r.floatIn = make([]float32, inSamples)
	}
	r.floatIn = r.floatIn[:inSamples]
	if inSamples > 0 {
		srcShortToFloatArray(
			uintptr(unsafe.Pointer(&pcm[0])),
			uintptr(unsafe.Pointer(&r.floatIn[0])),
			int32(inSamples))
		runtime.KeepAlive(pcm)
	}

	outFrames := int(float64(frames)*r.ratio) + 4096
	outSamples := outFrames * r.channels
	if cap(r.floatOut) < outSamples {
		r.floatOut = make([]float32, outSamples)
	}
	r.floatOut = r.floatOut[:outSamples]

	d := r.data
	d.dataIn = 0
	if inSamples > 0 {
		d.dataIn = uintptr(unsafe.Pointer(&r.floatIn[0]))
	}
	d.dataOut = uintptr(unsafe.Pointer(&r.floatOut[0]))
	d.inputFrames = int64(frames)
	d.outputFrames = int64(outFrames)
	d.inputFramesUsed = 0
	d.outputFramesGen = 0
	d.endOfInput = 0
	if endOfInput {
		d.endOfInput = 1
	}
	d.srcRatio = r.ratio

	ret := srcProcess(r.state, uintptr(unsafe.Pointer(d)))
	runtime.KeepAlive(d)
	runtime.KeepAlive(r.floatIn)
	runtime.KeepAlive(r.floatOut)
	if ret != 0 {
		return nil, fmt.Errorf("src_process failed: %w", samplerateError(ret))
	}
	if int(d.inputFramesUsed) != frames {
		return nil, fmt.Errorf("converter consumed %d of %d input frames; output buffer too small",
			d.inputFramesUsed, frames)
	}

	gen := int(d.outputFramesGen)
	if gen == 0 {
		return nil, nil
	}
	out := NewAudioSamples(gen, r.outRate, r.channels, AudioFormatS16)
	srcFloatToShortArray(
		uintptr(unsafe.Pointer(&r.floatOut[0])),
		uintptr(unsafe.Pointer(&out.Data[0])),
		int32(gen*r.channels))
	runtime.KeepAlive(r.floatOut)
	out.PTS = r.nextPTS
	r.nextPTS += int64(gen)
	return out, nil
}

// Reset clears filter history so the converter can start a new
// stream.
func (r *Resampler) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == 0 {
		return fmt.Errorf("resampler is closed")
	}
	if ret := srcReset(r.state); ret != 0 {
		return fmt.Errorf("src_reset failed: %w", samplerateError(ret))
	}
	r.nextPTS = 0
	return nil
}

// Ratio returns outRate/inRate.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Close releases the converter. Safe to call more than once.
func (r *Resampler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != 0 {
		srcDelete(r.state)
		r.state = 0
	}
	return nil
}
