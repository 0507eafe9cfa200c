package avtk

import "fmt"

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420 PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                    // YUV 4:2:0 semi-planar (Y + interleaved UV)
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	default:
		return 0
	}
}

// AudioFormat represents raw audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Interleaved signed 16-bit little-endian PCM
	AudioFormatF32                    // Interleaved 32-bit little-endian float PCM
)

func (f AudioFormat) String() string {
	switch f {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the size of one sample of one channel.
func (f AudioFormat) BytesPerSample() int {
	switch f {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// FrameType classifies encoded video frames.
type FrameType int

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeKey                // Keyframe (IDR), decodable without reference frames
	FrameTypeDelta              // Predicted frame, requires previous frames
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeKey:
		return "key"
	case FrameTypeDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// VideoFrame is a raw video frame. Data holds one slice per plane and
// Stride the corresponding bytes per row. PTS counts ticks of the time
// base of the pipeline the frame travels through.
type VideoFrame struct {
	Data   [][]byte
	Stride []int
	Width  int
	Height int
	Format PixelFormat
	PTS    int64
}

// NewVideoFrame allocates a zeroed frame with tightly packed planes.
func NewVideoFrame(width, height int, format PixelFormat) *VideoFrame {
	return NewVideoFrameAligned(width, height, format, 1)
}

// NewVideoFrameAligned allocates a frame whose strides are rounded up
// to a multiple of align. Codecs that read whole rows at a time may
// require aligned strides.
func NewVideoFrameAligned(width, height int, format PixelFormat, align int) *VideoFrame {
	if align < 1 {
		align = 1
	}
	alignUp := func(v int) int {
		return (v + align - 1) / align * align
	}
	f := &VideoFrame{
		Width:  width,
		Height: height,
		Format: format,
	}
	chromaH := (height + 1) / 2
	switch format {
	case PixelFormatI420:
		ys := alignUp(width)
		cs := alignUp((width + 1) / 2)
		f.Stride = []int{ys, cs, cs}
		f.Data = [][]byte{
			make([]byte, ys*height),
			make([]byte, cs*chromaH),
			make([]byte, cs*chromaH),
		}
	case PixelFormatNV12:
		ys := alignUp(width)
		f.Stride = []int{ys, ys}
		f.Data = [][]byte{
			make([]byte, ys*height),
			make([]byte, ys*chromaH),
		}
	}
	return f
}

// Clone returns a deep copy of the frame.
func (f *VideoFrame) Clone() *VideoFrame {
	c := &VideoFrame{
		Data:   make([][]byte, len(f.Data)),
		Stride: make([]int, len(f.Stride)),
		Width:  f.Width,
		Height: f.Height,
		Format: f.Format,
		PTS:    f.PTS,
	}
	copy(c.Stride, f.Stride)
	for i, p := range f.Data {
		c.Data[i] = make([]byte, len(p))
		copy(c.Data[i], p)
	}
	return c
}

// Packed flattens the frame into one contiguous buffer with the planes
// back to back and no stride padding, the layout raw .yuv files use.
func (f *VideoFrame) Packed() []byte {
	out := make([]byte, 0, I420Size(f.Width, f.Height))
	for i, p := range f.Data {
		w, h := f.planeDims(i)
		stride := f.Stride[i]
		for y := 0; y < h; y++ {
			out = append(out, p[y*stride:y*stride+w]...)
		}
	}
	return out
}

func (f *VideoFrame) planeDims(plane int) (w, h int) {
	w, h = f.Width, f.Height
	if plane == 0 {
		return w, h
	}
	h = (f.Height + 1) / 2
	if f.Format == PixelFormatI420 {
		w = (f.Width + 1) / 2
	}
	return w, h
}

// I420Size returns the byte size of one tightly packed I420 frame.
func I420Size(width, height int) int {
	return width*height + 2*((width+1)/2)*((height+1)/2)
}

func validateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("dimensions %dx%d must be even for 4:2:0 video", width, height)
	}
	return nil
}

// AudioSamples is a block of raw interleaved PCM. SampleCount counts
// sample frames, one sample per channel each. PTS counts ticks of the
// owning pipeline's time base.
type AudioSamples struct {
	Data        []byte
	SampleRate  int
	Channels    int
	SampleCount int
	Format      AudioFormat
	PTS         int64
}

// NewAudioSamples allocates a zeroed block of n sample frames.
func NewAudioSamples(n, sampleRate, channels int, format AudioFormat) *AudioSamples {
	return &AudioSamples{
		Data:        make([]byte, n*channels*format.BytesPerSample()),
		SampleRate:  sampleRate,
		Channels:    channels,
		SampleCount: n,
		Format:      format,
	}
}

// Clone returns a deep copy of the samples.
func (s *AudioSamples) Clone() *AudioSamples {
	c := *s
	c.Data = make([]byte, len(s.Data))
	copy(c.Data, s.Data)
	return &c
}
