package avtk

import (
	"io"
	"math"
)

// PatternType selects the synthetic video pattern.
type PatternType int

const (
	PatternScroll    PatternType = iota // diagonal gradient that scrolls each frame
	PatternColorBars                    // SMPTE color bars
	PatternMovingBox                    // white box orbiting a black field
)

func (p PatternType) String() string {
	switch p {
	case PatternScroll:
		return "Scroll"
	case PatternColorBars:
		return "ColorBars"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// PatternVideoConfig configures a synthetic video source.
type PatternVideoConfig struct {
	Width   int
	Height  int
	FPS     int
	Pattern PatternType

	// FrameCount bounds the stream; 0 means unbounded.
	FrameCount int64
}

// DefaultPatternVideoConfig returns a 640x360 at 25fps scroll pattern.
func DefaultPatternVideoConfig() PatternVideoConfig {
	return PatternVideoConfig{
		Width:   640,
		Height:  360,
		FPS:     25,
		Pattern: PatternScroll,
	}
}

// PatternVideoSource generates synthetic I420 frames.
type PatternVideoSource struct {
	config PatternVideoConfig
	index  int64
}

// NewPatternVideoSource creates a synthetic video source.
func NewPatternVideoSource(config PatternVideoConfig) *PatternVideoSource {
	if config.Width <= 0 {
		config.Width = 640
	}
	if config.Height <= 0 {
		config.Height = 360
	}
	if config.FPS <= 0 {
		config.FPS = 25
	}
	return &PatternVideoSource{config: config}
}

func (s *PatternVideoSource) Config() PatternVideoConfig { return s.config }

func (s *PatternVideoSource) NextFrame() (*VideoFrame, error) {
	if s.config.FrameCount > 0 && s.index >= s.config.FrameCount {
		return nil, io.EOF
	}
	frame := NewVideoFrame(s.config.Width, s.config.Height, PixelFormatI420)
	switch s.config.Pattern {
	case PatternColorBars:
		s.generateColorBars(frame)
	case PatternMovingBox:
		s.generateMovingBox(frame, s.index)
	default:
		s.generateScroll(frame, s.index)
	}
	frame.PTS = s.index
	s.index++
	return frame, nil
}

func (s *PatternVideoSource) Close() error { return nil }

// generateScroll writes a gradient that drifts a few pixels per frame
// in every plane, so each frame differs from the last.
func (s *PatternVideoSource) generateScroll(frame *VideoFrame, frameNum int64) {
	w, h := frame.Width, frame.Height
	i := int(frameNum)

	yPlane := frame.Data[0]
	for y := 0; y < h; y++ {
		row := yPlane[y*frame.Stride[0]:]
		for x := 0; x < w; x++ {
			row[x] = byte(x + y + i*3)
		}
	}

	cw, ch := (w+1)/2, (h+1)/2
	uPlane, vPlane := frame.Data[1], frame.Data[2]
	for y := 0; y < ch; y++ {
		uRow := uPlane[y*frame.Stride[1]:]
		vRow := vPlane[y*frame.Stride[2]:]
		for x := 0; x < cw; x++ {
			uRow[x] = byte(128 + y + i*2)
			vRow[x] = byte(64 + x + i*5)
		}
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (s *PatternVideoSource) generateColorBars(frame *VideoFrame) {
	w, h := frame.Width, frame.Height
	barWidth := w / 8
	if barWidth == 0 {
		barWidth = 1
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			barIdx := x / barWidth
			if barIdx >= 8 {
				barIdx = 7
			}

			rgb := colorBarsRGB[barIdx]
			yVal, u, v := rgbToYUV(rgb[0], rgb[1], rgb[2])

			frame.Data[0][y*frame.Stride[0]+x] = yVal

			if x%2 == 0 && y%2 == 0 {
				frame.Data[1][(y/2)*frame.Stride[1]+x/2] = u
				frame.Data[2][(y/2)*frame.Stride[2]+x/2] = v
			}
		}
	}
}

func (s *PatternVideoSource) generateMovingBox(frame *VideoFrame, frameNum int64) {
	w, h := frame.Width, frame.Height

	for i := range frame.Data[0] {
		frame.Data[0][i] = 16
	}
	for i := range frame.Data[1] {
		frame.Data[1][i] = 128
		frame.Data[2][i] = 128
	}

	boxSize := min(w, h) / 4
	centerX := w / 2
	centerY := h / 2
	radius := float64(min(w, h)) / 4

	angle := float64(frameNum) * 0.05
	boxX := centerX + int(radius*math.Cos(angle)) - boxSize/2
	boxY := centerY + int(radius*math.Sin(angle)) - boxSize/2

	for y := boxY; y < boxY+boxSize && y < h; y++ {
		if y < 0 {
			continue
		}
		for x := boxX; x < boxX+boxSize && x < w; x++ {
			if x < 0 {
				continue
			}
			frame.Data[0][y*frame.Stride[0]+x] = 235
		}
	}
}

func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	// BT.601 conversion
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0

	y = uint8(clampF(yf, 16, 235))
	u = uint8(clampF(uf, 16, 240))
	v = uint8(clampF(vf, 16, 240))
	return
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SineAudioConfig configures a synthetic audio source.
type SineAudioConfig struct {
	SampleRate int
	Channels   int
	Format     AudioFormat

	// FreqHz is the sweep's starting frequency.
	FreqHz float64

	// TotalSamples bounds the stream; 0 means unbounded.
	TotalSamples int64
}

// DefaultSineAudioConfig returns a 48kHz stereo S16 sweep at 110Hz.
func DefaultSineAudioConfig() SineAudioConfig {
	return SineAudioConfig{
		SampleRate: 48000,
		Channels:   2,
		Format:     AudioFormatS16,
		FreqHz:     110,
	}
}

// SineAudioSource generates a rising sine sweep.
type SineAudioSource struct {
	config SineAudioConfig
	sweep  *SineSweep
	pos    int64
}

// NewSineAudioSource creates a synthetic audio source.
func NewSineAudioSource(config SineAudioConfig) *SineAudioSource {
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FreqHz <= 0 {
		config.FreqHz = 110
	}
	return &SineAudioSource{
		config: config,
		sweep:  NewSineSweep(config.FreqHz, config.SampleRate),
	}
}

func (s *SineAudioSource) Config() SineAudioConfig { return s.config }

func (s *SineAudioSource) NextBlock(sampleCount int) (*AudioSamples, error) {
	if s.config.TotalSamples > 0 && s.pos >= s.config.TotalSamples {
		return nil, io.EOF
	}
	gen := sampleCount
	if s.config.TotalSamples > 0 {
		if remaining := s.config.TotalSamples - s.pos; remaining < int64(gen) {
			gen = int(remaining)
		}
	}

	block := NewAudioSamples(sampleCount, s.config.SampleRate, s.config.Channels, s.config.Format)
	switch s.config.Format {
	case AudioFormatF32:
		s.sweep.FillF32(block.Data, gen, s.config.Channels)
	default:
		s.sweep.FillS16(block.Data, gen, s.config.Channels)
	}
	block.PTS = s.pos
	s.pos += int64(sampleCount)
	return block, nil
}

func (s *SineAudioSource) Close() error { return nil }
