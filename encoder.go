package avtk

import (
	"errors"
	"fmt"
	"sync"
)

// Common errors
var (
	ErrCodecNotSupported = errors.New("codec not supported")
	ErrEncoderClosed     = errors.New("encoder is closed")
	ErrDecoderClosed     = errors.New("decoder is closed")

	// ErrAgain reports that a codec needs more input before it can
	// produce output. Callers feed the next unit and retry.
	ErrAgain = errors.New("temporarily unavailable, feed more input")
)

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	Codec VideoCodec

	Width      int // Frame width
	Height     int // Frame height
	FPS        int // Target framerate
	BitrateBps int // Target bitrate in bits per second

	// GOPSize is the keyframe interval in frames. 0 picks one
	// keyframe per second at the configured FPS.
	GOPSize int
}

// DefaultVideoEncoderConfig returns a config with sensible defaults.
func DefaultVideoEncoderConfig(codec VideoCodec, width, height, fps int) VideoEncoderConfig {
	return VideoEncoderConfig{
		Codec:      codec,
		Width:      width,
		Height:     height,
		FPS:        fps,
		BitrateBps: 1_000_000,
		GOPSize:    fps,
	}
}

// TimeBase returns the encoder's native time base, one tick per frame.
func (c VideoEncoderConfig) TimeBase() Rational {
	return R(1, c.FPS)
}

func (c VideoEncoderConfig) validate() error {
	if err := validateDimensions(c.Width, c.Height); err != nil {
		return err
	}
	if c.FPS <= 0 {
		return fmt.Errorf("invalid fps %d", c.FPS)
	}
	if c.BitrateBps <= 0 {
		return fmt.Errorf("invalid bitrate %d", c.BitrateBps)
	}
	return nil
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	Codec AudioCodec

	SampleRate int // Samples per second per channel
	Channels   int // 1 = mono, 2 = stereo
	BitrateBps int // Target bitrate in bits per second
}

// DefaultAudioEncoderConfig returns a config with sensible defaults.
func DefaultAudioEncoderConfig(codec AudioCodec) AudioEncoderConfig {
	return AudioEncoderConfig{
		Codec:      codec,
		SampleRate: 48000,
		Channels:   2,
		BitrateBps: 128_000,
	}
}

// TimeBase returns the encoder's native time base, one tick per sample.
func (c AudioEncoderConfig) TimeBase() Rational {
	return R(1, c.SampleRate)
}

func (c AudioEncoderConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	if c.BitrateBps <= 0 {
		return fmt.Errorf("invalid bitrate %d", c.BitrateBps)
	}
	return nil
}

// EncoderStats tracks encoder activity.
type EncoderStats struct {
	FramesIn     uint64 // Frames or sample blocks fed in
	PacketsOut   uint64 // Packets produced
	KeyframesOut uint64 // Keyframes among PacketsOut (video only)
	BytesOut     uint64 // Total encoded bytes
}

// DecoderStats tracks decoder activity.
type DecoderStats struct {
	PacketsIn uint64 // Access units or codec frames fed in
	FramesOut uint64 // Frames or sample blocks produced
	BytesIn   uint64 // Total compressed bytes
	Corrupted uint64 // Units the codec rejected
}

// Codec factories register themselves in init so that callers can
// construct codecs without referencing a concrete implementation.
// Availability is probed lazily on first use, not at registration.
var (
	codecRegistryMu   sync.RWMutex
	videoEncFactories = map[VideoCodec]func(VideoEncoderConfig) (VideoEncoder, error){}
	videoDecFactories = map[VideoCodec]func() (VideoDecoder, error){}
	audioEncFactories = map[AudioCodec]func(AudioEncoderConfig) (AudioEncoder, error){}
	audioDecFactories = map[AudioCodec]func() (AudioDecoder, error){}
)

func registerVideoEncoder(codec VideoCodec, factory func(VideoEncoderConfig) (VideoEncoder, error)) {
	codecRegistryMu.Lock()
	defer codecRegistryMu.Unlock()
	videoEncFactories[codec] = factory
}

func registerVideoDecoder(codec VideoCodec, factory func() (VideoDecoder, error)) {
	codecRegistryMu.Lock()
	defer codecRegistryMu.Unlock()
	videoDecFactories[codec] = factory
}

func registerAudioEncoder(codec AudioCodec, factory func(AudioEncoderConfig) (AudioEncoder, error)) {
	codecRegistryMu.Lock()
	defer codecRegistryMu.Unlock()
	audioEncFactories[codec] = factory
}

func registerAudioDecoder(codec AudioCodec, factory func() (AudioDecoder, error)) {
	codecRegistryMu.Lock()
	defer codecRegistryMu.Unlock()
	audioDecFactories[codec] = factory
}

// NewVideoEncoder creates an encoder for config.Codec.
func NewVideoEncoder(config VideoEncoderConfig) (VideoEncoder, error) {
	codecRegistryMu.RLock()
	factory, ok := videoEncFactories[config.Codec]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("video encoder %s: %w", config.Codec, ErrCodecNotSupported)
	}
	return factory(config)
}

// NewVideoDecoder creates a decoder for the given codec.
func NewVideoDecoder(codec VideoCodec) (VideoDecoder, error) {
	codecRegistryMu.RLock()
	factory, ok := videoDecFactories[codec]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("video decoder %s: %w", codec, ErrCodecNotSupported)
	}
	return factory()
}

// NewAudioEncoder creates an encoder for config.Codec.
func NewAudioEncoder(config AudioEncoderConfig) (AudioEncoder, error) {
	codecRegistryMu.RLock()
	factory, ok := audioEncFactories[config.Codec]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("audio encoder %s: %w", config.Codec, ErrCodecNotSupported)
	}
	return factory(config)
}

// NewAudioDecoder creates a decoder for the given codec.
func NewAudioDecoder(codec AudioCodec) (AudioDecoder, error) {
	codecRegistryMu.RLock()
	factory, ok := audioDecFactories[codec]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("audio decoder %s: %w", codec, ErrCodecNotSupported)
	}
	return factory()
}
