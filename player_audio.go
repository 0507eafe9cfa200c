//go:build darwin || linux

package avtk

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// AudioPlayerConfig configures PCM playback through SDL3.
type AudioPlayerConfig struct {
	SampleRate int
	Channels   int
	Format     AudioFormat
	Volume     float32 // mixing gain, 0 to 1
	SlotSize   int     // bytes per double-buffer slot, 0 for the default
}

// DefaultAudioPlayerConfig returns 48kHz stereo s16 at full volume.
func DefaultAudioPlayerConfig() AudioPlayerConfig {
	return AudioPlayerConfig{
		SampleRate: 48000,
		Channels:   2,
		Format:     AudioFormatS16,
		Volume:     1.0,
	}
}

// Global callback state for purego. SDL3 invokes one shared native
// callback; the userdata value routes it to the right player.
var (
	audioPlayersMu      sync.RWMutex
	audioPlayers        = make(map[uintptr]*AudioPlayer)
	audioPlayerCounter  uintptr
	audioStreamCallback uintptr
	audioCallbackOnce   sync.Once
)

func initAudioStreamCallback() {
	audioCallbackOnce.Do(func() {
		audioStreamCallback = purego.NewCallback(audioStreamHandler)
	})
}

// audioStreamHandler runs on SDL's audio thread. It must never block,
// so it only moves bytes that the double buffer already holds.
func audioStreamHandler(userdata, stream uintptr, additionalAmount, totalAmount int32) {
	audioPlayersMu.RLock()
	p, ok := audioPlayers[userdata]
	audioPlayersMu.RUnlock()

	if !ok || p == nil {
		return
	}
	p.feed(stream, int(additionalAmount))
}

// AudioPlayer plays interleaved PCM through the default SDL3 output
// device. A producer goroutine fills a DoubleBuffer via Play; the SDL
// audio callback drains it, mixing at the configured volume and
// leaving silence when no data is ready.
type AudioPlayer struct {
	mu     sync.Mutex
	config AudioPlayerConfig
	format uint32 // SDL audio format
	buf    *DoubleBuffer
	stream uintptr
	id     uintptr
	closed bool

	// scratch buffers, touched only by the audio callback
	raw []byte
	mix []byte
}

// NewAudioPlayer opens the default playback device. The device starts
// pulling immediately; until Play provides data the callback emits
// silence.
func NewAudioPlayer(config AudioPlayerConfig) (*AudioPlayer, error) {
	if err := loadSDL(); err != nil {
		return nil, err
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", config.SampleRate)
	}
	if config.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", config.Channels)
	}
	if config.Volume < 0 || config.Volume > 1 {
		return nil, fmt.Errorf("volume %v outside [0, 1]", config.Volume)
	}
	var format uint32
	switch config.Format {
	case AudioFormatS16:
		format = sdlAudioS16LE
	case AudioFormatF32:
		format = sdlAudioF32LE
	default:
		return nil, fmt.Errorf("unsupported audio format %v", config.Format)
	}

	if !sdlInit(sdlInitAudio) {
		return nil, sdlError("SDL_Init")
	}

	p := &AudioPlayer{
		config: config,
		format: format,
		buf:    NewDoubleBuffer(config.SlotSize),
	}

	initAudioStreamCallback()
	audioPlayersMu.Lock()
	audioPlayerCounter++
	p.id = audioPlayerCounter
	audioPlayers[p.id] = p
	audioPlayersMu.Unlock()

	spec := &sdlAudioSpec{
		format:   format,
		channels: int32(config.Channels),
		freq:     int32(config.SampleRate),
	}
	stream := sdlOpenAudioDeviceStream(
		sdlAudioDeviceDefaultPlayback,
		uintptr(unsafe.Pointer(spec)),
		audioStreamCallback,
		p.id,
	)
	runtime.KeepAlive(spec)
	if stream == 0 {
		p.unregister()
		sdlQuitSubSystem(sdlInitAudio)
		return nil, sdlError("SDL_OpenAudioDeviceStream")
	}
	p.stream = stream

	// Streams open paused.
	if !sdlResumeAudioStreamDevice(stream) {
		err := sdlError("SDL_ResumeAudioStreamDevice")
		p.Close()
		return nil, err
	}
	return p, nil
}

// Play reads PCM from r and feeds it to the device, blocking when both
// double-buffer slots are full. It returns once r is exhausted and the
// buffered audio has been handed to SDL.
func (p *AudioPlayer) Play(r io.Reader) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return io.ErrClosedPipe
	}
	buf := p.buf
	p.mu.Unlock()

	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if _, perr := buf.Produce(chunk[:n]); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read pcm: %w", err)
		}
	}
	buf.Close()
	<-buf.Done()

	// The double buffer is drained but SDL still holds what the last
	// callback queued; give the device a moment to play it out.
	sdlDelay(200)
	return nil
}

// feed services one callback request for want bytes.
func (p *AudioPlayer) feed(stream uintptr, want int) {
	if want <= 0 {
		return
	}
	if cap(p.raw) < want {
		p.raw = make([]byte, want)
		p.mix = make([]byte, want)
	}
	raw := p.raw[:want]
	n := p.buf.Consume(raw)
	if n == 0 {
		return
	}

	mix := p.mix[:n]
	clear(mix)
	if !sdlMixAudio(
		uintptr(unsafe.Pointer(&mix[0])),
		uintptr(unsafe.Pointer(&raw[0])),
		p.format,
		uint32(n),
		p.config.Volume,
	) {
		return
	}
	sdlPutAudioStreamData(stream, uintptr(unsafe.Pointer(&mix[0])), int32(n))
}

// Buffered returns the bytes waiting in the double buffer.
func (p *AudioPlayer) Buffered() int {
	return p.buf.Buffered()
}

func (p *AudioPlayer) unregister() {
	audioPlayersMu.Lock()
	delete(audioPlayers, p.id)
	audioPlayersMu.Unlock()
}

// Close stops playback and releases the device.
func (p *AudioPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	p.buf.Close()
	if p.stream != 0 {
		sdlDestroyAudioStream(p.stream)
		p.stream = 0
	}
	p.unregister()
	sdlQuitSubSystem(sdlInitAudio)
	return nil
}
