//go:build darwin || linux

package avtk

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"time"
	"unsafe"
)

// VideoPlayerConfig configures the playback window.
type VideoPlayerConfig struct {
	Title  string
	Width  int // source frame dimensions
	Height int
	FPS    float64
}

// DefaultVideoPlayerConfig returns a 640x360 window at 25fps.
func DefaultVideoPlayerConfig() VideoPlayerConfig {
	return VideoPlayerConfig{Title: "avtk", Width: 640, Height: 360, FPS: 25}
}

// VideoPlayer renders I420 frames into an SDL3 window through one
// streaming IYUV texture. A ticker goroutine pushes a frame event per
// frame interval; the main loop blocks in SDL_WaitEvent, uploads the
// next frame on each tick and letterboxes the image when the window
// is resized.
type VideoPlayer struct {
	config   VideoPlayerConfig
	window   uintptr
	renderer uintptr
	texture  uintptr

	frameEvent uint32
	stopEvent  uint32

	dst    *sdlFRect // letterboxed destination, heap so SDL can read it
	frames int
	closed bool
}

// NewVideoPlayer opens a resizable window sized to the source frames.
// The calling goroutine is locked to its OS thread; SDL window and
// event calls must all happen on that thread, so Play and Close have
// to be called from the same goroutine.
func NewVideoPlayer(config VideoPlayerConfig) (*VideoPlayer, error) {
	if err := loadSDL(); err != nil {
		return nil, err
	}
	if err := validateDimensions(config.Width, config.Height); err != nil {
		return nil, err
	}
	if config.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps %v", config.FPS)
	}
	if config.Title == "" {
		config.Title = "avtk"
	}

	runtime.LockOSThread()

	if !sdlInit(sdlInitVideo) {
		return nil, sdlError("SDL_Init")
	}

	window := new(uintptr)
	renderer := new(uintptr)
	ok := sdlCreateWindowAndRenderer(
		config.Title,
		int32(config.Width), int32(config.Height),
		sdlWindowResizable,
		uintptr(unsafe.Pointer(window)),
		uintptr(unsafe.Pointer(renderer)),
	)
	runtime.KeepAlive(window)
	runtime.KeepAlive(renderer)
	if !ok {
		sdlQuitSubSystem(sdlInitVideo)
		return nil, sdlError("SDL_CreateWindowAndRenderer")
	}

	p := &VideoPlayer{
		config:   config,
		window:   *window,
		renderer: *renderer,
		dst: &sdlFRect{
			W: float32(config.Width),
			H: float32(config.Height),
		},
	}

	p.texture = sdlCreateTexture(
		p.renderer,
		sdlPixelFormatIYUV,
		sdlTextureAccessStreaming,
		int32(config.Width), int32(config.Height),
	)
	if p.texture == 0 {
		err := sdlError("SDL_CreateTexture")
		p.Close()
		return nil, err
	}

	base := sdlRegisterEvents(2)
	if base == 0 {
		err := fmt.Errorf("SDL_RegisterEvents: no event codes left")
		p.Close()
		return nil, err
	}
	p.frameEvent = base
	p.stopEvent = base + 1
	return p, nil
}

// Play renders frames from source until it is exhausted, the window is
// closed or a key is pressed. Pacing comes from a ticker at the
// configured frame rate; tearing it down is two-phase, the ticker
// goroutine pushes the stop event as its last act so no frame event
// can arrive after it.
func (p *VideoPlayer) Play(source VideoSource) error {
	interval := time.Duration(float64(time.Second) / p.config.FPS)
	stopTicker := make(chan struct{})
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopTicker:
				p.pushUserEvent(p.stopEvent)
				return
			case <-ticker.C:
				p.pushUserEvent(p.frameEvent)
			}
		}
	}()

	var playErr error
	eof := false
	ev := new(sdlEvent)
loop:
	for {
		if !sdlWaitEvent(uintptr(unsafe.Pointer(ev))) {
			playErr = sdlError("SDL_WaitEvent")
			break
		}
		switch ev.Type {
		case sdlEventQuit, sdlEventKeyDown:
			break loop
		case sdlEventWindowResized:
			p.updateLetterbox()
		case p.stopEvent:
			break loop
		case p.frameEvent:
			if eof {
				continue
			}
			frame, err := source.NextFrame()
			if err == io.EOF {
				eof = true
				close(stopTicker)
				continue
			}
			if err != nil {
				playErr = fmt.Errorf("video source failed: %w", err)
				break loop
			}
			if err := p.render(frame); err != nil {
				playErr = err
				break loop
			}
			p.frames++
		}
	}
	runtime.KeepAlive(ev)

	if !eof {
		close(stopTicker)
	}
	<-tickerDone
	return playErr
}

// FramesRendered returns how many frames the last Play drew.
func (p *VideoPlayer) FramesRendered() int {
	return p.frames
}

func (p *VideoPlayer) render(frame *VideoFrame) error {
	if frame.Width != p.config.Width || frame.Height != p.config.Height {
		return fmt.Errorf("frame is %dx%d, window texture is %dx%d",
			frame.Width, frame.Height, p.config.Width, p.config.Height)
	}
	if frame.Format != PixelFormatI420 {
		return fmt.Errorf("unsupported pixel format %v", frame.Format)
	}

	pixels := frame.Packed()
	ok := sdlUpdateTexture(p.texture, 0,
		uintptr(unsafe.Pointer(&pixels[0])), int32(p.config.Width))
	runtime.KeepAlive(pixels)
	if !ok {
		return sdlError("SDL_UpdateTexture")
	}

	sdlRenderClear(p.renderer)
	ok = sdlRenderTexture(p.renderer, p.texture, 0, uintptr(unsafe.Pointer(p.dst)))
	runtime.KeepAlive(p.dst)
	if !ok {
		return sdlError("SDL_RenderTexture")
	}
	sdlRenderPresent(p.renderer)
	return nil
}

func (p *VideoPlayer) updateLetterbox() {
	winW := new(int32)
	winH := new(int32)
	ok := sdlGetWindowSize(p.window,
		uintptr(unsafe.Pointer(winW)), uintptr(unsafe.Pointer(winH)))
	runtime.KeepAlive(winW)
	runtime.KeepAlive(winH)
	if !ok || *winW <= 0 || *winH <= 0 {
		return
	}

	scale := math.Min(
		float64(*winW)/float64(p.config.Width),
		float64(*winH)/float64(p.config.Height),
	)
	w := float32(float64(p.config.Width) * scale)
	h := float32(float64(p.config.Height) * scale)
	p.dst.X = (float32(*winW) - w) / 2
	p.dst.Y = (float32(*winH) - h) / 2
	p.dst.W = w
	p.dst.H = h
}

func (p *VideoPlayer) pushUserEvent(eventType uint32) {
	ev := new(sdlEvent)
	ev.Type = eventType
	sdlPushEvent(uintptr(unsafe.Pointer(ev)))
	runtime.KeepAlive(ev)
}

// Close destroys the texture, renderer and window in reverse order of
// creation.
func (p *VideoPlayer) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if p.texture != 0 {
		sdlDestroyTexture(p.texture)
		p.texture = 0
	}
	if p.renderer != 0 {
		sdlDestroyRenderer(p.renderer)
		p.renderer = 0
	}
	if p.window != 0 {
		sdlDestroyWindow(p.window)
		p.window = 0
	}
	sdlQuitSubSystem(sdlInitVideo)
	return nil
}
