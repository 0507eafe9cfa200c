//go:build darwin || linux

// Raw SDL3 bindings for the playback helpers, loaded with purego.
// VideoPlayer and AudioPlayer build on these.

package avtk

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

var (
	sdlOnce    sync.Once
	sdlHandle  uintptr
	sdlInitErr error
	sdlLoaded  bool
)

// SDL3 function pointers
var (
	sdlInit                    func(flags uint32) bool
	sdlQuitSubSystem           func(flags uint32)
	sdlQuit                    func()
	sdlGetError                func() uintptr
	sdlCreateWindowAndRenderer func(title string, w, h int32, flags uint64, window, renderer uintptr) bool
	sdlCreateTexture           func(renderer uintptr, format uint32, access, w, h int32) uintptr
	sdlUpdateTexture           func(texture, rect, pixels uintptr, pitch int32) bool
	sdlRenderClear             func(renderer uintptr) bool
	sdlRenderTexture           func(renderer, texture, srcRect, dstRect uintptr) bool
	sdlRenderPresent           func(renderer uintptr) bool
	sdlGetWindowSize           func(window, w, h uintptr) bool
	sdlWaitEvent               func(event uintptr) bool
	sdlPushEvent               func(event uintptr) bool
	sdlRegisterEvents          func(numEvents int32) uint32
	sdlDelay                   func(ms uint32)
	sdlDestroyTexture          func(texture uintptr)
	sdlDestroyRenderer         func(renderer uintptr)
	sdlDestroyWindow           func(window uintptr)

	sdlOpenAudioDeviceStream   func(devid uint32, spec, callback, userdata uintptr) uintptr
	sdlPutAudioStreamData      func(stream, buf uintptr, length int32) bool
	sdlResumeAudioStreamDevice func(stream uintptr) bool
	sdlDestroyAudioStream      func(stream uintptr)
	sdlMixAudio                func(dst, src uintptr, format uint32, length uint32, volume float32) bool
)

// Constants from SDL3 headers.
const (
	sdlInitAudio uint32 = 0x00000010
	sdlInitVideo uint32 = 0x00000020

	sdlWindowResizable uint64 = 0x0000000000000020

	// 'IYUV' fourcc, planar Y U V, matches PixelFormatI420.
	sdlPixelFormatIYUV uint32 = 0x56555949

	sdlTextureAccessStreaming int32 = 1

	sdlAudioS16LE uint32 = 0x8010
	sdlAudioF32LE uint32 = 0x8120

	sdlAudioDeviceDefaultPlayback uint32 = 0xFFFFFFFF

	sdlEventQuit          uint32 = 0x100
	sdlEventWindowResized uint32 = 0x206
	sdlEventKeyDown       uint32 = 0x300
	sdlEventUser          uint32 = 0x8000
)

// sdlEvent mirrors the SDL_Event union. Only the type field is
// decoded; the rest pads the union to its full 128 bytes.
type sdlEvent struct {
	Type uint32
	_    [124]byte
}

// sdlAudioSpec mirrors SDL_AudioSpec.
type sdlAudioSpec struct {
	format   uint32
	channels int32
	freq     int32
}

// sdlFRect mirrors SDL_FRect.
type sdlFRect struct {
	X, Y, W, H float32
}

func loadSDL() error {
	sdlOnce.Do(func() {
		sdlInitErr = loadSDLLib()
		if sdlInitErr == nil {
			sdlLoaded = true
		}
	})
	return sdlInitErr
}

func loadSDLLib() error {
	handle, err := openLibrary("SDL3_LIB_PATH", sdlLibNames()...)
	if err != nil {
		return fmt.Errorf("failed to load SDL3: %w", err)
	}
	sdlHandle = handle

	purego.RegisterLibFunc(&sdlInit, handle, "SDL_Init")
	purego.RegisterLibFunc(&sdlQuitSubSystem, handle, "SDL_QuitSubSystem")
	purego.RegisterLibFunc(&sdlQuit, handle, "SDL_Quit")
	purego.RegisterLibFunc(&sdlGetError, handle, "SDL_GetError")
	purego.RegisterLibFunc(&sdlCreateWindowAndRenderer, handle, "SDL_CreateWindowAndRenderer")
	purego.RegisterLibFunc(&sdlCreateTexture, handle, "SDL_CreateTexture")
	purego.RegisterLibFunc(&sdlUpdateTexture, handle, "SDL_UpdateTexture")
	purego.RegisterLibFunc(&sdlRenderClear, handle, "SDL_RenderClear")
	purego.RegisterLibFunc(&sdlRenderTexture, handle, "SDL_RenderTexture")
	purego.RegisterLibFunc(&sdlRenderPresent, handle, "SDL_RenderPresent")
	purego.RegisterLibFunc(&sdlGetWindowSize, handle, "SDL_GetWindowSize")
	purego.RegisterLibFunc(&sdlWaitEvent, handle, "SDL_WaitEvent")
	purego.RegisterLibFunc(&sdlPushEvent, handle, "SDL_PushEvent")
	purego.RegisterLibFunc(&sdlRegisterEvents, handle, "SDL_RegisterEvents")
	purego.RegisterLibFunc(&sdlDelay, handle, "SDL_Delay")
	purego.RegisterLibFunc(&sdlDestroyTexture, handle, "SDL_DestroyTexture")
	purego.RegisterLibFunc(&sdlDestroyRenderer, handle, "SDL_DestroyRenderer")
	purego.RegisterLibFunc(&sdlDestroyWindow, handle, "SDL_DestroyWindow")

	purego.RegisterLibFunc(&sdlOpenAudioDeviceStream, handle, "SDL_OpenAudioDeviceStream")
	purego.RegisterLibFunc(&sdlPutAudioStreamData, handle, "SDL_PutAudioStreamData")
	purego.RegisterLibFunc(&sdlResumeAudioStreamDevice, handle, "SDL_ResumeAudioStreamDevice")
	purego.RegisterLibFunc(&sdlDestroyAudioStream, handle, "SDL_DestroyAudioStream")
	purego.RegisterLibFunc(&sdlMixAudio, handle, "SDL_MixAudio")
	return nil
}

func sdlLibNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libSDL3.dylib", "libSDL3.0.dylib"}
	}
	return []string{"libSDL3.so.0", "libSDL3.so"}
}

// IsSDLAvailable reports whether SDL3 could be loaded.
func IsSDLAvailable() bool {
	loadSDL()
	return sdlLoaded
}

func sdlError(op string) error {
	msg := goStringFromPtr(sdlGetError())
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("%s: %s", op, msg)
}
