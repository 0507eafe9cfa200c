//go:build darwin || linux

// H.264 encode and decode via OpenH264 (libopenh264) using purego.
//
// OpenH264 exposes a C++-style API: creation functions return an
// object whose first word points at a vtable of function pointers.
// The flat creation functions are bound with RegisterLibFunc and the
// vtable entries with RegisterFunc once the first instance exists.

package avtk

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	openh264Once    sync.Once
	openh264Handle  uintptr
	openh264InitErr error
	openh264Loaded  bool
)

// libopenh264 entry points
var (
	welsCreateSVCEncoder  func(ppEncoder uintptr) int32
	welsDestroySVCEncoder func(pEncoder uintptr)
	welsCreateDecoder     func(ppDecoder uintptr) int64
	welsDestroyDecoder    func(pDecoder uintptr)
)

// ISVCEncoder vtable slots, in declaration order (codec_api.h).
const (
	encSlotInitialize = iota
	encSlotInitializeExt
	encSlotGetDefaultParams
	encSlotUninitialize
	encSlotEncodeFrame
	encSlotEncodeParameterSets
	encSlotForceIntraFrame
	encSlotSetOption
	encSlotGetOption
)

// ISVCDecoder vtable slots.
const (
	decSlotInitialize = iota
	decSlotUninitialize
	decSlotDecodeFrame
	decSlotDecodeFrameNoDelay
	decSlotDecodeFrame2
	decSlotFlushFrame
	decSlotDecodeParser
	decSlotDecodeFrameEx
	decSlotSetOption
	decSlotGetOption
)

// Constants from codec_app_def.h / codec_def.h.
const (
	welsUsageCameraRealTime = 0

	welsRCBitrateMode = 1

	welsOptionDataFormat  = 0
	welsOptionIDRInterval = 1
	welsOptionRCFrameSkip = 9

	welsDecOptionEndOfStream = 1

	welsErrorConSliceCopy = 2

	welsVideoFormatI420 = 23

	welsFrameTypeInvalid = 0
	welsFrameTypeIDR     = 1
	welsFrameTypeI       = 2
	welsFrameTypeP       = 3
	welsFrameTypeSkip    = 4

	welsMaxLayerNum = 128
)

// C struct mirrors. Offsets follow the LP64 layout of codec_api.h;
// explicit padding keeps Go's field placement identical to the C
// compiler's.

type sEncParamBase struct {
	usageType     int32
	picWidth      int32
	picHeight     int32
	targetBitrate int32
	rcMode        int32
	maxFrameRate  float32
}

type sSourcePicture struct {
	colorFormat int32
	stride      [4]int32
	_           [4]byte
	data        [4]uintptr
	picWidth    int32
	picHeight   int32
	timestamp   int64
}

type sLayerBSInfo struct {
	temporalID byte
	spatialID  byte
	qualityID  byte
	_          byte
	frameType  int32
	layerType  byte
	_          [3]byte
	subSeqID   int32
	nalCount   int32
	_          [4]byte
	nalLengths uintptr // *int32, one length per NAL
	bsBuf      uintptr
}

type sFrameBSInfo struct {
	layerNum  int32
	_         [4]byte
	layerInfo [welsMaxLayerNum]sLayerBSInfo
	frameType int32
	frameSize int32
	timestamp int64
}

type sDecodingParam struct {
	fileNameRestructed uintptr
	cpuLoad            uint32
	targetDqLayer      byte
	_                  [3]byte
	ecActiveIdc        int32
	parseOnly          byte
	_                  [3]byte
	videoPropertySize  uint32
	videoBsType        int32
}

type sBufferInfo struct {
	bufferStatus    int32
	_               [4]byte
	inBsTimestamp   uint64
	outYuvTimestamp uint64
	width           int32
	height          int32
	format          int32
	stride          [2]int32
	_               [4]byte
	dst             [3]uintptr
}

// Vtable call wrappers, registered from the first created instance.
// The vtable is static per class, so one registration serves every
// instance.
var (
	encVtblOnce sync.Once
	encVtbl     struct {
		initialize          func(enc uintptr, param uintptr) int32
		uninitialize        func(enc uintptr) int32
		encodeFrame         func(enc uintptr, pic uintptr, info uintptr) int32
		encodeParameterSets func(enc uintptr, info uintptr) int32
		forceIntraFrame     func(enc uintptr, idr bool) int32
		setOption           func(enc uintptr, option int32, value uintptr) int32
	}

	decVtblOnce sync.Once
	decVtbl     struct {
		initialize         func(dec uintptr, param uintptr) int64
		uninitialize       func(dec uintptr) int64
		decodeFrameNoDelay func(dec uintptr, src uintptr, srcLen int32, ppDst uintptr, info uintptr) int32
		flushFrame         func(dec uintptr, ppDst uintptr, info uintptr) int32
		setOption          func(dec uintptr, option int32, value uintptr) int64
	}
)

func vtableEntry(obj uintptr, slot int) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtbl + uintptr(slot)*unsafe.Sizeof(uintptr(0))))
}

func registerEncoderVtbl(enc uintptr) {
	encVtblOnce.Do(func() {
		purego.RegisterFunc(&encVtbl.initialize, vtableEntry(enc, encSlotInitialize))
		purego.RegisterFunc(&encVtbl.uninitialize, vtableEntry(enc, encSlotUninitialize))
		purego.RegisterFunc(&encVtbl.encodeFrame, vtableEntry(enc, encSlotEncodeFrame))
		purego.RegisterFunc(&encVtbl.encodeParameterSets, vtableEntry(enc, encSlotEncodeParameterSets))
		purego.RegisterFunc(&encVtbl.forceIntraFrame, vtableEntry(enc, encSlotForceIntraFrame))
		purego.RegisterFunc(&encVtbl.setOption, vtableEntry(enc, encSlotSetOption))
	})
}

func registerDecoderVtbl(dec uintptr) {
	decVtblOnce.Do(func() {
		purego.RegisterFunc(&decVtbl.initialize, vtableEntry(dec, decSlotInitialize))
		purego.RegisterFunc(&decVtbl.uninitialize, vtableEntry(dec, decSlotUninitialize))
		purego.RegisterFunc(&decVtbl.decodeFrameNoDelay, vtableEntry(dec, decSlotDecodeFrameNoDelay))
		purego.RegisterFunc(&decVtbl.flushFrame, vtableEntry(dec, decSlotFlushFrame))
		purego.RegisterFunc(&decVtbl.setOption, vtableEntry(dec, decSlotSetOption))
	})
}

func loadOpenH264() error {
	openh264Once.Do(func() {
		openh264InitErr = loadOpenH264Lib()
		if openh264InitErr == nil {
			openh264Loaded = true
		}
	})
	return openh264InitErr
}

func loadOpenH264Lib() error {
	handle, err := openLibrary("OPENH264_LIB_PATH", openh264LibNames()...)
	if err != nil {
		return fmt.Errorf("failed to load libopenh264: %w", err)
	}
	openh264Handle = handle

	purego.RegisterLibFunc(&welsCreateSVCEncoder, handle, "WelsCreateSVCEncoder")
	purego.RegisterLibFunc(&welsDestroySVCEncoder, handle, "WelsDestroySVCEncoder")
	purego.RegisterLibFunc(&welsCreateDecoder, handle, "WelsCreateDecoder")
	purego.RegisterLibFunc(&welsDestroyDecoder, handle, "WelsDestroyDecoder")
	return nil
}

func openh264LibNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libopenh264.dylib", "libopenh264.7.dylib", "libopenh264.6.dylib"}
	}
	return []string{"libopenh264.so", "libopenh264.so.7", "libopenh264.so.6"}
}

// IsH264Available reports whether libopenh264 could be loaded.
func IsH264Available() bool {
	loadOpenH264()
	return openh264Loaded
}

// H264Encoder encodes I420 frames to H.264 Annex B access units.
type H264Encoder struct {
	mu     sync.Mutex
	handle uintptr
	config VideoEncoderConfig

	sps []byte
	pps []byte

	// Reused across calls; heap-allocated so the pointers handed to
	// the C side stay put. Stack memory can move during the call.
	pic    *sSourcePicture
	bsInfo *sFrameBSInfo

	keyframeReq atomic.Bool

	statsMu sync.Mutex
	stats   EncoderStats
}

// NewH264Encoder creates an OpenH264 encoder. Rate control runs in
// bitrate mode with frame skipping disabled, so every input frame
// produces exactly one access unit.
func NewH264Encoder(config VideoEncoderConfig) (*H264Encoder, error) {
	if err := loadOpenH264(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.GOPSize <= 0 {
		config.GOPSize = config.FPS
	}

	ppEnc := new(uintptr)
	if ret := welsCreateSVCEncoder(uintptr(unsafe.Pointer(ppEnc))); ret != 0 {
		return nil, fmt.Errorf("WelsCreateSVCEncoder failed: %d", ret)
	}
	runtime.KeepAlive(ppEnc)
	handle := *ppEnc
	if handle == 0 {
		return nil, fmt.Errorf("WelsCreateSVCEncoder returned nil encoder")
	}
	registerEncoderVtbl(handle)

	param := &sEncParamBase{
		usageType:     welsUsageCameraRealTime,
		picWidth:      int32(config.Width),
		picHeight:     int32(config.Height),
		targetBitrate: int32(config.BitrateBps),
		rcMode:        welsRCBitrateMode,
		maxFrameRate:  float32(config.FPS),
	}
	if ret := encVtbl.initialize(handle, uintptr(unsafe.Pointer(param))); ret != 0 {
		welsDestroySVCEncoder(handle)
		return nil, fmt.Errorf("encoder Initialize failed: %d", ret)
	}
	runtime.KeepAlive(param)

	idrInterval := new(int32)
	*idrInterval = int32(config.GOPSize)
	encVtbl.setOption(handle, welsOptionIDRInterval, uintptr(unsafe.Pointer(idrInterval)))
	runtime.KeepAlive(idrInterval)

	frameSkip := new(byte)
	*frameSkip = 0
	encVtbl.setOption(handle, welsOptionRCFrameSkip, uintptr(unsafe.Pointer(frameSkip)))
	runtime.KeepAlive(frameSkip)

	e := &H264Encoder{
		handle: handle,
		config: config,
		pic:    &sSourcePicture{},
		bsInfo: &sFrameBSInfo{},
	}
	if err := e.encodeParameterSets(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *H264Encoder) encodeParameterSets() error {
	*e.bsInfo = sFrameBSInfo{}
	ret := encVtbl.encodeParameterSets(e.handle, uintptr(unsafe.Pointer(e.bsInfo)))
	if ret != 0 {
		return fmt.Errorf("EncodeParameterSets failed: %d", ret)
	}
	data, _ := e.collectBitstream()
	runtime.KeepAlive(e.bsInfo)
	sps, pps := ExtractParameterSets(data)
	if sps == nil || pps == nil {
		return fmt.Errorf("encoder produced no parameter sets")
	}
	e.sps = append([]byte(nil), sps...)
	e.pps = append([]byte(nil), pps...)
	return nil
}

// collectBitstream copies the access unit out of bsInfo. The returned
// buffer is freshly allocated; the C buffers stay owned by OpenH264.
func (e *H264Encoder) collectBitstream() ([]byte, FrameType) {
	info := e.bsInfo
	ft := FrameTypeDelta
	switch info.frameType {
	case welsFrameTypeIDR, welsFrameTypeI:
		ft = FrameTypeKey
	case welsFrameTypeSkip:
		return nil, FrameTypeUnknown
	}
	total := 0
	for i := 0; i < int(info.layerNum); i++ {
		layer := &info.layerInfo[i]
		if layer.nalCount <= 0 || layer.nalLengths == 0 {
			continue
		}
		lens := unsafe.Slice((*int32)(unsafe.Pointer(layer.nalLengths)), int(layer.nalCount))
		for _, n := range lens {
			total += int(n)
		}
	}
	if total == 0 {
		return nil, FrameTypeUnknown
	}
	out := make([]byte, 0, total)
	for i := 0; i < int(info.layerNum); i++ {
		layer := &info.layerInfo[i]
		if layer.nalCount <= 0 || layer.nalLengths == 0 || layer.bsBuf == 0 {
			continue
		}
		lens := unsafe.Slice((*int32)(unsafe.Pointer(layer.nalLengths)), int(layer.nalCount))
		size := 0
		for _, n := range lens {
			size += int(n)
		}
		out = append(out, unsafe.Slice((*byte)(unsafe.Pointer(layer.bsBuf)), size)...)
	}
	return out, ft
}

// Encode compresses one I420 frame. OpenH264 runs without lookahead,
// so every call returns a packet unless the rate controller marks the
// frame as skipped.
func (e *H264Encoder) Encode(frame *VideoFrame) (*Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == 0 {
		return nil, ErrEncoderClosed
	}
	if frame.Format != PixelFormatI420 || len(frame.Data) != 3 {
		return nil, fmt.Errorf("h264 encoder requires I420 input, got %s", frame.Format)
	}
	if frame.Width != e.config.Width || frame.Height != e.config.Height {
		return nil, fmt.Errorf("frame is %dx%d, encoder configured for %dx%d",
			frame.Width, frame.Height, e.config.Width, e.config.Height)
	}

	if e.keyframeReq.Swap(false) {
		encVtbl.forceIntraFrame(e.handle, true)
	}

	*e.pic = sSourcePicture{
		colorFormat: welsVideoFormatI420,
		picWidth:    int32(frame.Width),
		picHeight:   int32(frame.Height),
		timestamp:   RescaleQ(frame.PTS, e.config.TimeBase(), R(1, 1000)),
	}
	for i := 0; i < 3; i++ {
		e.pic.stride[i] = int32(frame.Stride[i])
		e.pic.data[i] = uintptr(unsafe.Pointer(&frame.Data[i][0]))
	}
	*e.bsInfo = sFrameBSInfo{}

	ret := encVtbl.encodeFrame(e.handle, uintptr(unsafe.Pointer(e.pic)), uintptr(unsafe.Pointer(e.bsInfo)))
	runtime.KeepAlive(e.pic)
	runtime.KeepAlive(frame.Data)
	if ret != 0 {
		return nil, fmt.Errorf("EncodeFrame failed: %d", ret)
	}
	data, ft := e.collectBitstream()
	runtime.KeepAlive(e.bsInfo)

	e.statsMu.Lock()
	e.stats.FramesIn++
	e.statsMu.Unlock()

	if data == nil {
		return nil, nil
	}
	e.statsMu.Lock()
	e.stats.PacketsOut++
	e.stats.BytesOut += uint64(len(data))
	if ft == FrameTypeKey {
		e.stats.KeyframesOut++
	}
	e.statsMu.Unlock()

	return &Packet{
		Data:     data,
		PTS:      frame.PTS,
		DTS:      frame.PTS,
		Duration: 1,
		TimeBase: e.config.TimeBase(),
		Key:      ft == FrameTypeKey,
	}, nil
}

// Flush drains buffered output. OpenH264 encodes synchronously and
// never holds frames back, so the first call reports io.EOF.
func (e *H264Encoder) Flush() (*Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == 0 {
		return nil, ErrEncoderClosed
	}
	return nil, io.EOF
}

// GetSPS returns the sequence parameter set without start code.
func (e *H264Encoder) GetSPS() []byte { return e.sps }

// GetPPS returns the picture parameter set without start code.
func (e *H264Encoder) GetPPS() []byte { return e.pps }

// RequestKeyframe forces the next encoded frame to be an IDR.
func (e *H264Encoder) RequestKeyframe() {
	e.keyframeReq.Store(true)
}

func (e *H264Encoder) Codec() VideoCodec { return VideoCodecH264 }

func (e *H264Encoder) Config() VideoEncoderConfig { return e.config }

func (e *H264Encoder) Stats() EncoderStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Close releases the encoder. Safe to call more than once.
func (e *H264Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		encVtbl.uninitialize(e.handle)
		welsDestroySVCEncoder(e.handle)
		e.handle = 0
	}
	return nil
}

// H264Decoder decodes H.264 Annex B access units to I420 frames.
type H264Decoder struct {
	mu     sync.Mutex
	handle uintptr

	// Heap-allocated out-params, reused across calls.
	dstPtrs *[3]uintptr
	bufInfo *sBufferInfo

	width   int
	height  int
	eosSent bool

	statsMu sync.Mutex
	stats   DecoderStats
}

// NewH264Decoder creates an OpenH264 decoder with slice-copy error
// concealment.
func NewH264Decoder() (*H264Decoder, error) {
	if err := loadOpenH264(); err != nil {
		return nil, err
	}

	ppDec := new(uintptr)
	if ret := welsCreateDecoder(uintptr(unsafe.Pointer(ppDec))); ret != 0 {
		return nil, fmt.Errorf("WelsCreateDecoder failed: %d", ret)
	}
	runtime.KeepAlive(ppDec)
	handle := *ppDec
	if handle == 0 {
		return nil, fmt.Errorf("WelsCreateDecoder returned nil decoder")
	}
	registerDecoderVtbl(handle)

	param := &sDecodingParam{
		ecActiveIdc:       welsErrorConSliceCopy,
		videoPropertySize: 8, // sizeof(SVideoProperty)
	}
	if ret := decVtbl.initialize(handle, uintptr(unsafe.Pointer(param))); ret != 0 {
		welsDestroyDecoder(handle)
		return nil, fmt.Errorf("decoder Initialize failed: %d", ret)
	}
	runtime.KeepAlive(param)

	return &H264Decoder{
		handle:  handle,
		dstPtrs: new([3]uintptr),
		bufInfo: new(sBufferInfo),
	}, nil
}

// Decode feeds one access unit. It returns a frame when the decoder
// has one ready and (nil, nil) while it is still buffering parameter
// sets or reference pictures.
func (d *H264Decoder) Decode(au []byte) (*VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return nil, ErrDecoderClosed
	}
	if len(au) == 0 {
		return nil, nil
	}

	*d.dstPtrs = [3]uintptr{}
	*d.bufInfo = sBufferInfo{}
	ret := decVtbl.decodeFrameNoDelay(d.handle,
		uintptr(unsafe.Pointer(&au[0])), int32(len(au)),
		uintptr(unsafe.Pointer(d.dstPtrs)),
		uintptr(unsafe.Pointer(d.bufInfo)))
	runtime.KeepAlive(au)

	d.statsMu.Lock()
	d.stats.PacketsIn++
	d.stats.BytesIn += uint64(len(au))
	if ret != 0 {
		d.stats.Corrupted++
	}
	d.statsMu.Unlock()

	frame := d.takeFrame()
	runtime.KeepAlive(d.dstPtrs)
	runtime.KeepAlive(d.bufInfo)
	if frame == nil && ret != 0 {
		return nil, fmt.Errorf("DecodeFrameNoDelay failed: state 0x%x", ret)
	}
	return frame, nil
}

// Flush drains pictures the decoder still holds and returns io.EOF
// once none remain.
func (d *H264Decoder) Flush() (*VideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return nil, ErrDecoderClosed
	}
	if !d.eosSent {
		eos := new(int32)
		*eos = 1
		decVtbl.setOption(d.handle, welsDecOptionEndOfStream, uintptr(unsafe.Pointer(eos)))
		runtime.KeepAlive(eos)
		d.eosSent = true
	}

	*d.dstPtrs = [3]uintptr{}
	*d.bufInfo = sBufferInfo{}
	ret := decVtbl.flushFrame(d.handle,
		uintptr(unsafe.Pointer(d.dstPtrs)),
		uintptr(unsafe.Pointer(d.bufInfo)))
	frame := d.takeFrame()
	runtime.KeepAlive(d.dstPtrs)
	runtime.KeepAlive(d.bufInfo)
	if frame == nil {
		if ret != 0 {
			return nil, fmt.Errorf("FlushFrame failed: state 0x%x", ret)
		}
		return nil, io.EOF
	}
	return frame, nil
}

// takeFrame copies the decoder-owned picture out of bufInfo into a
// freshly allocated VideoFrame.
func (d *H264Decoder) takeFrame() *VideoFrame {
	info := d.bufInfo
	if info.bufferStatus != 1 {
		return nil
	}
	w := int(info.width)
	h := int(info.height)
	yStride := int(info.stride[0])
	cStride := int(info.stride[1])
	if w <= 0 || h <= 0 || yStride <= 0 || cStride <= 0 {
		return nil
	}
	d.width, d.height = w, h

	frame := NewVideoFrame(w, h, PixelFormatI420)
	cH := (h + 1) / 2
	cW := (w + 1) / 2
	src := [3][]byte{
		unsafe.Slice((*byte)(unsafe.Pointer(d.dstPtrs[0])), yStride*h),
		unsafe.Slice((*byte)(unsafe.Pointer(d.dstPtrs[1])), cStride*cH),
		unsafe.Slice((*byte)(unsafe.Pointer(d.dstPtrs[2])), cStride*cH),
	}
	for row := 0; row < h; row++ {
		copy(frame.Data[0][row*frame.Stride[0]:], src[0][row*yStride:row*yStride+w])
	}
	for row := 0; row < cH; row++ {
		copy(frame.Data[1][row*frame.Stride[1]:], src[1][row*cStride:row*cStride+cW])
		copy(frame.Data[2][row*frame.Stride[2]:], src[2][row*cStride:row*cStride+cW])
	}

	d.statsMu.Lock()
	d.stats.FramesOut++
	d.statsMu.Unlock()
	return frame
}

// Dimensions returns the coded size, known after the first decoded
// frame.
func (d *H264Decoder) Dimensions() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *H264Decoder) Codec() VideoCodec { return VideoCodecH264 }

func (d *H264Decoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close releases the decoder. Safe to call more than once.
func (d *H264Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != 0 {
		decVtbl.uninitialize(d.handle)
		welsDestroyDecoder(d.handle)
		d.handle = 0
	}
	return nil
}

func init() {
	registerVideoEncoder(VideoCodecH264, func(config VideoEncoderConfig) (VideoEncoder, error) {
		return NewH264Encoder(config)
	})
	registerVideoDecoder(VideoCodecH264, func() (VideoDecoder, error) {
		return NewH264Decoder()
	})
}
