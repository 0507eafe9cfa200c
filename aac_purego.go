//go:build darwin || linux

// AAC-LC encode and decode via the Fraunhofer FDK library
// (libfdk-aac) using purego.

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
	fdkaacOnce    sync.Once
	fdkaacHandle  uintptr
	fdkaacInitErr error
	fdkaacLoaded  bool
)

// libfdk-aac function pointers
var (
	aacEncOpen         func(phEncoder uintptr, encModules, maxChannels uint32) int32
	aacEncClose        func(phEncoder uintptr) int32
	aacEncoderSetParam func(hEncoder uintptr, param, value uint32) int32
	aacEncEncode       func(hEncoder, inBufDesc, outBufDesc, inArgs, outArgs uintptr) int32
	aacEncInfo         func(hEncoder, info uintptr) int32

	aacDecoderOpen          func(transportFmt int32, nrOfLayers uint32) uintptr
	aacDecoderClose         func(hDecoder uintptr)
	aacDecoderFill          func(hDecoder, ppBuffer, pBufferSize, pBytesValid uintptr) int32
	aacDecoderDecodeFrame   func(hDecoder, pTimeData uintptr, timeDataSize int32, flags uint32) int32
	aacDecoderGetStreamInfo func(hDecoder uintptr) uintptr
)

// Constants from aacenc_lib.h and aacdecoder_lib.h.
const (
	fdkAOTAACLC = 2

	fdkParamAOT         = 0x0100
	fdkParamBitrate     = 0x0101
	fdkParamSampleRate  = 0x0103
	fdkParamChannelMode = 0x0106
	fdkParamAfterburner = 0x0200
	fdkParamTransmux    = 0x0300

	fdkTransportRaw  = 0
	fdkTransportADTS = 2

	fdkBufIDInAudio      = 0
	fdkBufIDOutBitstream = 3

	fdkEncOK  = 0x0000
	fdkEncEOF = 0x0080

	fdkDecOK            = 0x0000
	fdkDecNotEnoughBits = 0x1002

	fdkDecFlagFlush = 2

	// Large enough for any AAC frame length and channel count the
	// decoder can emit (2048 samples x 8 channels).
	fdkMaxPCMSamples = 2048 * 8
)

type aacencBufDesc struct {
	numBufs    int32
	_          [4]byte
	bufs       uintptr // void**
	bufferIDs  uintptr // INT*
	bufSizes   uintptr // INT*
	bufElSizes uintptr // INT*
}

type aacencInArgs struct {
	numInSamples int32
	numAncBytes  int32
}

type aacencOutArgs struct {
	numOutBytes  int32
	numInSamples int32
	numAncBytes  int32
	bitResState  int32
}

type aacencInfoStruct struct {
	maxOutBufBytes uint32
	maxAncBytes    uint32
	inBufFillLevel uint32
	inputChannels  uint32
	frameLength    uint32
	nDelay         uint32
	nDelayCore     uint32
	confBuf        [64]byte
	confSize       uint32
}

type cStreamInfo struct {
	sampleRate  int32
	frameSize   int32
	numChannels int32
}

// aacencIO bundles every pointer handed to aacEncEncode in one heap
// allocation, so nothing the C side dereferences can move.
type aacencIO struct {
	inDesc  aacencBufDesc
	outDesc aacencBufDesc
	inArgs  aacencInArgs
	outArgs aacencOutArgs

	inPtr     uintptr
	inID      int32
	inSize    int32
	inElSize  int32
	outPtr    uintptr
	outID     int32
	outSize   int32
	outElSize int32
}

func newAACEncIO() *aacencIO {
	eio := &aacencIO{
		inID:      fdkBufIDInAudio,
		inElSize:  2,
		outID:     fdkBufIDOutBitstream,
		outElSize: 1,
	}
	eio.inDesc = aacencBufDesc{
		numBufs:    1,
		bufs:       uintptr(unsafe.Pointer(&eio.inPtr)),
		bufferIDs:  uintptr(unsafe.Pointer(&eio.inID)),
		bufSizes:   uintptr(unsafe.Pointer(&eio.inSize)),
		bufElSizes: uintptr(unsafe.Pointer(&eio.inElSize)),
	}
	eio.outDesc = aacencBufDesc{
		numBufs:    1,
		bufs:       uintptr(unsafe.Pointer(&eio.outPtr)),
		bufferIDs:  uintptr(unsafe.Pointer(&eio.outID)),
		bufSizes:   uintptr(unsafe.Pointer(&eio.outSize)),
		bufElSizes: uintptr(unsafe.Pointer(&eio.outElSize)),
	}
	return eio
}

func loadFDKAAC() error {
	fdkaacOnce.Do(func() {
		fdkaacInitErr = loadFDKAACLib()
		if fdkaacInitErr == nil {
			fdkaacLoaded = true
		}
	})
	return fdkaacInitErr
}

func loadFDKAACLib() error {
	handle, err := openLibrary("FDK_AAC_LIB_PATH", fdkaacLibNames()...)
	if err != nil {
		return fmt.Errorf("failed to load libfdk-aac: %w", err)
	}
	fdkaacHandle = handle

	purego.RegisterLibFunc(&aacEncOpen, handle, "aacEncOpen")
	purego.RegisterLibFunc(&aacEncClose, handle, "aacEncClose")
	purego.RegisterLibFunc(&aacEncoderSetParam, handle, "aacEncoder_SetParam")
	purego.RegisterLibFunc(&aacEncEncode, handle, "aacEncEncode")
	purego.RegisterLibFunc(&aacEncInfo, handle, "aacEncInfo")

	purego.RegisterLibFunc(&aacDecoderOpen, handle, "aacDecoder_Open")
	purego.RegisterLibFunc(&aacDecoderClose, handle, "aacDecoder_Close")
	purego.RegisterLibFunc(&aacDecoderFill, handle, "aacDecoder_Fill")
	purego.RegisterLibFunc(&aacDecoderDecodeFrame, handle, "aacDecoder_DecodeFrame")
	purego.RegisterLibFunc(&aacDecoderGetStreamInfo, handle, "aacDecoder_GetStreamInfo")
	return nil
}

func fdkaacLibNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libfdk-aac.dylib", "libfdk-aac.2.dylib"}
	}
	return []string{"libfdk-aac.so.2", "libfdk-aac.so"}
}

// IsAACAvailable reports whether libfdk-aac could be loaded.
func IsAACAvailable() bool {
	loadFDKAAC()
	return fdkaacLoaded
}

// AACEncoder encodes 16-bit PCM to raw AAC-LC frames. Output packets
// carry raw frames without transport framing; use WriteADTSHeader or
// AudioSpecificConfig for the container at hand.
type AACEncoder struct {
	mu      sync.Mutex
	handle  uintptr
	config  AudioEncoderConfig
	encIO   *aacencIO
	outBuf  []byte
	conf    []byte
	frameSz int
	nextPTS int64
	flushed bool

	statsMu sync.Mutex
	stats   EncoderStats
}

// NewAACEncoder creates an FDK AAC-LC encoder.
func NewAACEncoder(config AudioEncoderConfig) (*AACEncoder, error) {
	if err := loadFDKAAC(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if _, err := ADTSSampleRateIndex(config.SampleRate); err != nil {
		return nil, err
	}

	ph := new(uintptr)
	if ret := aacEncOpen(uintptr(unsafe.Pointer(ph)), 0, uint32(config.Channels)); ret != fdkEncOK {
		return nil, fmt.Errorf("aacEncOpen failed: 0x%x", ret)
	}
	runtime.KeepAlive(ph)
	handle := *ph

	setParam := func(param, value uint32) error {
		if ret := aacEncoderSetParam(handle, param, value); ret != fdkEncOK {
			return fmt.Errorf("aacEncoder_SetParam(0x%x, %d) failed: 0x%x", param, value, ret)
		}
		return nil
	}
	params := []struct{ p, v uint32 }{
		{fdkParamAOT, fdkAOTAACLC},
		{fdkParamSampleRate, uint32(config.SampleRate)},
		{fdkParamChannelMode, uint32(config.Channels)},
		{fdkParamBitrate, uint32(config.BitrateBps)},
		{fdkParamTransmux, fdkTransportRaw},
		{fdkParamAfterburner, 1},
	}
	for _, kv := range params {
		if err := setParam(kv.p, kv.v); err != nil {
			closeAACEncHandle(handle)
			return nil, err
		}
	}

	// An encode call with null descriptors applies the parameter set.
	if ret := aacEncEncode(handle, 0, 0, 0, 0); ret != fdkEncOK {
		closeAACEncHandle(handle)
		return nil, fmt.Errorf("aacEncEncode init failed: 0x%x", ret)
	}

	info := new(aacencInfoStruct)
	if ret := aacEncInfo(handle, uintptr(unsafe.Pointer(info))); ret != fdkEncOK {
		closeAACEncHandle(handle)
		return nil, fmt.Errorf("aacEncInfo failed: 0x%x", ret)
	}
	runtime.KeepAlive(info)

	e := &AACEncoder{
		handle:  handle,
		config:  config,
		encIO:   newAACEncIO(),
		outBuf:  make([]byte, info.maxOutBufBytes),
		conf:    append([]byte(nil), info.confBuf[:info.confSize]...),
		frameSz: int(info.frameLength),
	}
	return e, nil
}

func closeAACEncHandle(handle uintptr) {
	ph := new(uintptr)
	*ph = handle
	aacEncClose(uintptr(unsafe.Pointer(ph)))
	runtime.KeepAlive(ph)
}

// Encode compresses exactly FrameSize sample frames of interleaved
// 16-bit PCM. Early calls return (nil, nil) while the codec fills its
// lookahead.
func (e *AACEncoder) Encode(samples *AudioSamples) (*Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == 0 {
		return nil, ErrEncoderClosed
	}
	if samples.Format != AudioFormatS16 {
		return nil, fmt.Errorf("aac encoder requires S16 input, got %s", samples.Format)
	}
	if samples.SampleCount != e.frameSz {
		return nil, fmt.Errorf("aac encoder consumes %d sample frames per call, got %d",
			e.frameSz, samples.SampleCount)
	}
	if samples.Channels != e.config.Channels {
		return nil, fmt.Errorf("block has %d channels, encoder configured for %d",
			samples.Channels, e.config.Channels)
	}

	eio := e.encIO
	eio.inPtr = uintptr(unsafe.Pointer(&samples.Data[0]))
	eio.inSize = int32(len(samples.Data))
	eio.outPtr = uintptr(unsafe.Pointer(&e.outBuf[0]))
	eio.outSize = int32(len(e.outBuf))
	eio.inArgs = aacencInArgs{numInSamples: int32(samples.SampleCount * samples.Channels)}
	eio.outArgs = aacencOutArgs{}

	ret := aacEncEncode(e.handle,
		uintptr(unsafe.Pointer(&eio.inDesc)),
		uintptr(unsafe.Pointer(&eio.outDesc)),
		uintptr(unsafe.Pointer(&eio.inArgs)),
		uintptr(unsafe.Pointer(&eio.outArgs)))
	runtime.KeepAlive(eio)
	runtime.KeepAlive(samples.Data)
	if ret != fdkEncOK {
		return nil, fmt.Errorf("aacEncEncode failed: 0x%x", ret)
	}

	e.statsMu.Lock()
	e.stats.FramesIn++
	e.statsMu.Unlock()

	return e.takePacket()
}

// Flush drains the codec's lookahead one packet per call, then
// reports io.EOF.
func (e *AACEncoder) Flush() (*Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == 0 {
		return nil, ErrEncoderClosed
	}

	eio := e.encIO
	eio.inPtr = 0
	eio.inSize = 0
	eio.outPtr = uintptr(unsafe.Pointer(&e.outBuf[0]))
	eio.outSize = int32(len(e.outBuf))
	eio.inArgs = aacencInArgs{numInSamples: -1} // signals end of stream
	eio.outArgs = aacencOutArgs{}

	ret := aacEncEncode(e.handle,
		uintptr(unsafe.Pointer(&eio.inDesc)),
		uintptr(unsafe.Pointer(&eio.outDesc)),
		uintptr(unsafe.Pointer(&eio.inArgs)),
		uintptr(unsafe.Pointer(&eio.outArgs)))
	runtime.KeepAlive(eio)
	if ret == fdkEncEOF {
		return nil, io.EOF
	}
	if ret != fdkEncOK {
		return nil, fmt.Errorf("aacEncEncode flush failed: 0x%x", ret)
	}
	return e.takePacket()
}

func (e *AACEncoder) takePacket() (*Packet, error) {
	n := int(e.encIO.outArgs.numOutBytes)
	if n == 0 {
		return nil, nil
	}
	data := make([]byte, n)
	copy(data, e.outBuf[:n])

	pkt := &Packet{
		Data:     data,
		PTS:      e.nextPTS,
		DTS:      e.nextPTS,
		Duration: int64(e.frameSz),
		TimeBase: e.config.TimeBase(),
		Key:      true,
	}
	e.nextPTS += int64(e.frameSz)

	e.statsMu.Lock()
	e.stats.PacketsOut++
	e.stats.BytesOut += uint64(n)
	e.statsMu.Unlock()
	return pkt, nil
}

// FrameSize returns the sample frames consumed per Encode call.
func (e *AACEncoder) FrameSize() int { return e.frameSz }

// CodecData returns the AudioSpecificConfig for this stream.
func (e *AACEncoder) CodecData() []byte { return e.conf }

func (e *AACEncoder) Codec() AudioCodec { return AudioCodecAAC }

func (e *AACEncoder) Config() AudioEncoderConfig { return e.config }

func (e *AACEncoder) Stats() EncoderStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Close releases the encoder. Safe to call more than once.
func (e *AACEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		closeAACEncHandle(e.handle)
		e.handle = 0
	}
	return nil
}

// aacdecIO bundles the heap-stable out-params for the decoder.
type aacdecIO struct {
	dataPtr    uintptr
	bufferSize uint32
	bytesValid uint32
}

// AACDecoder decodes ADTS-framed AAC to interleaved 16-bit PCM.
type AACDecoder struct {
	mu      sync.Mutex
	handle  uintptr
	decIO   *aacdecIO
	pcmBuf  []int16
	rate    int
	chans   int
	nextPTS int64

	statsMu sync.Mutex
	stats   DecoderStats
}

// NewAACDecoder creates an FDK decoder expecting ADTS input.
func NewAACDecoder() (*AACDecoder, error) {
	if err := loadFDKAAC(); err != nil {
		return nil, err
	}
	handle := aacDecoderOpen(fdkTransportADTS, 1)
	if handle == 0 {
		return nil, fmt.Errorf("aacDecoder_Open failed")
	}
	return &AACDecoder{
		handle: handle,
		decIO:  new(aacdecIO),
		pcmBuf: make([]int16, fdkMaxPCMSamples),
	}, nil
}

// Decode feeds one ADTS frame and returns the decoded PCM block. It
// returns ErrAgain when the codec wants more input first.
func (d *AACDecoder) Decode(frame []byte) (*AudioSamples, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return nil, ErrDecoderClosed
	}
	if len(frame) == 0 {
		return nil, ErrAgain
	}

	dio := d.decIO
	dio.dataPtr = uintptr(unsafe.Pointer(&frame[0]))
	dio.bufferSize = uint32(len(frame))
	dio.bytesValid = uint32(len(frame))
	ret := aacDecoderFill(d.handle,
		uintptr(unsafe.Pointer(&dio.dataPtr)),
		uintptr(unsafe.Pointer(&dio.bufferSize)),
		uintptr(unsafe.Pointer(&dio.bytesValid)))
	runtime.KeepAlive(dio)
	runtime.KeepAlive(frame)
	if ret != fdkDecOK {
		return nil, fmt.Errorf("aacDecoder_Fill failed: 0x%x", ret)
	}

	d.statsMu.Lock()
	d.stats.PacketsIn++
	d.stats.BytesIn += uint64(len(frame))
	d.statsMu.Unlock()

	return d.decodeOne(0)
}

// Flush drains delayed output and reports io.EOF when none remains.
func (d *AACDecoder) Flush() (*AudioSamples, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == 0 {
		return nil, ErrDecoderClosed
	}
	samples, err := d.decodeOne(fdkDecFlagFlush)
	if err == ErrAgain || (err == nil && samples == nil) {
		return nil, io.EOF
	}
	return samples, err
}

func (d *AACDecoder) decodeOne(flags uint32) (*AudioSamples, error) {
	ret := aacDecoderDecodeFrame(d.handle,
		uintptr(unsafe.Pointer(&d.pcmBuf[0])),
		int32(len(d.pcmBuf)), flags)
	runtime.KeepAlive(d.pcmBuf)
	if ret == fdkDecNotEnoughBits {
		return nil, ErrAgain
	}
	if ret != fdkDecOK {
		d.statsMu.Lock()
		d.stats.Corrupted++
		d.statsMu.Unlock()
		return nil, fmt.Errorf("aacDecoder_DecodeFrame failed: 0x%x", ret)
	}

	infoPtr := aacDecoderGetStreamInfo(d.handle)
	if infoPtr == 0 {
		return nil, fmt.Errorf("aacDecoder_GetStreamInfo returned nil")
	}
	info := (*cStreamInfo)(unsafe.Pointer(infoPtr))
	if info.frameSize <= 0 || info.numChannels <= 0 {
		return nil, ErrAgain
	}
	d.rate = int(info.sampleRate)
	d.chans = int(info.numChannels)

	out := NewAudioSamples(int(info.frameSize), d.rate, d.chans, AudioFormatS16)
	src := unsafe.Slice((*byte)(unsafe.Pointer(&d.pcmBuf[0])), len(out.Data))
	copy(out.Data, src)
	out.PTS = d.nextPTS
	d.nextPTS += int64(info.frameSize)

	d.statsMu.Lock()
	d.stats.FramesOut++
	d.statsMu.Unlock()
	return out, nil
}

// SampleRate returns the output rate, known after the first frame.
func (d *AACDecoder) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// Channels returns the output channel count, known after the first
// frame.
func (d *AACDecoder) Channels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chans
}

func (d *AACDecoder) Codec() AudioCodec { return AudioCodecAAC }

func (d *AACDecoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Close releases the decoder. Safe to call more than once.
func (d *AACDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != 0 {
		aacDecoderClose(d.handle)
		d.handle = 0
	}
	return nil
}

func init() {
	registerAudioEncoder(AudioCodecAAC, func(config AudioEncoderConfig) (AudioEncoder, error) {
		return NewAACEncoder(config)
	})
	registerAudioDecoder(AudioCodecAAC, func() (AudioDecoder, error) {
		return NewAACDecoder()
	})
}
