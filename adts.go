package avtk

import (
	"fmt"
	"io"
)

// ADTSHeaderSize is the size of an ADTS header without CRC.
const ADTSHeaderSize = 7

// adtsSampleRates maps sample rates to the 4-bit sampling frequency
// index of ISO/IEC 14496-3 Table 1.18.
var adtsSampleRates = map[int]int{
	96000: 0, 88200: 1, 64000: 2, 48000: 3, 44100: 4, 32000: 5,
	24000: 6, 22050: 7, 16000: 8, 12000: 9, 11025: 10, 8000: 11,
	7350: 12,
}

var adtsSampleRateByIndex = [13]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// ADTSSampleRateIndex returns the sampling frequency index for rate,
// or an error for rates ADTS cannot express.
func ADTSSampleRateIndex(rate int) (int, error) {
	idx, ok := adtsSampleRates[rate]
	if !ok {
		return 0, fmt.Errorf("sample rate %d not representable in ADTS", rate)
	}
	return idx, nil
}

// WriteADTSHeader writes a 7-byte AAC-LC ADTS header into dst.
// payloadLen is the length of the raw AAC frame that follows; the
// frame_length field covers the header itself plus the payload.
func WriteADTSHeader(dst []byte, sampleRate, channels, payloadLen int) error {
	if len(dst) < ADTSHeaderSize {
		return fmt.Errorf("adts header needs %d bytes, have %d", ADTSHeaderSize, len(dst))
	}
	freqIdx, err := ADTSSampleRateIndex(sampleRate)
	if err != nil {
		return err
	}
	if channels < 1 || channels > 7 {
		return fmt.Errorf("channel configuration %d not representable in ADTS", channels)
	}
	frameLen := payloadLen + ADTSHeaderSize
	if frameLen >= 1<<13 {
		return fmt.Errorf("frame length %d exceeds 13-bit ADTS field", frameLen)
	}
	// AAC-LC: the two profile bits hold audio_object_type - 1.
	const profile = 1
	dst[0] = 0xFF
	dst[1] = 0xF1 // Syncword low bits, MPEG-4, no CRC
	dst[2] = byte(profile<<6 | freqIdx<<2 | channels>>2)
	dst[3] = byte(channels&3<<6 | frameLen>>11)
	dst[4] = byte(frameLen >> 3)
	dst[5] = byte(frameLen&7<<5 | 0x1F)
	dst[6] = 0xFC
	return nil
}

// ADTSHeader returns a freshly allocated 7-byte header.
func ADTSHeader(sampleRate, channels, payloadLen int) ([]byte, error) {
	dst := make([]byte, ADTSHeaderSize)
	if err := WriteADTSHeader(dst, sampleRate, channels, payloadLen); err != nil {
		return nil, err
	}
	return dst, nil
}

// ADTSHeaderInfo holds the fields parsed from one ADTS header.
type ADTSHeaderInfo struct {
	SampleRate  int
	Channels    int
	FrameLength int // Header plus payload, in bytes
	HeaderSize  int // 7, or 9 when a CRC is present
	Profile     int // audio_object_type (2 for AAC-LC)
}

// ParseADTSHeader decodes the header at the start of b. It returns
// ErrAgain when b is too short to hold the full header.
func ParseADTSHeader(b []byte) (*ADTSHeaderInfo, error) {
	if len(b) < 2 {
		return nil, ErrAgain
	}
	if b[0] != 0xFF || b[1]&0xF6 != 0xF0 {
		return nil, fmt.Errorf("not an adts header: % x", b[:2])
	}
	headerSize := ADTSHeaderSize
	if b[1]&0x01 == 0 { // protection_absent unset means a CRC follows
		headerSize += 2
	}
	if len(b) < ADTSHeaderSize {
		return nil, ErrAgain
	}
	freqIdx := int(b[2] >> 2 & 0xF)
	if freqIdx >= len(adtsSampleRateByIndex) {
		return nil, fmt.Errorf("reserved sampling frequency index %d", freqIdx)
	}
	info := &ADTSHeaderInfo{
		SampleRate:  adtsSampleRateByIndex[freqIdx],
		Channels:    int(b[2]&1)<<2 | int(b[3]>>6),
		FrameLength: int(b[3]&3)<<11 | int(b[4])<<3 | int(b[5]>>5),
		HeaderSize:  headerSize,
		Profile:     int(b[2]>>6&3) + 1,
	}
	if info.FrameLength < headerSize {
		return nil, fmt.Errorf("adts frame length %d shorter than its header", info.FrameLength)
	}
	return info, nil
}

// AudioSpecificConfig returns the 2-byte MP4 decoder configuration for
// an AAC-LC stream, as carried in FLV sequence headers and avc-family
// containers.
func AudioSpecificConfig(sampleRate, channels int) ([]byte, error) {
	freqIdx, err := ADTSSampleRateIndex(sampleRate)
	if err != nil {
		return nil, err
	}
	const aotLC = 2
	v := uint16(aotLC<<11 | freqIdx<<7 | channels<<3)
	return []byte{byte(v >> 8), byte(v)}, nil
}

// ParseAudioSpecificConfig reads the sample rate and channel count
// back out of a 2-byte AudioSpecificConfig.
func ParseAudioSpecificConfig(asc []byte) (sampleRate, channels int, err error) {
	if len(asc) < 2 {
		return 0, 0, fmt.Errorf("audio specific config too short: %d bytes", len(asc))
	}
	v := uint16(asc[0])<<8 | uint16(asc[1])
	freqIdx := int(v >> 7 & 0x0F)
	if freqIdx >= len(adtsSampleRateByIndex) || adtsSampleRateByIndex[freqIdx] == 0 {
		return 0, 0, fmt.Errorf("reserved sampling frequency index %d", freqIdx)
	}
	return adtsSampleRateByIndex[freqIdx], int(v >> 3 & 0x0F), nil
}

// ADTSScanner splits an ADTS elementary stream into whole frames. It
// reads ahead into a fixed buffer and refills when the remainder runs
// low, so arbitrarily large files stream in constant memory.
type ADTSScanner struct {
	r    io.Reader
	buf  []byte
	data []byte
	eof  bool
}

const (
	scanBufferSize    = 20480
	scanRefillTrigger = 4096
)

// NewADTSScanner wraps r for frame-at-a-time reading.
func NewADTSScanner(r io.Reader) *ADTSScanner {
	return &ADTSScanner{
		r:   r,
		buf: make([]byte, scanBufferSize),
	}
}

// Next returns the next complete ADTS frame, header included. It
// returns io.EOF after the last frame.
func (s *ADTSScanner) Next() ([]byte, error) {
	if !s.eof && len(s.data) < scanRefillTrigger {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
	for {
		info, err := ParseADTSHeader(s.data)
		needMore := err == ErrAgain || (err == nil && info.FrameLength > len(s.data))
		switch {
		case needMore && s.eof:
			if len(s.data) == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("truncated adts frame at end of stream: %w", io.ErrUnexpectedEOF)
		case needMore:
			if err := s.fill(); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		default:
			frame := s.data[:info.FrameLength]
			s.data = s.data[info.FrameLength:]
			return frame, nil
		}
	}
}

// fill compacts the unread remainder to the front of the buffer and
// reads until the buffer is full or the stream ends.
func (s *ADTSScanner) fill() error {
	n := copy(s.buf, s.data)
	for n < len(s.buf) {
		m, err := s.r.Read(s.buf[n:])
		n += m
		if err == io.EOF {
			s.eof = true
			break
		}
		if err != nil {
			return err
		}
	}
	s.data = s.buf[:n]
	return nil
}
