package avtk

import "io"

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecH264
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecH264:
		return "H264"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecH264:
		return "video/H264"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c VideoCodec) ClockRate() uint32 {
	return 90000
}

// DefaultPayloadType returns the conventional dynamic RTP payload type.
func (c VideoCodec) DefaultPayloadType() uint8 {
	switch c {
	case VideoCodecH264:
		return 96
	default:
		return 0
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecAAC
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecAAC:
		return "AAC"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecAAC:
		return "audio/aac"
	default:
		return ""
	}
}

// VideoEncoder compresses raw frames into access units.
//
// Encode accepts one frame and returns at most one packet. A nil
// packet with a nil error means the codec buffered the input and has
// nothing to emit yet. After the last frame, call Flush repeatedly;
// it returns the remaining packets one at a time and io.EOF once the
// codec is fully drained.
type VideoEncoder interface {
	Encode(frame *VideoFrame) (*Packet, error)
	Flush() (*Packet, error)

	// GetSPS and GetPPS return the active parameter sets. They are
	// available once the encoder is created, before any Encode call.
	GetSPS() []byte
	GetPPS() []byte

	// RequestKeyframe forces the next encoded frame to be an IDR.
	RequestKeyframe()

	Codec() VideoCodec
	Config() VideoEncoderConfig
	Stats() EncoderStats
	io.Closer
}

// AudioEncoder compresses raw PCM into codec frames.
//
// Encode accepts exactly FrameSize sample frames per call. The same
// nil-packet buffering and Flush/io.EOF drain contract as
// VideoEncoder applies.
type AudioEncoder interface {
	Encode(samples *AudioSamples) (*Packet, error)
	Flush() (*Packet, error)

	// FrameSize returns the number of sample frames consumed per
	// Encode call (1024 for AAC-LC).
	FrameSize() int

	// CodecData returns the decoder configuration record
	// (AudioSpecificConfig for AAC).
	CodecData() []byte

	Codec() AudioCodec
	Config() AudioEncoderConfig
	Stats() EncoderStats
	io.Closer
}

// VideoDecoder decompresses access units back into raw frames.
//
// Decode accepts one Annex B access unit. A nil frame with nil error
// means the codec buffered the input. Flush drains frames still held
// after the last access unit and returns io.EOF when none remain.
type VideoDecoder interface {
	Decode(au []byte) (*VideoFrame, error)
	Flush() (*VideoFrame, error)

	// Dimensions returns the coded size, known after the first
	// decoded frame.
	Dimensions() (width, height int)

	Codec() VideoCodec
	Stats() DecoderStats
	io.Closer
}

// AudioDecoder decompresses codec frames back into PCM.
type AudioDecoder interface {
	// Decode accepts one ADTS frame and returns the decoded PCM, or
	// ErrAgain when the codec needs more input before it can emit.
	Decode(frame []byte) (*AudioSamples, error)
	Flush() (*AudioSamples, error)

	// SampleRate and Channels describe the decoded output, known
	// after the first decoded frame.
	SampleRate() int
	Channels() int

	Codec() AudioCodec
	Stats() DecoderStats
	io.Closer
}
