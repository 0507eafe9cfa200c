package avtk

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yutopp/go-amf0"
	flv "github.com/yutopp/go-flv"
	flvtag "github.com/yutopp/go-flv/tag"
)

// StreamKind tells a muxer what a stream carries.
type StreamKind int

const (
	StreamKindVideo StreamKind = iota
	StreamKindAudio
)

func (k StreamKind) String() string {
	switch k {
	case StreamKindVideo:
		return "video"
	case StreamKindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// StreamDesc describes one elementary stream handed to a muxer.
// WriteHeader fills Index and TimeBase; packets for the stream must
// carry that Index.
type StreamDesc struct {
	Kind StreamKind

	// Video streams.
	VideoCodec VideoCodec
	Width      int
	Height     int
	FPS        int
	SPS        []byte
	PPS        []byte

	// Audio streams.
	AudioCodec AudioCodec
	SampleRate int
	Channels   int
	CodecData  []byte

	BitrateBps int

	// Assigned by WriteHeader.
	Index    int
	TimeBase Rational
}

// MuxSink interleaves encoded packets into a container.
type MuxSink interface {
	WriteHeader(streams []*StreamDesc) error
	WritePacket(pkt *Packet) error
	WriteTrailer() error
}

// FLVMuxer writes an FLV stream: onMetaData, codec sequence headers,
// then tags with millisecond timestamps. H.264 packets must arrive as
// Annex B access units; AAC packets as raw frames without ADTS.
type FLVMuxer struct {
	w   io.Writer
	enc *flv.Encoder

	streams []*StreamDesc
	video   *StreamDesc
	audio   *StreamDesc

	lastDTS      []int64
	lastVideoDTS int64

	headerDone  bool
	trailerDone bool
}

// NewFLVMuxer creates a muxer writing to w. Nothing is written until
// WriteHeader.
func NewFLVMuxer(w io.Writer) *FLVMuxer {
	return &FLVMuxer{w: w}
}

func (m *FLVMuxer) WriteHeader(streams []*StreamDesc) error {
	if m.headerDone {
		return fmt.Errorf("flv: header already written")
	}
	if len(streams) == 0 {
		return fmt.Errorf("flv: no streams")
	}

	var flags flv.Flags
	for i, desc := range streams {
		switch desc.Kind {
		case StreamKindVideo:
			if m.video != nil {
				return fmt.Errorf("flv: more than one video stream")
			}
			if desc.VideoCodec != VideoCodecH264 {
				return fmt.Errorf("flv: unsupported video codec %s", desc.VideoCodec)
			}
			if len(desc.SPS) == 0 || len(desc.PPS) == 0 {
				return fmt.Errorf("flv: video stream needs SPS and PPS")
			}
			m.video = desc
			flags |= flv.FlagsVideo
		case StreamKindAudio:
			if m.audio != nil {
				return fmt.Errorf("flv: more than one audio stream")
			}
			if desc.AudioCodec != AudioCodecAAC {
				return fmt.Errorf("flv: unsupported audio codec %s", desc.AudioCodec)
			}
			if len(desc.CodecData) == 0 {
				return fmt.Errorf("flv: audio stream needs an AudioSpecificConfig")
			}
			m.audio = desc
			flags |= flv.FlagsAudio
		default:
			return fmt.Errorf("flv: unsupported stream kind %d", desc.Kind)
		}
		desc.Index = i
		desc.TimeBase = R(1, 1000)
	}
	m.streams = streams
	m.lastDTS = make([]int64, len(streams))
	for i := range m.lastDTS {
		m.lastDTS[i] = NoPTS
	}

	enc, err := flv.NewEncoder(m.w, flags)
	if err != nil {
		return fmt.Errorf("flv: failed to write file header: %w", err)
	}
	m.enc = enc

	if err := m.writeMetadata(); err != nil {
		return err
	}
	if m.video != nil {
		if err := m.writeVideoSequenceHeader(); err != nil {
			return err
		}
	}
	if m.audio != nil {
		if err := m.writeAudioSequenceHeader(); err != nil {
			return err
		}
	}
	m.headerDone = true
	return nil
}

func (m *FLVMuxer) writeMetadata() error {
	meta := amf0.ECMAArray{"duration": float64(0)}
	if m.video != nil {
		meta["width"] = float64(m.video.Width)
		meta["height"] = float64(m.video.Height)
		meta["framerate"] = float64(m.video.FPS)
		meta["videocodecid"] = float64(flvtag.CodecIDAVC)
		if m.video.BitrateBps > 0 {
			meta["videodatarate"] = float64(m.video.BitrateBps) / 1000
		}
	}
	if m.audio != nil {
		meta["audiocodecid"] = float64(flvtag.SoundFormatAAC)
		meta["audiosamplerate"] = float64(m.audio.SampleRate)
		meta["audiosamplesize"] = float64(16)
		meta["stereo"] = m.audio.Channels == 2
		if m.audio.BitrateBps > 0 {
			meta["audiodatarate"] = float64(m.audio.BitrateBps) / 1000
		}
	}

	err := m.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeScriptData,
		Timestamp: 0,
		Data: &flvtag.ScriptData{
			Objects: map[string]amf0.ECMAArray{"onMetaData": meta},
		},
	})
	if err != nil {
		return fmt.Errorf("flv: failed to write onMetaData: %w", err)
	}
	return nil
}

func (m *FLVMuxer) writeVideoSequenceHeader() error {
	config, err := BuildAVCDecoderConfig(m.video.SPS, m.video.PPS)
	if err != nil {
		return fmt.Errorf("flv: %w", err)
	}
	err = m.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeVideo,
		Timestamp: 0,
		Data: &flvtag.VideoData{
			FrameType:       flvtag.FrameTypeKeyFrame,
			CodecID:         flvtag.CodecIDAVC,
			AVCPacketType:   flvtag.AVCPacketTypeSequenceHeader,
			CompositionTime: 0,
			Data:            bytes.NewReader(config),
		},
	})
	if err != nil {
		return fmt.Errorf("flv: failed to write AVC sequence header: %w", err)
	}
	return nil
}

func (m *FLVMuxer) writeAudioSequenceHeader() error {
	err := m.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeAudio,
		Timestamp: 0,
		Data: &flvtag.AudioData{
			SoundFormat:   flvtag.SoundFormatAAC,
			SoundRate:     flvtag.SoundRate44kHz,
			SoundSize:     flvtag.SoundSize16Bit,
			SoundType:     flvtag.SoundTypeStereo,
			AACPacketType: flvtag.AACPacketTypeSequenceHeader,
			Data:          bytes.NewReader(m.audio.CodecData),
		},
	})
	if err != nil {
		return fmt.Errorf("flv: failed to write AAC sequence header: %w", err)
	}
	return nil
}

func (m *FLVMuxer) WritePacket(pkt *Packet) error {
	if !m.headerDone {
		return fmt.Errorf("flv: WritePacket before WriteHeader")
	}
	if m.trailerDone {
		return fmt.Errorf("flv: WritePacket after WriteTrailer")
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return fmt.Errorf("flv: packet for unknown stream %d", pkt.StreamIndex)
	}
	if !pkt.TimeBase.IsValid() {
		return fmt.Errorf("flv: packet without a time base")
	}
	desc := m.streams[pkt.StreamIndex]

	dts := RescaleQ(pkt.DTS, pkt.TimeBase, desc.TimeBase)
	pts := RescaleQ(pkt.PTS, pkt.TimeBase, desc.TimeBase)
	if dts < 0 {
		return fmt.Errorf("flv: negative dts %dms on stream %d", dts, pkt.StreamIndex)
	}
	if last := m.lastDTS[pkt.StreamIndex]; last != NoPTS && dts < last {
		return fmt.Errorf("flv: dts went backwards on stream %d: %dms after %dms",
			pkt.StreamIndex, dts, last)
	}
	m.lastDTS[pkt.StreamIndex] = dts

	switch desc.Kind {
	case StreamKindVideo:
		return m.writeVideoPacket(pkt, dts, pts)
	case StreamKindAudio:
		return m.writeAudioPacket(pkt, dts)
	}
	return fmt.Errorf("flv: unsupported stream kind %d", desc.Kind)
}

func (m *FLVMuxer) writeVideoPacket(pkt *Packet, dts, pts int64) error {
	body := AnnexBToAVCC(pkt.Data)
	if len(body) == 0 {
		return fmt.Errorf("flv: no NAL units in video packet at dts %dms", dts)
	}
	frameType := flvtag.FrameTypeInterFrame
	if pkt.Key {
		frameType = flvtag.FrameTypeKeyFrame
	}
	m.lastVideoDTS = dts

	err := m.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeVideo,
		Timestamp: uint32(dts),
		Data: &flvtag.VideoData{
			FrameType:       frameType,
			CodecID:         flvtag.CodecIDAVC,
			AVCPacketType:   flvtag.AVCPacketTypeNALU,
			CompositionTime: int32(pts - dts),
			Data:            bytes.NewReader(body),
		},
	})
	if err != nil {
		return fmt.Errorf("flv: failed to write video tag: %w", err)
	}
	return nil
}

func (m *FLVMuxer) writeAudioPacket(pkt *Packet, dts int64) error {
	err := m.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeAudio,
		Timestamp: uint32(dts),
		Data: &flvtag.AudioData{
			SoundFormat:   flvtag.SoundFormatAAC,
			SoundRate:     flvtag.SoundRate44kHz,
			SoundSize:     flvtag.SoundSize16Bit,
			SoundType:     flvtag.SoundTypeStereo,
			AACPacketType: flvtag.AACPacketTypeRaw,
			Data:          bytes.NewReader(pkt.Data),
		},
	})
	if err != nil {
		return fmt.Errorf("flv: failed to write audio tag: %w", err)
	}
	return nil
}

// WriteTrailer ends the stream. With a video stream present it emits
// the AVC end-of-sequence tag players use to stop cleanly.
func (m *FLVMuxer) WriteTrailer() error {
	if !m.headerDone {
		return fmt.Errorf("flv: WriteTrailer before WriteHeader")
	}
	if m.trailerDone {
		return nil
	}
	if m.video != nil {
		err := m.enc.Encode(&flvtag.FlvTag{
			TagType:   flvtag.TagTypeVideo,
			Timestamp: uint32(m.lastVideoDTS),
			Data: &flvtag.VideoData{
				FrameType:       flvtag.FrameTypeKeyFrame,
				CodecID:         flvtag.CodecIDAVC,
				AVCPacketType:   flvtag.AVCPacketTypeEOS,
				CompositionTime: 0,
				Data:            bytes.NewReader(nil),
			},
		})
		if err != nil {
			return fmt.Errorf("flv: failed to write end of sequence: %w", err)
		}
	}
	m.trailerDone = true
	return nil
}
