package avtk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	flvtag "github.com/yutopp/go-flv/tag"
)

// VideoStreamInfo summarizes the video stream found by ProbeFLV.
type VideoStreamInfo struct {
	Codec     VideoCodec
	Width     int // from onMetaData, 0 when absent
	Height    int
	FPS       float64
	SPS       []byte
	PPS       []byte
	Tags      int // data tags, sequence header excluded
	Keyframes int
	FirstDTS  int64 // milliseconds
	LastDTS   int64
	SawEOS    bool
}

// AudioStreamInfo summarizes the audio stream found by ProbeFLV.
type AudioStreamInfo struct {
	Codec      AudioCodec
	SampleRate int // from the AudioSpecificConfig
	Channels   int
	CodecData  []byte
	Tags       int
	FirstDTS   int64
	LastDTS    int64
}

// FLVInfo is the result of walking a whole FLV stream.
type FLVInfo struct {
	Version   int
	HasVideo  bool // declared in the file header
	HasAudio  bool
	Metadata  map[string]interface{}
	Video     *VideoStreamInfo
	Audio     *AudioStreamInfo
	TagCount  int
	DataBytes int64
}

// Duration returns the extent of the longest stream.
func (info *FLVInfo) Duration() time.Duration {
	var last int64
	if info.Video != nil && info.Video.LastDTS > last {
		last = info.Video.LastDTS
	}
	if info.Audio != nil && info.Audio.LastDTS > last {
		last = info.Audio.LastDTS
	}
	return time.Duration(last) * time.Millisecond
}

// FormatDuration renders a duration as h:mm:ss.mmm.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%d:%02d:%02d.%03d",
		ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// ProbeFLV walks every tag of an FLV stream and reports what it
// carries. The tag framing is validated directly, including the
// back-pointer sizes the usual decoders skip over.
func ProbeFLV(r io.Reader) (*FLVInfo, error) {
	var header [9]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("flv header: %w", err)
	}
	if header[0] != 'F' || header[1] != 'L' || header[2] != 'V' {
		return nil, fmt.Errorf("not an flv stream (signature %q)", header[:3])
	}
	info := &FLVInfo{
		Version:  int(header[3]),
		HasAudio: header[4]&0x04 != 0,
		HasVideo: header[4]&0x01 != 0,
	}
	dataOffset := binary.BigEndian.Uint32(header[5:9])
	if dataOffset < 9 {
		return nil, fmt.Errorf("flv data offset %d inside the header", dataOffset)
	}
	if skip := int64(dataOffset) - 9; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("flv header padding: %w", err)
		}
	}

	var prevSize [4]byte
	if _, err := io.ReadFull(r, prevSize[:]); err != nil {
		return nil, fmt.Errorf("first back-pointer: %w", err)
	}
	if got := binary.BigEndian.Uint32(prevSize[:]); got != 0 {
		return nil, fmt.Errorf("first back-pointer is %d, want 0", got)
	}

	var tagHeader [11]byte
	for {
		_, err := io.ReadFull(r, tagHeader[:])
		if err == io.EOF {
			return info, nil
		}
		if err != nil {
			return nil, fmt.Errorf("tag %d header: %w", info.TagCount, err)
		}

		tagType := tagHeader[0]
		dataSize := int(tagHeader[1])<<16 | int(tagHeader[2])<<8 | int(tagHeader[3])
		timestamp := int64(tagHeader[4])<<16 | int64(tagHeader[5])<<8 | int64(tagHeader[6])
		timestamp |= int64(tagHeader[7]) << 24

		body := make([]byte, dataSize)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("tag %d body: %w", info.TagCount, err)
		}

		if err := probeTag(info, tagType, timestamp, body); err != nil {
			return nil, fmt.Errorf("tag %d: %w", info.TagCount, err)
		}
		info.TagCount++
		info.DataBytes += int64(dataSize)

		if _, err := io.ReadFull(r, prevSize[:]); err != nil {
			return nil, fmt.Errorf("tag %d back-pointer: %w", info.TagCount-1, err)
		}
		if got := binary.BigEndian.Uint32(prevSize[:]); got != uint32(11+dataSize) {
			return nil, fmt.Errorf("tag %d back-pointer is %d, want %d",
				info.TagCount-1, got, 11+dataSize)
		}
	}
}

func probeTag(info *FLVInfo, tagType byte, timestamp int64, body []byte) error {
	switch flvtag.TagType(tagType) {
	case flvtag.TagTypeVideo:
		return probeVideoTag(info, timestamp, body)
	case flvtag.TagTypeAudio:
		return probeAudioTag(info, timestamp, body)
	case flvtag.TagTypeScriptData:
		return probeScriptTag(info, body)
	default:
		return fmt.Errorf("unknown tag type %d", tagType)
	}
}

func probeVideoTag(info *FLVInfo, timestamp int64, body []byte) error {
	var vd flvtag.VideoData
	if err := flvtag.DecodeVideoData(bytes.NewReader(body), &vd); err != nil {
		return fmt.Errorf("video tag: %w", err)
	}
	if vd.CodecID != flvtag.CodecIDAVC {
		return fmt.Errorf("unsupported video codec id %d", vd.CodecID)
	}
	if info.Video == nil {
		info.Video = &VideoStreamInfo{Codec: VideoCodecH264, FirstDTS: -1}
	}
	v := info.Video

	payload, err := io.ReadAll(vd.Data)
	if err != nil {
		return fmt.Errorf("video tag payload: %w", err)
	}

	switch vd.AVCPacketType {
	case flvtag.AVCPacketTypeSequenceHeader:
		sps, pps, err := ParseAVCDecoderConfig(payload)
		if err != nil {
			return fmt.Errorf("avc sequence header: %w", err)
		}
		v.SPS, v.PPS = sps, pps
	case flvtag.AVCPacketTypeNALU:
		v.Tags++
		if vd.FrameType == flvtag.FrameTypeKeyFrame {
			v.Keyframes++
		}
		if v.FirstDTS < 0 {
			v.FirstDTS = timestamp
		}
		v.LastDTS = timestamp
	case flvtag.AVCPacketTypeEOS:
		v.SawEOS = true
	default:
		return fmt.Errorf("unknown avc packet type %d", vd.AVCPacketType)
	}
	return nil
}

func probeAudioTag(info *FLVInfo, timestamp int64, body []byte) error {
	var ad flvtag.AudioData
	if err := flvtag.DecodeAudioData(bytes.NewReader(body), &ad); err != nil {
		return fmt.Errorf("audio tag: %w", err)
	}
	if ad.SoundFormat != flvtag.SoundFormatAAC {
		return fmt.Errorf("unsupported sound format %d", ad.SoundFormat)
	}
	if info.Audio == nil {
		info.Audio = &AudioStreamInfo{Codec: AudioCodecAAC, FirstDTS: -1}
	}
	a := info.Audio

	payload, err := io.ReadAll(ad.Data)
	if err != nil {
		return fmt.Errorf("audio tag payload: %w", err)
	}

	switch ad.AACPacketType {
	case flvtag.AACPacketTypeSequenceHeader:
		rate, channels, err := ParseAudioSpecificConfig(payload)
		if err != nil {
			return fmt.Errorf("audio specific config: %w", err)
		}
		a.CodecData = payload
		a.SampleRate = rate
		a.Channels = channels
	case flvtag.AACPacketTypeRaw:
		a.Tags++
		if a.FirstDTS < 0 {
			a.FirstDTS = timestamp
		}
		a.LastDTS = timestamp
	default:
		return fmt.Errorf("unknown aac packet type %d", ad.AACPacketType)
	}
	return nil
}

func probeScriptTag(info *FLVInfo, body []byte) error {
	var sd flvtag.ScriptData
	if err := flvtag.DecodeScriptData(bytes.NewReader(body), &sd); err != nil {
		return fmt.Errorf("script tag: %w", err)
	}
	meta, ok := sd.Objects["onMetaData"]
	if !ok {
		return nil
	}

	fields := map[string]interface{}(meta)
	info.Metadata = fields

	w, hasW := metaNumber(fields, "width")
	h, hasH := metaNumber(fields, "height")
	f, hasF := metaNumber(fields, "framerate")
	if hasW || hasH || hasF {
		if info.Video == nil {
			info.Video = &VideoStreamInfo{Codec: VideoCodecH264, FirstDTS: -1}
		}
		info.Video.Width = int(w)
		info.Video.Height = int(h)
		info.Video.FPS = f
	}
	return nil
}

func metaNumber(fields map[string]interface{}, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
