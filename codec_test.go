package avtk

import (
	"errors"
	"testing"
)

func TestVideoCodec_String(t *testing.T) {
	tests := []struct {
		codec VideoCodec
		want  string
	}{
		{VideoCodecH264, "H264"},
		{VideoCodecUnknown, "Unknown"},
		{VideoCodec(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.codec.String(); got != tt.want {
				t.Errorf("VideoCodec.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideoCodec_MimeType(t *testing.T) {
	tests := []struct {
		codec VideoCodec
		want  string
	}{
		{VideoCodecH264, "video/H264"},
		{VideoCodecUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.MimeType(); got != tt.want {
				t.Errorf("VideoCodec.MimeType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideoCodec_ClockRate(t *testing.T) {
	if got := VideoCodecH264.ClockRate(); got != 90000 {
		t.Errorf("VideoCodec.ClockRate() = %v, want 90000", got)
	}
}

func TestVideoCodec_DefaultPayloadType(t *testing.T) {
	if got := VideoCodecH264.DefaultPayloadType(); got != 96 {
		t.Errorf("VideoCodec.DefaultPayloadType() = %v, want 96", got)
	}
}

func TestAudioCodec_String(t *testing.T) {
	tests := []struct {
		codec AudioCodec
		want  string
	}{
		{AudioCodecAAC, "AAC"},
		{AudioCodecUnknown, "Unknown"},
		{AudioCodec(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.codec.String(); got != tt.want {
				t.Errorf("AudioCodec.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStreamKind_String(t *testing.T) {
	tests := []struct {
		kind StreamKind
		want string
	}{
		{StreamKindVideo, "video"},
		{StreamKindAudio, "audio"},
		{StreamKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("StreamKind.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEncoder_UnknownCodec(t *testing.T) {
	_, err := NewVideoEncoder(VideoEncoderConfig{Codec: VideoCodec(99)})
	if !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("NewVideoEncoder error = %v, want ErrCodecNotSupported", err)
	}

	_, err = NewAudioEncoder(AudioEncoderConfig{Codec: AudioCodec(99)})
	if !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("NewAudioEncoder error = %v, want ErrCodecNotSupported", err)
	}

	_, err = NewVideoDecoder(VideoCodec(99))
	if !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("NewVideoDecoder error = %v, want ErrCodecNotSupported", err)
	}

	_, err = NewAudioDecoder(AudioCodec(99))
	if !errors.Is(err, ErrCodecNotSupported) {
		t.Errorf("NewAudioDecoder error = %v, want ErrCodecNotSupported", err)
	}
}

func TestVideoEncoderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  VideoEncoderConfig
		wantErr bool
	}{
		{"valid", DefaultVideoEncoderConfig(VideoCodecH264, 640, 360, 25), false},
		{"odd width", DefaultVideoEncoderConfig(VideoCodecH264, 641, 360, 25), true},
		{"zero height", DefaultVideoEncoderConfig(VideoCodecH264, 640, 0, 25), true},
		{"zero fps", DefaultVideoEncoderConfig(VideoCodecH264, 640, 360, 0), true},
		{
			"zero bitrate",
			VideoEncoderConfig{Codec: VideoCodecH264, Width: 640, Height: 360, FPS: 25},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAudioEncoderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AudioEncoderConfig
		wantErr bool
	}{
		{"valid", DefaultAudioEncoderConfig(AudioCodecAAC), false},
		{"zero rate", AudioEncoderConfig{Channels: 2, BitrateBps: 128_000}, true},
		{"five channels", AudioEncoderConfig{SampleRate: 48000, Channels: 5, BitrateBps: 128_000}, true},
		{"zero bitrate", AudioEncoderConfig{SampleRate: 48000, Channels: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncoderConfig_TimeBase(t *testing.T) {
	v := DefaultVideoEncoderConfig(VideoCodecH264, 640, 360, 25)
	if got := v.TimeBase(); got != R(1, 25) {
		t.Errorf("video TimeBase() = %v, want 1/25", got)
	}

	a := DefaultAudioEncoderConfig(AudioCodecAAC)
	if got := a.TimeBase(); got != R(1, 48000) {
		t.Errorf("audio TimeBase() = %v, want 1/48000", got)
	}
}
