package avtk

import "testing"

// =============================================================================
// DetectVideoCodec Tests
// =============================================================================

func TestDetectVideoCodec_H264AnnexB(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected VideoCodec
	}{
		{
			name:     "H264 4-byte start code with SPS",
			data:     []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1e}, // NAL type 7 = SPS
			expected: VideoCodecH264,
		},
		{
			name:     "H264 4-byte start code with PPS",
			data:     []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0x00, 0x00, 0x00}, // NAL type 8 = PPS
			expected: VideoCodecH264,
		},
		{
			name:     "H264 4-byte start code with IDR",
			data:     []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x00, 0x00, 0x00}, // NAL type 5 = IDR
			expected: VideoCodecH264,
		},
		{
			name:     "H264 3-byte start code with slice",
			data:     []byte{0x00, 0x00, 0x01, 0x41, 0x00, 0x00, 0x00, 0x00}, // NAL type 1 = non-IDR
			expected: VideoCodecH264,
		},
		{
			name:     "H264 3-byte start code with SEI",
			data:     []byte{0x00, 0x00, 0x01, 0x06, 0x00, 0x00, 0x00, 0x00}, // NAL type 6 = SEI
			expected: VideoCodecH264,
		},
		{
			name:     "start code with reserved NAL type",
			data:     []byte{0x00, 0x00, 0x00, 0x01, 0x1E, 0x00, 0x00, 0x00}, // NAL type 30
			expected: VideoCodecUnknown,
		},
		{
			name:     "too short",
			data:     []byte{0x00, 0x00, 0x01},
			expected: VideoCodecUnknown,
		},
		{
			name:     "garbage",
			data:     []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00},
			expected: VideoCodecUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectVideoCodec(tt.data)
			if got != tt.expected {
				t.Errorf("DetectVideoCodec() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDetectVideoCodec_H264AVCC(t *testing.T) {
	// AVCC format: 4-byte length prefix followed by NAL data
	tests := []struct {
		name     string
		data     []byte
		expected VideoCodec
	}{
		{
			name:     "H264 AVCC format",
			data:     []byte{0x00, 0x00, 0x00, 0x04, 0x65, 0x00, 0x00, 0x00},
			expected: VideoCodecH264,
		},
		{
			name:     "AVCC length exceeds buffer",
			data:     []byte{0x00, 0x00, 0xFF, 0x00, 0x65, 0x00, 0x00, 0x00},
			expected: VideoCodecUnknown,
		},
		{
			name:     "AVCC forbidden bit set",
			data:     []byte{0x00, 0x00, 0x00, 0x04, 0xE5, 0x00, 0x00, 0x00},
			expected: VideoCodecUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectVideoCodec(tt.data)
			if got != tt.expected {
				t.Errorf("DetectVideoCodec() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// =============================================================================
// DetectAudioCodec Tests
// =============================================================================

func TestDetectAudioCodec(t *testing.T) {
	adts, err := ADTSHeader(48000, 2, 100)
	if err != nil {
		t.Fatalf("ADTSHeader: %v", err)
	}

	tests := []struct {
		name     string
		data     []byte
		expected AudioCodec
	}{
		{
			name:     "ADTS header",
			data:     adts,
			expected: AudioCodecAAC,
		},
		{
			name:     "MP3 syncword rejected by layer bits",
			data:     []byte{0xFF, 0xFB, 0x90, 0x00, 0x00, 0x00, 0x00}, // layer III
			expected: AudioCodecUnknown,
		},
		{
			name:     "reserved frequency index",
			data:     []byte{0xFF, 0xF1, 0x74, 0x80, 0x19, 0xFF, 0xFC}, // index 13
			expected: AudioCodecUnknown,
		},
		{
			name:     "too short",
			data:     []byte{0xFF, 0xF1},
			expected: AudioCodecUnknown,
		},
		{
			name:     "raw pcm",
			data:     []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
			expected: AudioCodecUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectAudioCodec(tt.data)
			if got != tt.expected {
				t.Errorf("DetectAudioCodec() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// =============================================================================
// DetectFLV Tests
// =============================================================================

func TestDetectFLV(t *testing.T) {
	if !DetectFLV([]byte{'F', 'L', 'V', 1, 0x05, 0, 0, 0, 9}) {
		t.Error("FLV header not detected")
	}
	if DetectFLV([]byte{'F', 'L', 'V', 9}) {
		t.Error("unknown FLV version accepted")
	}
	if DetectFLV([]byte{'F', 'L'}) {
		t.Error("short buffer accepted")
	}
	if DetectFLV([]byte("MOOV")) {
		t.Error("non-FLV signature accepted")
	}
}
