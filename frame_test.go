package avtk

import (
	"bytes"
	"testing"
)

func TestPixelFormat_String(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
	}{
		{PixelFormatI420, "I420"},
		{PixelFormatNV12, "NV12"},
		{PixelFormat(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("PixelFormat.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAudioFormat_BytesPerSample(t *testing.T) {
	tests := []struct {
		format AudioFormat
		want   int
	}{
		{AudioFormatS16, 2},
		{AudioFormatF32, 4},
		{AudioFormat(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.BytesPerSample(); got != tt.want {
				t.Errorf("AudioFormat.BytesPerSample() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewVideoFrame_I420(t *testing.T) {
	f := NewVideoFrame(640, 360, PixelFormatI420)

	if len(f.Data) != 3 {
		t.Fatalf("plane count = %d, want 3", len(f.Data))
	}
	if len(f.Data[0]) != 640*360 {
		t.Errorf("Y plane size = %d, want %d", len(f.Data[0]), 640*360)
	}
	if len(f.Data[1]) != 320*180 || len(f.Data[2]) != 320*180 {
		t.Errorf("chroma plane sizes = %d, %d, want %d", len(f.Data[1]), len(f.Data[2]), 320*180)
	}
	if f.Stride[0] != 640 || f.Stride[1] != 320 || f.Stride[2] != 320 {
		t.Errorf("strides = %v, want [640 320 320]", f.Stride)
	}
}

func TestNewVideoFrameAligned(t *testing.T) {
	f := NewVideoFrameAligned(100, 50, PixelFormatI420, 32)

	if f.Stride[0] != 128 {
		t.Errorf("Y stride = %d, want 128", f.Stride[0])
	}
	if f.Stride[1] != 64 {
		t.Errorf("U stride = %d, want 64", f.Stride[1])
	}
	if len(f.Data[0]) != 128*50 {
		t.Errorf("Y plane size = %d, want %d", len(f.Data[0]), 128*50)
	}
}

func TestVideoFrame_Packed(t *testing.T) {
	// Aligned strides must not leak padding into the packed output.
	f := NewVideoFrameAligned(4, 2, PixelFormatI420, 16)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			f.Data[0][y*f.Stride[0]+x] = byte(10*y + x)
		}
	}
	f.Data[1][0], f.Data[1][1] = 100, 101
	f.Data[2][0], f.Data[2][1] = 200, 201

	got := f.Packed()
	want := []byte{0, 1, 2, 3, 10, 11, 12, 13, 100, 101, 200, 201}
	if !bytes.Equal(got, want) {
		t.Errorf("Packed() = %v, want %v", got, want)
	}
	if len(got) != I420Size(4, 2) {
		t.Errorf("Packed() length = %d, want %d", len(got), I420Size(4, 2))
	}
}

func TestVideoFrame_Clone(t *testing.T) {
	f := NewVideoFrame(4, 2, PixelFormatI420)
	f.Data[0][0] = 42
	f.PTS = 7

	c := f.Clone()
	if c.Data[0][0] != 42 || c.PTS != 7 {
		t.Fatalf("clone did not copy contents")
	}

	c.Data[0][0] = 1
	if f.Data[0][0] != 42 {
		t.Errorf("clone shares plane memory with the original")
	}
}

func TestI420Size(t *testing.T) {
	tests := []struct {
		w, h, want int
	}{
		{640, 360, 345600},
		{2, 2, 6},
		{6, 4, 36},
	}

	for _, tt := range tests {
		if got := I420Size(tt.w, tt.h); got != tt.want {
			t.Errorf("I420Size(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestNewAudioSamples(t *testing.T) {
	s := NewAudioSamples(1024, 48000, 2, AudioFormatS16)

	if len(s.Data) != 1024*2*2 {
		t.Errorf("Data length = %d, want %d", len(s.Data), 1024*2*2)
	}
	if s.SampleCount != 1024 || s.SampleRate != 48000 || s.Channels != 2 {
		t.Errorf("metadata = %d/%d/%d, want 1024/48000/2", s.SampleCount, s.SampleRate, s.Channels)
	}
}

func TestAudioSamples_Clone(t *testing.T) {
	s := NewAudioSamples(4, 48000, 1, AudioFormatS16)
	s.Data[0] = 9

	c := s.Clone()
	c.Data[0] = 1
	if s.Data[0] != 9 {
		t.Errorf("clone shares sample memory with the original")
	}
}

func TestValidateDimensions(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		wantErr bool
	}{
		{"valid", 640, 360, false},
		{"zero width", 0, 360, true},
		{"negative height", 640, -2, true},
		{"odd width", 641, 360, true},
		{"odd height", 640, 361, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDimensions(tt.w, tt.h)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateDimensions(%d, %d) error = %v, wantErr %v",
					tt.w, tt.h, err, tt.wantErr)
			}
		})
	}
}
