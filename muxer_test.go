package avtk

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func testStreams(t *testing.T) (video, audio *StreamDesc) {
	t.Helper()
	asc, err := AudioSpecificConfig(48000, 2)
	if err != nil {
		t.Fatalf("AudioSpecificConfig: %v", err)
	}
	video = &StreamDesc{
		Kind:       StreamKindVideo,
		VideoCodec: VideoCodecH264,
		Width:      640,
		Height:     360,
		FPS:        25,
		SPS:        testSPS,
		PPS:        testPPS,
		BitrateBps: 1_000_000,
	}
	audio = &StreamDesc{
		Kind:       StreamKindAudio,
		AudioCodec: AudioCodecAAC,
		SampleRate: 48000,
		Channels:   2,
		CodecData:  asc,
		BitrateBps: 128_000,
	}
	return video, audio
}

func videoPacket(stream int, pts int64, key bool) *Packet {
	nal := sliceNAL(NALTypeSlice, true, 0x11, 0x22)
	if key {
		nal = sliceNAL(NALTypeIDR, true, 0x11, 0x22)
	}
	return &Packet{
		Data:        append([]byte{0, 0, 0, 1}, nal...),
		PTS:         pts,
		DTS:         pts,
		Duration:    1,
		TimeBase:    R(1, 25),
		StreamIndex: stream,
		Key:         key,
	}
}

func audioPacket(stream int, pts int64) *Packet {
	return &Packet{
		Data:        []byte{0x21, 0x10, 0x05},
		PTS:         pts,
		DTS:         pts,
		Duration:    1024,
		TimeBase:    R(1, 48000),
		StreamIndex: stream,
		Key:         true,
	}
}

func TestFLVMuxerRoundTrip(t *testing.T) {
	video, audio := testStreams(t)

	var out bytes.Buffer
	m := NewFLVMuxer(&out)
	if err := m.WriteHeader([]*StreamDesc{video, audio}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if video.Index != 0 || audio.Index != 1 {
		t.Fatalf("stream indexes = %d, %d, want 0, 1", video.Index, audio.Index)
	}
	if video.TimeBase != R(1, 1000) || audio.TimeBase != R(1, 1000) {
		t.Fatalf("stream time bases = %v, %v, want 1/1000", video.TimeBase, audio.TimeBase)
	}

	// 5 video frames at 25fps interleaved with 5 audio frames at
	// 1024/48000s each.
	for i := 0; i < 5; i++ {
		if err := m.WritePacket(videoPacket(0, int64(i), i == 0)); err != nil {
			t.Fatalf("video WritePacket(%d): %v", i, err)
		}
		if err := m.WritePacket(audioPacket(1, int64(i)*1024)); err != nil {
			t.Fatalf("audio WritePacket(%d): %v", i, err)
		}
	}
	if err := m.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}

	raw := out.Bytes()
	if len(raw) < 9 || raw[0] != 'F' || raw[1] != 'L' || raw[2] != 'V' {
		t.Fatalf("output does not start with an FLV signature: % x", raw[:9])
	}
	if raw[4]&0x05 != 0x05 {
		t.Errorf("header flags = 0x%02x, want audio and video set", raw[4])
	}

	info, err := ProbeFLV(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ProbeFLV: %v", err)
	}
	if !info.HasVideo || !info.HasAudio {
		t.Errorf("probe flags: video %v audio %v, want both", info.HasVideo, info.HasAudio)
	}
	if info.Video == nil || info.Audio == nil {
		t.Fatal("probe found no streams")
	}
	if info.Video.Tags != 5 {
		t.Errorf("video tags = %d, want 5", info.Video.Tags)
	}
	if info.Video.Keyframes != 1 {
		t.Errorf("video keyframes = %d, want 1", info.Video.Keyframes)
	}
	if !info.Video.SawEOS {
		t.Error("trailer did not produce an AVC end-of-sequence tag")
	}
	if info.Audio.Tags != 5 {
		t.Errorf("audio tags = %d, want 5", info.Audio.Tags)
	}
	if info.Audio.SampleRate != 48000 || info.Audio.Channels != 2 {
		t.Errorf("audio config = %dHz %dch, want 48000Hz 2ch",
			info.Audio.SampleRate, info.Audio.Channels)
	}
	if !bytes.Equal(info.Video.SPS, testSPS) || !bytes.Equal(info.Video.PPS, testPPS) {
		t.Error("parameter sets did not survive the sequence header round trip")
	}

	// 4 frames of 40ms: the last video tag lands at 160ms.
	if info.Video.FirstDTS != 0 || info.Video.LastDTS != 160 {
		t.Errorf("video dts range = [%d, %d]ms, want [0, 160]ms",
			info.Video.FirstDTS, info.Video.LastDTS)
	}
	// 4 blocks of 1024/48000s rescaled to ms: 4096000/48000 = 85ms.
	if info.Audio.LastDTS != 85 {
		t.Errorf("audio last dts = %dms, want 85ms", info.Audio.LastDTS)
	}

	if w, _ := metaNumber(info.Metadata, "width"); int(w) != 640 {
		t.Errorf("onMetaData width = %v, want 640", w)
	}
	if rate, _ := metaNumber(info.Metadata, "audiosamplerate"); int(rate) != 48000 {
		t.Errorf("onMetaData audiosamplerate = %v, want 48000", rate)
	}
}

func TestFLVMuxerRejectsBackwardsDTS(t *testing.T) {
	video, _ := testStreams(t)

	m := NewFLVMuxer(&bytes.Buffer{})
	if err := m.WriteHeader([]*StreamDesc{video}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := m.WritePacket(videoPacket(0, 10, true)); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	err := m.WritePacket(videoPacket(0, 9, false))
	if err == nil {
		t.Fatal("WritePacket accepted a backwards dts")
	}
	if !strings.Contains(err.Error(), "backwards") {
		t.Errorf("error = %v, want mention of backwards dts", err)
	}
}

func TestFLVMuxerEqualDTSAllowed(t *testing.T) {
	video, _ := testStreams(t)

	m := NewFLVMuxer(&bytes.Buffer{})
	if err := m.WriteHeader([]*StreamDesc{video}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	// 1/50 and 2/50 both rescale to 0ms at 25fps granularity below the
	// millisecond; non-decreasing, so both must be accepted.
	pkt := videoPacket(0, 0, true)
	pkt.TimeBase = R(1, 50000)
	if err := m.WritePacket(pkt); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	pkt2 := videoPacket(0, 1, false)
	pkt2.TimeBase = R(1, 50000)
	if err := m.WritePacket(pkt2); err != nil {
		t.Errorf("WritePacket rejected an equal dts: %v", err)
	}
}

func TestFLVMuxerValidation(t *testing.T) {
	video, audio := testStreams(t)

	t.Run("packet before header", func(t *testing.T) {
		m := NewFLVMuxer(&bytes.Buffer{})
		if err := m.WritePacket(videoPacket(0, 0, true)); err == nil {
			t.Error("WritePacket before WriteHeader did not fail")
		}
	})

	t.Run("no streams", func(t *testing.T) {
		m := NewFLVMuxer(&bytes.Buffer{})
		if err := m.WriteHeader(nil); err == nil {
			t.Error("WriteHeader with no streams did not fail")
		}
	})

	t.Run("two video streams", func(t *testing.T) {
		m := NewFLVMuxer(&bytes.Buffer{})
		second := *video
		if err := m.WriteHeader([]*StreamDesc{video, &second}); err == nil {
			t.Error("WriteHeader with two video streams did not fail")
		}
	})

	t.Run("video without parameter sets", func(t *testing.T) {
		m := NewFLVMuxer(&bytes.Buffer{})
		bare := *video
		bare.SPS = nil
		if err := m.WriteHeader([]*StreamDesc{&bare}); err == nil {
			t.Error("WriteHeader without SPS did not fail")
		}
	})

	t.Run("unknown stream index", func(t *testing.T) {
		m := NewFLVMuxer(&bytes.Buffer{})
		if err := m.WriteHeader([]*StreamDesc{video, audio}); err != nil {
			t.Fatal(err)
		}
		if err := m.WritePacket(videoPacket(7, 0, true)); err == nil {
			t.Error("WritePacket for an unknown stream did not fail")
		}
	})

	t.Run("double trailer", func(t *testing.T) {
		m := NewFLVMuxer(&bytes.Buffer{})
		if err := m.WriteHeader([]*StreamDesc{video, audio}); err != nil {
			t.Fatal(err)
		}
		if err := m.WriteTrailer(); err != nil {
			t.Fatalf("WriteTrailer: %v", err)
		}
		if err := m.WriteTrailer(); err != nil {
			t.Errorf("second WriteTrailer: %v", err)
		}
		if err := m.WritePacket(videoPacket(0, 0, true)); err == nil {
			t.Error("WritePacket after WriteTrailer did not fail")
		}
	})
}

func TestSessionToFLVFile(t *testing.T) {
	// Full pipeline against the real muxer with stub codecs: one
	// second of video and audio must interleave into a parseable file.
	video := NewVideoEncodePipeline(
		&mockVideoSource{frames: -1},
		&mockVideoEncoder{config: DefaultVideoEncoderConfig(VideoCodecH264, 64, 64, 25)},
		time.Second,
	)
	audio := NewAudioEncodePipeline(
		NewSineAudioSource(DefaultSineAudioConfig()),
		&mockAudioEncoder{config: DefaultAudioEncoderConfig(AudioCodecAAC)},
		time.Second,
	)

	var out bytes.Buffer
	session, err := NewSession(NewFLVMuxer(&out), video, audio)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	info, err := ProbeFLV(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("ProbeFLV: %v", err)
	}
	if info.Video == nil || info.Audio == nil {
		t.Fatal("probe found no streams")
	}
	if info.Video.Tags != 25 {
		t.Errorf("video tags = %d, want 25", info.Video.Tags)
	}
	if info.Audio.Tags != 47 {
		t.Errorf("audio tags = %d, want 47", info.Audio.Tags)
	}
	if !info.Video.SawEOS {
		t.Error("missing end-of-sequence tag")
	}
}
