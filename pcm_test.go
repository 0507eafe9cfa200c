package avtk

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestPlanarPackedRoundTrip(t *testing.T) {
	// Two channels of s16, recognizable per-channel values.
	left := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	right := []byte{10, 0, 20, 0, 30, 0, 40, 0}

	packed := PlanarToPacked([][]byte{left, right}, 2)
	want := []byte{1, 0, 10, 0, 2, 0, 20, 0, 3, 0, 30, 0, 4, 0, 40, 0}
	if !bytes.Equal(packed, want) {
		t.Fatalf("PlanarToPacked = % x, want % x", packed, want)
	}

	planes := PackedToPlanar(packed, 2, 2)
	if len(planes) != 2 {
		t.Fatalf("PackedToPlanar returned %d planes, want 2", len(planes))
	}
	if !bytes.Equal(planes[0], left) || !bytes.Equal(planes[1], right) {
		t.Errorf("round trip lost data: %x / %x", planes[0], planes[1])
	}
}

func TestPlanarPackedF32(t *testing.T) {
	mkPlane := func(vals ...float32) []byte {
		out := make([]byte, 4*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out
	}
	in := [][]byte{mkPlane(0.25, -0.5), mkPlane(0.75, 1.0)}
	got := PackedToPlanar(PlanarToPacked(in, 4), 2, 4)
	for ch := range in {
		if !bytes.Equal(got[ch], in[ch]) {
			t.Errorf("channel %d round trip mismatch", ch)
		}
	}
}

func TestF32S16Conversion(t *testing.T) {
	f32 := func(vals ...float32) []byte {
		out := make([]byte, 4*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out
	}
	s16 := F32ToS16(f32(0, 1, -1, 0.5, 2.0, -3.0))
	want := []int16{0, 32767, -32767, 16383, 32767, -32767}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(s16[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}

	// s16 -> f32 -> s16 stays within one step of the input; the
	// extremes survive exactly.
	vals := []int16{0, 1, -1, 32767, -32767, 12345, -12345, 256}
	src := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(src[i*2:], uint16(v))
	}
	back := F32ToS16(S16ToF32(src))
	for i, v := range vals {
		got := int16(binary.LittleEndian.Uint16(back[i*2:]))
		diff := int(got) - int(v)
		if diff < -1 || diff > 1 {
			t.Errorf("round trip of %d drifted to %d", v, got)
		}
		exact := v == 0 || v == 32767 || v == -32767
		if exact && got != v {
			t.Errorf("round trip of %d = %d, want exact", v, got)
		}
	}
}

func TestSineSweep(t *testing.T) {
	const rate = 48000
	sw := NewSineSweep(110, rate)
	buf := make([]byte, 1024*2*2)
	sw.FillS16(buf, 1024, 2)

	// First sample is sin(0) = 0 on both channels.
	if v := int16(binary.LittleEndian.Uint16(buf)); v != 0 {
		t.Errorf("first sample = %d, want 0", v)
	}
	var nonZero bool
	for i := 0; i < 1024; i++ {
		l := int16(binary.LittleEndian.Uint16(buf[i*4:]))
		r := int16(binary.LittleEndian.Uint16(buf[i*4+2:]))
		if l != r {
			t.Fatalf("sample %d: channels differ (%d vs %d)", i, l, r)
		}
		if l > 10000 || l < -10000 {
			t.Fatalf("sample %d = %d exceeds amplitude bound", i, l)
		}
		if l != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("sweep generated silence")
	}

	// Two generators with identical parameters produce identical output.
	sw2 := NewSineSweep(110, rate)
	buf2 := make([]byte, 1024*2*2)
	sw2.FillS16(buf2, 1024, 2)
	sw3 := NewSineSweep(110, rate)
	buf3 := make([]byte, 1024*2*2)
	sw3.FillS16(buf3, 1024, 2)
	if !bytes.Equal(buf2, buf3) {
		t.Error("sweep is not deterministic")
	}
}
