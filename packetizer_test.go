package avtk

import (
	"bytes"
	"testing"
)

func h264TestPacket(nals ...[]byte) *Packet {
	var data []byte
	for _, nal := range nals {
		data = append(data, 0x00, 0x00, 0x00, 0x01)
		data = append(data, nal...)
	}
	return &Packet{
		Data:     data,
		PTS:      10,
		DTS:      10,
		TimeBase: R(1, 25),
		Key:      true,
	}
}

func TestH264Packetizer_SingleNAL(t *testing.T) {
	p := NewH264Packetizer(0x11223344, 96, 1200)

	idr := append([]byte{0x65}, bytes.Repeat([]byte{0xAB}, 100)...)
	pkts, err := p.Packetize(h264TestPacket(idr))
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 1 {
		t.Fatalf("packet count = %d, want 1", len(pkts))
	}

	pkt := pkts[0]
	if !pkt.Marker {
		t.Error("single NAL packet missing marker")
	}
	if !bytes.Equal(pkt.Payload, idr) {
		t.Error("payload does not match the NAL unit")
	}
	if pkt.SSRC != 0x11223344 || pkt.PayloadType != 96 {
		t.Errorf("header = ssrc %x pt %d, want ssrc 11223344 pt 96", pkt.SSRC, pkt.PayloadType)
	}
	// 10 ticks of 1/25s at the 90kHz RTP clock.
	if pkt.Timestamp != 36000 {
		t.Errorf("timestamp = %d, want 36000", pkt.Timestamp)
	}
}

func TestH264Packetizer_MarkerOnLastNAL(t *testing.T) {
	p := NewH264Packetizer(1, 96, 1200)

	sps := []byte{0x67, 0x42, 0xC0, 0x1E}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}
	idr := append([]byte{0x65}, bytes.Repeat([]byte{0x11}, 50)...)
	pkts, err := p.Packetize(h264TestPacket(sps, pps, idr))
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 3 {
		t.Fatalf("packet count = %d, want 3", len(pkts))
	}
	for i, pkt := range pkts {
		wantMarker := i == len(pkts)-1
		if pkt.Marker != wantMarker {
			t.Errorf("packet %d marker = %v, want %v", i, pkt.Marker, wantMarker)
		}
	}
}

func TestH264Packetizer_FragmentsLargeNAL(t *testing.T) {
	const mtu = 200
	p := NewH264Packetizer(1, 96, mtu)

	nal := append([]byte{0x65}, bytes.Repeat([]byte{0xCD}, 1000)...)
	pkts, err := p.Packetize(h264TestPacket(nal))
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) < 2 {
		t.Fatalf("large NAL produced %d packets, want fragmentation", len(pkts))
	}

	for i, pkt := range pkts {
		if len(pkt.Payload) > mtu-12 {
			t.Errorf("packet %d payload %d bytes exceeds mtu budget", i, len(pkt.Payload))
		}
		indicator := pkt.Payload[0]
		header := pkt.Payload[1]
		if indicator&0x1F != 28 {
			t.Fatalf("packet %d is not FU-A (type %d)", i, indicator&0x1F)
		}
		if header&0x1F != 0x05 {
			t.Errorf("packet %d FU header carries NAL type %d, want 5", i, header&0x1F)
		}
		if start := header&0x80 != 0; start != (i == 0) {
			t.Errorf("packet %d start bit = %v", i, start)
		}
		if end := header&0x40 != 0; end != (i == len(pkts)-1) {
			t.Errorf("packet %d end bit = %v", i, end)
		}
	}
}

func TestH264RoundTripThroughDepacketizer(t *testing.T) {
	p := NewH264Packetizer(1, 96, 200)
	d := NewH264Depacketizer()

	sps := []byte{0x67, 0x42, 0xC0, 0x1E}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}
	idr := append([]byte{0x65}, bytes.Repeat([]byte{0x5A}, 900)...)
	src := h264TestPacket(sps, pps, idr)

	pkts, err := p.Packetize(src)
	if err != nil {
		t.Fatal(err)
	}

	var out *Packet
	for _, pkt := range pkts {
		got, err := d.Depacketize(pkt)
		if err != nil {
			t.Fatalf("Depacketize() error = %v", err)
		}
		if got != nil {
			out = got
		}
	}
	if out == nil {
		t.Fatal("no access unit came out")
	}
	if !bytes.Equal(out.Data, src.Data) {
		t.Error("reassembled access unit differs from the input")
	}
	if !out.Key {
		t.Error("IDR access unit not marked as key")
	}
	if out.PTS != 36000 || out.TimeBase != R(1, 90000) {
		t.Errorf("timestamp = %d @%v, want 36000 @1/90000", out.PTS, out.TimeBase)
	}
}

func TestH264Depacketizer_STAPA(t *testing.T) {
	sps := []byte{0x67, 0x42, 0xC0, 0x1E}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}

	// STAP-A: header byte then length-prefixed NAL units.
	payload := []byte{24}
	for _, nal := range [][]byte{sps, pps} {
		payload = append(payload, byte(len(nal)>>8), byte(len(nal)))
		payload = append(payload, nal...)
	}

	d := NewH264Depacketizer()
	pkt := &RTPPacket{}
	pkt.Timestamp = 1000
	pkt.Marker = true
	pkt.Payload = payload

	out, err := d.Depacketize(pkt)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("marker packet produced no access unit")
	}

	want := h264TestPacket(sps, pps).Data
	if !bytes.Equal(out.Data, want) {
		t.Errorf("access unit = %x, want %x", out.Data, want)
	}
}

func TestAACPacketizer_SingleFrame(t *testing.T) {
	p := NewAACPacketizer(7, 97, 1200, 48000)

	frame := bytes.Repeat([]byte{0x3C}, 300)
	pkts, err := p.Packetize(&Packet{
		Data:     frame,
		PTS:      1024,
		DTS:      1024,
		TimeBase: R(1, 48000),
		Key:      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 1 {
		t.Fatalf("packet count = %d, want 1", len(pkts))
	}

	pkt := pkts[0]
	if !pkt.Marker {
		t.Error("single AU packet missing marker")
	}
	// RTP clock for mpeg4-generic is the sample rate.
	if pkt.Timestamp != 1024 {
		t.Errorf("timestamp = %d, want 1024", pkt.Timestamp)
	}

	// AU-headers-length (16 bits) then one AU header of size<<3.
	want := []byte{0x00, 0x10, byte(300 >> 5), byte(300 << 3 & 0xFF)}
	if !bytes.Equal(pkt.Payload[:4], want) {
		t.Errorf("AU header section = %x, want %x", pkt.Payload[:4], want)
	}
	if !bytes.Equal(pkt.Payload[4:], frame) {
		t.Error("payload does not match the AAC frame")
	}
}

func TestAACPacketizer_RescalesForeignTimeBase(t *testing.T) {
	p := NewAACPacketizer(7, 97, 1200, 48000)

	// A packet stamped in milliseconds must land on the 48kHz RTP
	// clock: 500ms -> 24000 ticks.
	pkts, err := p.Packetize(&Packet{
		Data:     bytes.Repeat([]byte{0x5A}, 64),
		PTS:      500,
		DTS:      500,
		TimeBase: R(1, 1000),
		Key:      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 1 {
		t.Fatalf("packet count = %d, want 1", len(pkts))
	}
	if pkts[0].Timestamp != 24000 {
		t.Errorf("timestamp = %d, want 24000", pkts[0].Timestamp)
	}
}

func TestAACPacketizer_RejectsOversizedFrame(t *testing.T) {
	p := NewAACPacketizer(7, 97, 1200, 48000)
	_, err := p.Packetize(&Packet{
		Data:     make([]byte, 0x2000),
		TimeBase: R(1, 48000),
	})
	if err == nil {
		t.Fatal("frame above the 13-bit size limit was accepted")
	}
}

func TestAACRoundTripThroughDepacketizer(t *testing.T) {
	const mtu = 200
	p := NewAACPacketizer(7, 97, mtu, 48000)
	d := NewAACDepacketizer(48000)

	frame := make([]byte, 1500)
	for i := range frame {
		frame[i] = byte(i * 7)
	}
	pkts, err := p.Packetize(&Packet{
		Data:     frame,
		PTS:      2048,
		DTS:      2048,
		TimeBase: R(1, 48000),
		Key:      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) < 2 {
		t.Fatalf("1500-byte frame produced %d packets at mtu %d, want fragmentation", len(pkts), mtu)
	}

	var out *Packet
	for i, pkt := range pkts {
		got, err := d.Depacketize(pkt)
		if err != nil {
			t.Fatalf("Depacketize(%d) error = %v", i, err)
		}
		if got != nil {
			out = got
		}
	}
	if out == nil {
		t.Fatal("no frame came out")
	}
	if !bytes.Equal(out.Data, frame) {
		t.Error("reassembled frame differs from the input")
	}
	if out.PTS != 2048 || out.TimeBase != R(1, 48000) {
		t.Errorf("timestamp = %d @%v, want 2048 @1/48000", out.PTS, out.TimeBase)
	}
}

func TestAACDepacketizer_RejectsAggregatedHeaders(t *testing.T) {
	d := NewAACDepacketizer(48000)

	// Two AU headers (32 bits) signal an aggregated payload.
	pkt := &RTPPacket{}
	pkt.Marker = true
	pkt.Payload = []byte{0x00, 0x20, 0x00, 0x08, 0x00, 0x08, 0xAA}

	if _, err := d.Depacketize(pkt); err == nil {
		t.Fatal("aggregated AU headers were accepted")
	}
}

func TestPacketizerRegistry(t *testing.T) {
	if _, err := CreateVideoPacketizer(VideoCodecH264, 1, 96, 1200); err != nil {
		t.Errorf("CreateVideoPacketizer(H264) error = %v", err)
	}
	if _, err := CreateVideoDepacketizer(VideoCodecH264); err != nil {
		t.Errorf("CreateVideoDepacketizer(H264) error = %v", err)
	}
	if _, err := CreateAudioPacketizer(AudioCodecAAC, 1, 97, 1200); err != nil {
		t.Errorf("CreateAudioPacketizer(AAC) error = %v", err)
	}
	if _, err := CreateAudioDepacketizer(AudioCodecAAC); err != nil {
		t.Errorf("CreateAudioDepacketizer(AAC) error = %v", err)
	}
	if _, err := CreateVideoPacketizer(VideoCodec(99), 1, 96, 1200); err == nil {
		t.Error("unknown video codec did not fail")
	}
}

func TestPacketizeToBytes(t *testing.T) {
	p := NewH264Packetizer(1, 96, 1200)
	raw, err := p.PacketizeToBytes(h264TestPacket([]byte{0x65, 0x01, 0x02}))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 1 {
		t.Fatalf("buffer count = %d, want 1", len(raw))
	}
	var parsed RTPPacket
	if err := parsed.Unmarshal(raw[0]); err != nil {
		t.Fatalf("output is not a valid RTP packet: %v", err)
	}
	if parsed.Version != 2 {
		t.Errorf("RTP version = %d, want 2", parsed.Version)
	}
}

func TestIsRTPTimestampOlder(t *testing.T) {
	tests := []struct {
		name     string
		ts1, ts2 uint32
		want     bool
	}{
		{"older", 100, 200, true},
		{"newer", 200, 100, false},
		{"equal", 100, 100, true},
		{"wraparound", 0xFFFFFF00, 0x00000100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRTPTimestampOlder(tt.ts1, tt.ts2); got != tt.want {
				t.Errorf("IsRTPTimestampOlder(%d, %d) = %v, want %v", tt.ts1, tt.ts2, got, tt.want)
			}
		})
	}
}
