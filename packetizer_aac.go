package avtk

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pion/rtp"
)

// RFC 3640 AAC-hbr mode: every payload starts with a 16-bit
// AU-headers-length (in bits) followed by one AU header of
// sizeLength=13 and indexLength=3 bits. Interleaving is not used, so
// the index bits stay zero.
const (
	aacAUHeadersLengthBits = 16
	aacAUHeaderSize        = 4 // AU-headers-length (2) + AU header (2)
	aacMaxAUSize           = 0x1FFF
)

// AACPacketizer implements RTPPacketizer for AAC-hbr per RFC 3640.
// Input packets are raw AAC frames without ADTS framing. Frames
// larger than the MTU are fragmented; every fragment repeats the AU
// header with the full frame size and only the last carries the
// marker bit.
type AACPacketizer struct {
	ssrc        uint32
	payloadType uint8
	mtu         int
	clockRate   uint32
	sequencer   rtp.Sequencer
	mu          sync.Mutex
}

// NewAACPacketizer creates an AAC RTP packetizer. The RTP clock for
// mpeg4-generic equals the stream's sample rate.
func NewAACPacketizer(ssrc uint32, payloadType uint8, mtu int, sampleRate int) *AACPacketizer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &AACPacketizer{
		ssrc:        ssrc,
		payloadType: payloadType,
		mtu:         mtu,
		clockRate:   uint32(sampleRate),
		sequencer:   rtp.NewRandomSequencer(),
	}
}

// Packetize converts one raw AAC frame into RTP packets.
func (p *AACPacketizer) Packetize(pkt *Packet) ([]*rtp.Packet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(pkt.Data) == 0 {
		return nil, nil
	}
	if !pkt.TimeBase.IsValid() {
		return nil, fmt.Errorf("packet without a time base")
	}
	if len(pkt.Data) > aacMaxAUSize {
		return nil, fmt.Errorf("aac frame of %d bytes exceeds the 13-bit AU size field", len(pkt.Data))
	}
	timestamp := uint32(RescaleQ(pkt.PTS, pkt.TimeBase, R(1, int(p.clockRate))))

	var auHeader [aacAUHeaderSize]byte
	binary.BigEndian.PutUint16(auHeader[0:], aacAUHeadersLengthBits)
	binary.BigEndian.PutUint16(auHeader[2:], uint16(len(pkt.Data))<<3)

	maxPayload := p.mtu - 12 - aacAUHeaderSize
	var packets []*rtp.Packet
	for offset := 0; offset < len(pkt.Data); {
		end := offset + maxPayload
		if end > len(pkt.Data) {
			end = len(pkt.Data)
		}

		payload := make([]byte, aacAUHeaderSize+end-offset)
		copy(payload, auHeader[:])
		copy(payload[aacAUHeaderSize:], pkt.Data[offset:end])

		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         end == len(pkt.Data),
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		})
		offset = end
	}
	return packets, nil
}

// PacketizeToBytes converts one raw AAC frame to raw RTP packet bytes.
func (p *AACPacketizer) PacketizeToBytes(pkt *Packet) ([][]byte, error) {
	packets, err := p.Packetize(pkt)
	if err != nil {
		return nil, err
	}
	result := make([][]byte, len(packets))
	for i, rp := range packets {
		result[i], err = rp.Marshal()
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *AACPacketizer) SSRC() uint32       { return p.ssrc }
func (p *AACPacketizer) PayloadType() uint8 { return p.payloadType }
func (p *AACPacketizer) ClockRate() uint32  { return p.clockRate }
func (p *AACPacketizer) MTU() int           { return p.mtu }

// AACDepacketizer reassembles raw AAC frames from RFC 3640 packets.
// Aggregated payloads carrying more than one AU are not supported;
// this matches what AACPacketizer produces.
type AACDepacketizer struct {
	clockRate uint32
	auData    []byte
	auSize    int
	timestamp uint32
	started   bool
	mu        sync.Mutex
}

// NewAACDepacketizer creates an AAC RTP depacketizer for streams with
// the given sample rate.
func NewAACDepacketizer(sampleRate int) *AACDepacketizer {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &AACDepacketizer{clockRate: uint32(sampleRate)}
}

// Depacketize processes an RTP packet and returns a complete AAC
// frame once its last fragment arrives, nil otherwise.
func (d *AACDepacketizer) Depacketize(pkt *rtp.Packet) (*Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	payload := pkt.Payload
	if len(payload) < aacAUHeaderSize {
		return nil, fmt.Errorf("aac payload too short: %d bytes", len(payload))
	}
	headerBits := binary.BigEndian.Uint16(payload)
	if headerBits != aacAUHeadersLengthBits {
		return nil, fmt.Errorf("aggregated AU headers not supported (%d bits)", headerBits)
	}
	auSize := int(binary.BigEndian.Uint16(payload[2:]) >> 3)
	frag := payload[aacAUHeaderSize:]

	// A fresh timestamp abandons any unfinished frame.
	if d.started && pkt.Header.Timestamp != d.timestamp {
		if IsRTPTimestampOlder(pkt.Header.Timestamp, d.timestamp) {
			return nil, nil
		}
		d.auData = d.auData[:0]
	}
	d.timestamp = pkt.Header.Timestamp
	d.started = true
	d.auSize = auSize
	d.auData = append(d.auData, frag...)

	if !pkt.Header.Marker {
		return nil, nil
	}
	if got := len(d.auData); got != d.auSize {
		d.auData = d.auData[:0]
		return nil, fmt.Errorf("aac frame ended with %d of %d bytes", got, d.auSize)
	}

	out := &Packet{
		Data:     append([]byte(nil), d.auData...),
		PTS:      int64(d.timestamp),
		DTS:      int64(d.timestamp),
		TimeBase: R(1, int(d.clockRate)),
		Key:      true,
	}
	d.auData = d.auData[:0]
	return out, nil
}

// Reset clears any buffered partial frames.
func (d *AACDepacketizer) Reset() {
	d.mu.Lock()
	d.auData = d.auData[:0]
	d.started = false
	d.timestamp = 0
	d.mu.Unlock()
}

func init() {
	RegisterAudioPacketizer(AudioCodecAAC, func(ssrc uint32, pt uint8, mtu int) (RTPPacketizer, error) {
		return NewAACPacketizer(ssrc, pt, mtu, 48000), nil
	})
	RegisterAudioDepacketizer(AudioCodecAAC, func() (RTPDepacketizer, error) {
		return NewAACDepacketizer(48000), nil
	})
}
