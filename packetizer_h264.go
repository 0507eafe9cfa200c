package avtk

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pion/rtp"
)

// RFC 6184 aggregation/fragmentation NAL types.
const (
	nalTypeSTAPA = 24 // Single-time aggregation packet
	nalTypeFUA   = 28 // Fragmentation unit A
)

// h264ClockRate is the fixed RTP clock for H.264 (RFC 6184).
const h264ClockRate = 90000

// H264Packetizer implements RTPPacketizer for H.264 per RFC 6184.
// Input packets must be Annex B access units; NALs that fit the MTU
// go out as single NAL unit packets, larger ones as FU-A fragments.
type H264Packetizer struct {
	ssrc        uint32
	payloadType uint8
	mtu         int
	sequencer   rtp.Sequencer
	mu          sync.Mutex
}

// NewH264Packetizer creates an H.264 RTP packetizer.
func NewH264Packetizer(ssrc uint32, payloadType uint8, mtu int) *H264Packetizer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &H264Packetizer{
		ssrc:        ssrc,
		payloadType: payloadType,
		mtu:         mtu,
		sequencer:   rtp.NewRandomSequencer(),
	}
}

// Packetize converts one Annex B access unit into RTP packets.
func (p *H264Packetizer) Packetize(pkt *Packet) ([]*rtp.Packet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(pkt.Data) == 0 {
		return nil, nil
	}
	if !pkt.TimeBase.IsValid() {
		return nil, fmt.Errorf("packet without a time base")
	}
	timestamp := uint32(RescaleQ(pkt.PTS, pkt.TimeBase, R(1, h264ClockRate)))

	nalUnits := SplitNALUnits(pkt.Data)
	if len(nalUnits) == 0 {
		return nil, fmt.Errorf("no NAL units found in access unit")
	}

	var packets []*rtp.Packet
	for i, nalu := range nalUnits {
		isLast := i == len(nalUnits)-1

		if len(nalu) <= p.mtu-12 { // RTP header is 12 bytes
			packets = append(packets, &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         isLast,
					PayloadType:    p.payloadType,
					SequenceNumber: p.sequencer.NextSequenceNumber(),
					Timestamp:      timestamp,
					SSRC:           p.ssrc,
				},
				Payload: nalu,
			})
		} else {
			packets = append(packets, p.fragmentNALUnit(nalu, timestamp, isLast)...)
		}
	}
	return packets, nil
}

// fragmentNALUnit splits a large NAL unit into FU-A packets.
func (p *H264Packetizer) fragmentNALUnit(nalu []byte, timestamp uint32, isLastNALU bool) []*rtp.Packet {
	if len(nalu) == 0 {
		return nil
	}

	nalHeader := nalu[0]
	nalType := nalHeader & 0x1F
	nri := nalHeader & 0x60

	// The NAL header byte is replaced by FU indicator + FU header.
	payload := nalu[1:]
	maxPayload := p.mtu - 12 - 2

	var packets []*rtp.Packet
	offset := 0
	for offset < len(payload) {
		end := offset + maxPayload
		if end > len(payload) {
			end = len(payload)
		}

		isStart := offset == 0
		isEnd := end == len(payload)

		fuIndicator := nri | nalTypeFUA
		fuHeader := nalType
		if isStart {
			fuHeader |= 0x80
		}
		if isEnd {
			fuHeader |= 0x40
		}

		pktPayload := make([]byte, 2+end-offset)
		pktPayload[0] = fuIndicator
		pktPayload[1] = fuHeader
		copy(pktPayload[2:], payload[offset:end])

		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         isEnd && isLastNALU,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: pktPayload,
		})
		offset = end
	}
	return packets
}

// PacketizeToBytes converts one access unit to raw RTP packet bytes.
func (p *H264Packetizer) PacketizeToBytes(pkt *Packet) ([][]byte, error) {
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

func (p *H264Packetizer) SSRC() uint32       { return p.ssrc }
func (p *H264Packetizer) PayloadType() uint8 { return p.payloadType }
func (p *H264Packetizer) ClockRate() uint32  { return h264ClockRate }
func (p *H264Packetizer) MTU() int           { return p.mtu }

// H264Depacketizer reassembles Annex B access units from RTP packets.
type H264Depacketizer struct {
	auData      []byte
	fuaBuffer   []byte
	fragmenting bool
	timestamp   uint32
	started     bool
	key         bool
	mu          sync.Mutex
}

// NewH264Depacketizer creates an H.264 RTP depacketizer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize processes an RTP packet and returns a complete access
// unit once the marker-bit packet arrives, nil until then. Output is
// Annex B with a 90kHz time base.
func (d *H264Depacketizer) Depacketize(pkt *rtp.Packet) (*Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(pkt.Payload) == 0 {
		return nil, nil
	}

	// A packet older than the unit in progress arrived late; drop it.
	if d.started && pkt.Header.Timestamp != d.timestamp {
		if IsRTPTimestampOlder(pkt.Header.Timestamp, d.timestamp) {
			return nil, nil
		}
		d.reset()
	}
	d.timestamp = pkt.Header.Timestamp
	d.started = true

	nalType := pkt.Payload[0] & 0x1F
	switch {
	case nalType >= 1 && nalType <= 23:
		d.appendNAL(pkt.Payload)

	case nalType == nalTypeSTAPA:
		if err := d.depacketizeSTAPA(pkt.Payload); err != nil {
			return nil, err
		}

	case nalType == nalTypeFUA:
		if err := d.depacketizeFUA(pkt.Payload); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported NAL type: %d", nalType)
	}

	if pkt.Header.Marker && len(d.auData) > 0 {
		out := &Packet{
			Data:     append([]byte(nil), d.auData...),
			PTS:      int64(d.timestamp),
			DTS:      int64(d.timestamp),
			TimeBase: R(1, h264ClockRate),
			Key:      d.key,
		}
		d.auData = d.auData[:0]
		d.key = false
		return out, nil
	}
	return nil, nil
}

func (d *H264Depacketizer) appendNAL(nal []byte) {
	if NALType(nal) == NALTypeIDR {
		d.key = true
	}
	d.auData = append(d.auData, 0, 0, 0, 1)
	d.auData = append(d.auData, nal...)
}

func (d *H264Depacketizer) depacketizeSTAPA(payload []byte) error {
	offset := 1 // skip STAP-A header
	for offset < len(payload) {
		if offset+2 > len(payload) {
			break
		}
		naluSize := int(binary.BigEndian.Uint16(payload[offset:]))
		offset += 2
		if naluSize == 0 || offset+naluSize > len(payload) {
			break
		}
		d.appendNAL(payload[offset : offset+naluSize])
		offset += naluSize
	}
	return nil
}

func (d *H264Depacketizer) depacketizeFUA(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("FU-A packet too short")
	}

	fuIndicator := payload[0]
	fuHeader := payload[1]

	isStart := (fuHeader & 0x80) != 0
	isEnd := (fuHeader & 0x40) != 0
	nalType := fuHeader & 0x1F

	if isStart {
		nalHeader := (fuIndicator & 0xE0) | nalType
		d.fuaBuffer = d.fuaBuffer[:0]
		d.fuaBuffer = append(d.fuaBuffer, nalHeader)
		d.fragmenting = true
	}

	// A fragment without its start was lost mid-unit; skip until the
	// next start bit.
	if !d.fragmenting {
		return nil
	}

	d.fuaBuffer = append(d.fuaBuffer, payload[2:]...)

	if isEnd {
		d.appendNAL(d.fuaBuffer)
		d.fuaBuffer = d.fuaBuffer[:0]
		d.fragmenting = false
	}
	return nil
}

func (d *H264Depacketizer) reset() {
	d.auData = d.auData[:0]
	d.fuaBuffer = d.fuaBuffer[:0]
	d.fragmenting = false
	d.key = false
}

// Reset clears any buffered partial frames.
func (d *H264Depacketizer) Reset() {
	d.mu.Lock()
	d.reset()
	d.started = false
	d.timestamp = 0
	d.mu.Unlock()
}

func init() {
	RegisterVideoPacketizer(VideoCodecH264, func(ssrc uint32, pt uint8, mtu int) (RTPPacketizer, error) {
		return NewH264Packetizer(ssrc, pt, mtu), nil
	})
	RegisterVideoDepacketizer(VideoCodecH264, func() (RTPDepacketizer, error) {
		return NewH264Depacketizer(), nil
	})
}
