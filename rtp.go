package avtk

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
)

// Re-export pion/rtp types for convenience
type (
	// RTPPacket is an alias to pion's rtp.Packet
	RTPPacket = rtp.Packet

	// RTPHeader is an alias to pion's rtp.Header
	RTPHeader = rtp.Header
)

// Default MTU for RTP packets (UDP safe)
const DefaultMTU = 1200

// RTPPacketizer segments encoded packets into RTP packets. Timestamps
// are rescaled from the packet's time base to the payload's RTP clock.
type RTPPacketizer interface {
	// Packetize converts one encoded packet to RTP packets. The
	// marker bit is set on the last packet of each access unit.
	Packetize(pkt *Packet) ([]*RTPPacket, error)

	// PacketizeToBytes converts one encoded packet to raw RTP bytes.
	PacketizeToBytes(pkt *Packet) ([][]byte, error)

	// SSRC returns the stream's synchronization source.
	SSRC() uint32

	// PayloadType returns the configured payload type.
	PayloadType() uint8

	// ClockRate returns the RTP clock in Hz.
	ClockRate() uint32

	// MTU returns the maximum transmission unit.
	MTU() int
}

// RTPDepacketizer reassembles RTP packets into encoded packets.
type RTPDepacketizer interface {
	// Depacketize processes an RTP packet and returns a complete
	// access unit if one finished, nil otherwise. Returned packets
	// carry the RTP clock as their time base.
	Depacketize(packet *RTPPacket) (*Packet, error)

	// Reset clears any buffered partial frames.
	Reset()
}

// RTPWriter accepts outgoing RTP packets. pion's local tracks satisfy
// this, so packetizer output can feed WebRTC directly.
type RTPWriter interface {
	WriteRTP(packet *RTPPacket) error
}

// PacketizerFactory creates an RTP packetizer.
type PacketizerFactory func(ssrc uint32, pt uint8, mtu int) (RTPPacketizer, error)

// DepacketizerFactory creates an RTP depacketizer.
type DepacketizerFactory func() (RTPDepacketizer, error)

// rtpRegistry holds packetizer/depacketizer factories.
type rtpRegistry struct {
	packetizers        map[VideoCodec]PacketizerFactory
	depacketizers      map[VideoCodec]DepacketizerFactory
	audioPacketizers   map[AudioCodec]PacketizerFactory
	audioDepacketizers map[AudioCodec]DepacketizerFactory
	mu                 sync.RWMutex
}

var globalRTPRegistry = &rtpRegistry{
	packetizers:        make(map[VideoCodec]PacketizerFactory),
	depacketizers:      make(map[VideoCodec]DepacketizerFactory),
	audioPacketizers:   make(map[AudioCodec]PacketizerFactory),
	audioDepacketizers: make(map[AudioCodec]DepacketizerFactory),
}

// RegisterVideoPacketizer registers a video RTP packetizer factory.
func RegisterVideoPacketizer(codec VideoCodec, factory PacketizerFactory) {
	globalRTPRegistry.mu.Lock()
	defer globalRTPRegistry.mu.Unlock()
	globalRTPRegistry.packetizers[codec] = factory
}

// RegisterVideoDepacketizer registers a video RTP depacketizer factory.
func RegisterVideoDepacketizer(codec VideoCodec, factory DepacketizerFactory) {
	globalRTPRegistry.mu.Lock()
	defer globalRTPRegistry.mu.Unlock()
	globalRTPRegistry.depacketizers[codec] = factory
}

// RegisterAudioPacketizer registers an audio RTP packetizer factory.
func RegisterAudioPacketizer(codec AudioCodec, factory PacketizerFactory) {
	globalRTPRegistry.mu.Lock()
	defer globalRTPRegistry.mu.Unlock()
	globalRTPRegistry.audioPacketizers[codec] = factory
}

// RegisterAudioDepacketizer registers an audio RTP depacketizer factory.
func RegisterAudioDepacketizer(codec AudioCodec, factory DepacketizerFactory) {
	globalRTPRegistry.mu.Lock()
	defer globalRTPRegistry.mu.Unlock()
	globalRTPRegistry.audioDepacketizers[codec] = factory
}

// CreateVideoPacketizer creates a video RTP packetizer.
func CreateVideoPacketizer(codec VideoCodec, ssrc uint32, pt uint8, mtu int) (RTPPacketizer, error) {
	globalRTPRegistry.mu.RLock()
	factory, ok := globalRTPRegistry.packetizers[codec]
	globalRTPRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("video packetizer not available: %v", codec)
	}

	return factory(ssrc, pt, mtu)
}

// CreateVideoDepacketizer creates a video RTP depacketizer.
func CreateVideoDepacketizer(codec VideoCodec) (RTPDepacketizer, error) {
	globalRTPRegistry.mu.RLock()
	factory, ok := globalRTPRegistry.depacketizers[codec]
	globalRTPRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("video depacketizer not available: %v", codec)
	}

	return factory()
}

// CreateAudioPacketizer creates an audio RTP packetizer.
func CreateAudioPacketizer(codec AudioCodec, ssrc uint32, pt uint8, mtu int) (RTPPacketizer, error) {
	globalRTPRegistry.mu.RLock()
	factory, ok := globalRTPRegistry.audioPacketizers[codec]
	globalRTPRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("audio packetizer not available: %v", codec)
	}

	return factory(ssrc, pt, mtu)
}

// CreateAudioDepacketizer creates an audio RTP depacketizer.
func CreateAudioDepacketizer(codec AudioCodec) (RTPDepacketizer, error) {
	globalRTPRegistry.mu.RLock()
	factory, ok := globalRTPRegistry.audioDepacketizers[codec]
	globalRTPRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("audio depacketizer not available: %v", codec)
	}

	return factory()
}

// IsRTPTimestampOlder returns true if ts1 is older than or equal to ts2,
// handling 32-bit wraparound correctly per RTP timestamp comparison rules.
// This is used by depacketizers to discard late-arriving packets.
func IsRTPTimestampOlder(ts1, ts2 uint32) bool {
	if ts1 == ts2 {
		return true
	}
	// ts1 is older if (ts2 - ts1) < 2^31
	diff := ts2 - ts1
	return diff < 0x80000000
}
