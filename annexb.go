package avtk

import (
	"encoding/binary"
	"fmt"
	"io"
)

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	NALTypeSlice    = 1 // Coded slice of a non-IDR picture
	NALTypeSliceDPA = 2
	NALTypeSliceDPB = 3
	NALTypeSliceDPC = 4
	NALTypeIDR      = 5 // Coded slice of an IDR picture
	NALTypeSEI      = 6
	NALTypeSPS      = 7
	NALTypePPS      = 8
	NALTypeAUD      = 9
)

// NALType returns the nal_unit_type of a NAL unit without its start
// code.
func NALType(nal []byte) byte {
	if len(nal) == 0 {
		return 0
	}
	return nal[0] & 0x1F
}

func isVCLNAL(t byte) bool {
	return t >= NALTypeSlice && t <= NALTypeIDR
}

// SplitNALUnits splits an Annex B buffer into NAL units, handling both
// 3-byte and 4-byte start codes. The returned slices alias b.
func SplitNALUnits(b []byte) [][]byte {
	var nals [][]byte
	start := -1
	i := 0
	for i+2 < len(b) {
		if b[i] == 0 && b[i+1] == 0 && (b[i+2] == 1 || (b[i+2] == 0 && i+3 < len(b) && b[i+3] == 1)) {
			scLen := 3
			if b[i+2] == 0 {
				scLen = 4
			}
			if start >= 0 {
				nals = append(nals, trimTrailingZeros(b[start:i]))
			}
			start = i + scLen
			i += scLen
			continue
		}
		i++
	}
	if start >= 0 && start <= len(b) {
		nals = append(nals, b[start:])
	}
	return nals
}

// Encoders pad the distance to the next start code with zero bytes;
// those zeros belong to the start code, not the NAL payload.
func trimTrailingZeros(nal []byte) []byte {
	for len(nal) > 0 && nal[len(nal)-1] == 0 {
		nal = nal[:len(nal)-1]
	}
	return nal
}

// IsKeyframeAU reports whether an Annex B access unit contains an IDR
// slice.
func IsKeyframeAU(au []byte) bool {
	for _, nal := range SplitNALUnits(au) {
		if NALType(nal) == NALTypeIDR {
			return true
		}
	}
	return false
}

// ExtractParameterSets returns the first SPS and PPS found in an
// Annex B buffer, without start codes. Missing sets come back nil.
func ExtractParameterSets(annexb []byte) (sps, pps []byte) {
	for _, nal := range SplitNALUnits(annexb) {
		switch NALType(nal) {
		case NALTypeSPS:
			if sps == nil {
				sps = nal
			}
		case NALTypePPS:
			if pps == nil {
				pps = nal
			}
		}
	}
	return sps, pps
}

// AnnexBToAVCC converts an Annex B access unit into the AVCC layout
// used inside MP4 and FLV: each NAL prefixed with its length as a
// 4-byte big-endian integer.
func AnnexBToAVCC(annexb []byte) []byte {
	nals := SplitNALUnits(annexb)
	size := 0
	for _, nal := range nals {
		size += 4 + len(nal)
	}
	out := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, nal := range nals {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(nal)))
		out = append(out, lenBuf[:]...)
		out = append(out, nal...)
	}
	return out
}

// AVCCToAnnexB converts length-prefixed NAL units back to Annex B
// with 4-byte start codes.
func AVCCToAnnexB(avcc []byte) ([]byte, error) {
	out := make([]byte, 0, len(avcc)+16)
	for len(avcc) > 0 {
		if len(avcc) < 4 {
			return nil, fmt.Errorf("avcc: %d trailing bytes", len(avcc))
		}
		n := binary.BigEndian.Uint32(avcc)
		avcc = avcc[4:]
		if uint32(len(avcc)) < n {
			return nil, fmt.Errorf("avcc: nal length %d exceeds remaining %d bytes", n, len(avcc))
		}
		out = append(out, 0, 0, 0, 1)
		out = append(out, avcc[:n]...)
		avcc = avcc[n:]
	}
	return out, nil
}

// BuildAVCDecoderConfig assembles an AVCDecoderConfigurationRecord
// (ISO/IEC 14496-15 section 5.2.4.1) from one SPS and one PPS.
func BuildAVCDecoderConfig(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 {
		return nil, fmt.Errorf("sps too short (%d bytes)", len(sps))
	}
	if len(pps) == 0 {
		return nil, fmt.Errorf("missing pps")
	}
	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out,
		1,      // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // lengthSizeMinusOne = 3 (4-byte NAL lengths)
		0xE1,   // numOfSequenceParameterSets = 1
	)
	out = append(out, byte(len(sps)>>8), byte(len(sps)))
	out = append(out, sps...)
	out = append(out, 1) // numOfPictureParameterSets
	out = append(out, byte(len(pps)>>8), byte(len(pps)))
	out = append(out, pps...)
	return out, nil
}

// ParseAVCDecoderConfig extracts the first SPS and PPS from an
// AVCDecoderConfigurationRecord.
func ParseAVCDecoderConfig(cfg []byte) (sps, pps []byte, err error) {
	if len(cfg) < 7 || cfg[0] != 1 {
		return nil, nil, fmt.Errorf("malformed avc decoder configuration")
	}
	numSPS := int(cfg[5] & 0x1F)
	p := cfg[6:]
	for i := 0; i < numSPS; i++ {
		if len(p) < 2 {
			return nil, nil, fmt.Errorf("avc decoder configuration truncated in sps")
		}
		n := int(binary.BigEndian.Uint16(p))
		p = p[2:]
		if len(p) < n {
			return nil, nil, fmt.Errorf("avc decoder configuration truncated in sps")
		}
		if sps == nil {
			sps = p[:n]
		}
		p = p[n:]
	}
	if len(p) < 1 {
		return nil, nil, fmt.Errorf("avc decoder configuration missing pps count")
	}
	numPPS := int(p[0])
	p = p[1:]
	for i := 0; i < numPPS; i++ {
		if len(p) < 2 {
			return nil, nil, fmt.Errorf("avc decoder configuration truncated in pps")
		}
		n := int(binary.BigEndian.Uint16(p))
		p = p[2:]
		if len(p) < n {
			return nil, nil, fmt.Errorf("avc decoder configuration truncated in pps")
		}
		if pps == nil {
			pps = p[:n]
		}
		p = p[n:]
	}
	if sps == nil || pps == nil {
		return nil, nil, fmt.Errorf("avc decoder configuration has no parameter sets")
	}
	return sps, pps, nil
}

// AnnexBScanner splits an Annex B elementary stream into access
// units. Non-VCL NAL units (SPS, PPS, SEI) are grouped with the slice
// that follows them. Like ADTSScanner it streams in constant memory.
type AnnexBScanner struct {
	r       io.Reader
	buf     []byte
	data    []byte
	pending []byte // NALs of the AU being assembled, with start codes
	hasVCL  bool
	eof     bool
}

// NewAnnexBScanner wraps r for access-unit-at-a-time reading.
func NewAnnexBScanner(r io.Reader) *AnnexBScanner {
	return &AnnexBScanner{
		r:   r,
		buf: make([]byte, scanBufferSize),
	}
}

// Next returns the next access unit with 4-byte start codes. It
// returns io.EOF after the last one.
func (s *AnnexBScanner) Next() ([]byte, error) {
	for {
		nal, err := s.nextNAL()
		if err == io.EOF {
			if len(s.pending) > 0 {
				au := s.pending
				s.pending = nil
				s.hasVCL = false
				return au, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		t := NALType(nal)
		// A VCL NAL with first_mb_in_slice == 0 starts a new primary
		// picture (H.264 section 7.4.1.2.4). first_mb_in_slice is the
		// leading ue(v) field after the NAL header, so value 0 shows
		// up as a set top bit.
		startsPicture := isVCLNAL(t) && len(nal) > 1 && nal[1]&0x80 != 0
		if s.hasVCL && (startsPicture || !isVCLNAL(t)) {
			au := s.pending
			s.pending = nil
			s.hasVCL = false
			s.appendNAL(nal)
			if isVCLNAL(t) {
				s.hasVCL = true
			}
			return au, nil
		}
		s.appendNAL(nal)
		if isVCLNAL(t) {
			s.hasVCL = true
		}
	}
}

func (s *AnnexBScanner) appendNAL(nal []byte) {
	s.pending = append(s.pending, 0, 0, 0, 1)
	s.pending = append(s.pending, nal...)
}

// maxNALSize caps scan buffer growth. A conforming slice NAL never
// comes close.
const maxNALSize = 1 << 24

// nextNAL returns the next NAL unit without its start code. The
// returned slice is only valid until the following call.
func (s *AnnexBScanner) nextNAL() ([]byte, error) {
	if !s.eof && len(s.data) < scanRefillTrigger {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
	for {
		start, scLen := findStartCode(s.data, 0)
		if start < 0 {
			if s.eof {
				return nil, io.EOF
			}
			if len(s.data) >= len(s.buf)-3 {
				// Nothing but garbage; keep only the tail bytes that
				// could begin a start code split across reads.
				s.data = s.data[len(s.data)-3:]
			}
			if err := s.fill(); err != nil {
				return nil, err
			}
			continue
		}
		next, _ := findStartCode(s.data, start+scLen)
		if next >= 0 {
			nal := trimTrailingZeros(s.data[start+scLen : next])
			s.data = s.data[next:]
			if len(nal) == 0 {
				continue
			}
			return nal, nil
		}
		if s.eof {
			nal := trimTrailingZeros(s.data[start+scLen:])
			s.data = nil
			if len(nal) == 0 {
				return nil, io.EOF
			}
			return nal, nil
		}
		if start > 0 {
			s.data = s.data[start:]
		}
		if len(s.data) >= len(s.buf) {
			if len(s.buf) >= maxNALSize {
				return nil, fmt.Errorf("nal unit exceeds %d bytes", maxNALSize)
			}
			s.buf = make([]byte, len(s.buf)*2)
		}
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
}

func (s *AnnexBScanner) fill() error {
	n := copy(s.buf, s.data)
	for n < len(s.buf) {
		m, err := s.r.Read(s.buf[n:])
		n += m
		if err == io.EOF {
			s.eof = true
			break
		}
		if err != nil {
			return err
		}
	}
	s.data = s.buf[:n]
	return nil
}

// findStartCode locates the next 3- or 4-byte start code at or after
// from. It returns the offset of the first zero byte and the start
// code length, or -1 when none is present.
func findStartCode(b []byte, from int) (pos, scLen int) {
	for i := from; i+2 < len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 {
			continue
		}
		if b[i+2] == 1 {
			return i, 3
		}
		if b[i+2] == 0 && i+3 < len(b) && b[i+3] == 1 {
			return i, 4
		}
	}
	return -1, 0
}
