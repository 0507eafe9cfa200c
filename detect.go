package avtk

// DetectVideoCodec detects the video codec from raw bitstream data.
// Supports detection of:
//   - H.264/AVC: Annex-B format (ITU-T H.264) and AVCC format (ISO/IEC 14496-15)
//
// Returns VideoCodecUnknown if the codec cannot be determined.
func DetectVideoCodec(data []byte) VideoCodec {
	if len(data) < 4 {
		return VideoCodecUnknown
	}

	if isAnnexBStartCode(data) {
		nalType := getNALType(data)
		if isH264NALType(nalType) {
			return VideoCodecH264
		}
	}

	if isAVCCFormat(data) {
		return VideoCodecH264
	}

	return VideoCodecUnknown
}

// DetectAudioCodec detects the audio codec from raw bitstream data.
// Supports detection of:
//   - AAC: ADTS framing (ISO/IEC 14496-3)
//
// Returns AudioCodecUnknown if the codec cannot be determined.
func DetectAudioCodec(data []byte) AudioCodec {
	if isADTSHeader(data) {
		return AudioCodecAAC
	}
	return AudioCodecUnknown
}

// DetectFLV reports whether data begins with an FLV file header.
// Per the Adobe Flash Video File Format Specification v10.1, an FLV
// file starts with the signature bytes 'F' 'L' 'V' followed by a
// version byte (1 for all published versions).
func DetectFLV(data []byte) bool {
	return len(data) >= 4 && data[0] == 'F' && data[1] == 'L' && data[2] == 'V' && data[3] == 1
}

// isAnnexBStartCode checks for H.264 Annex-B start codes.
// Per ITU-T H.264 Annex B, NAL units are prefixed with:
//   - 4-byte start code: 0x00000001 (used at stream start and after certain NALUs)
//   - 3-byte start code: 0x000001 (used between NALUs)
func isAnnexBStartCode(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	// 4-byte start code: 0x00000001
	if data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1 {
		return true
	}
	// 3-byte start code: 0x000001
	if data[0] == 0 && data[1] == 0 && data[2] == 1 {
		return true
	}
	return false
}

// getNALType extracts the NAL unit type following a start code.
// Per ITU-T H.264 Section 7.3.1, the NAL unit header is:
//   - forbidden_zero_bit (1 bit): must be 0
//   - nal_ref_idc (2 bits): reference priority
//   - nal_unit_type (5 bits): type identifier
func getNALType(data []byte) byte {
	if len(data) < 4 {
		return 0
	}
	offset := 3
	if data[2] == 0 {
		offset = 4
	}
	if len(data) <= offset {
		return 0
	}
	return data[offset] & 0x1F
}

// isH264NALType checks if NAL type is valid H.264.
// Per ITU-T H.264 Table 7-1, valid NAL unit types are:
//   - 1: Non-IDR slice, 2: Slice data partition A, 3-4: Slice data partitions B/C
//   - 5: IDR slice, 6: SEI, 7: SPS, 8: PPS, 9: AUD, 10: End of seq, 11: End of stream, 12: Filler
//   - 19: Coded slice of aux picture, 20: Coded slice extension, 21: Coded slice extension for depth
func isH264NALType(nalType byte) bool {
	return (nalType >= 1 && nalType <= 12) || (nalType >= 19 && nalType <= 21)
}

// isAVCCFormat checks for AVCC (length-prefixed) format.
// Per ISO/IEC 14496-15 (MPEG-4 Part 15), AVCC format uses a 4-byte
// big-endian NAL length in place of the Annex-B start code. The
// heuristic accepts data whose first length field is plausible and
// whose first NAL header carries a valid H.264 type.
func isAVCCFormat(data []byte) bool {
	if len(data) < 5 {
		return false
	}
	nalLen := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	if nalLen == 0 || nalLen > uint32(len(data)-4) {
		return false
	}
	if data[4]&0x80 != 0 { // forbidden_zero_bit
		return false
	}
	return isH264NALType(data[4] & 0x1F)
}

// isADTSHeader checks for an ADTS frame header.
// Per ISO/IEC 14496-3, an ADTS header begins with a 12-bit syncword
// of all ones. The check also rejects reserved sampling frequency
// indices and layer values, which real AAC streams never use.
func isADTSHeader(data []byte) bool {
	if len(data) < ADTSHeaderSize {
		return false
	}
	if data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return false
	}
	if data[1]&0x06 != 0 { // layer must be 00 for AAC
		return false
	}
	if data[2]>>2&0xF >= 13 { // reserved sampling_frequency_index
		return false
	}
	return true
}
