// Package avtk is a small audio/video toolkit built around demo
// programs: encode, decode, resample, probe, mux and play media with a
// handful of library calls per program.
//
// Key pieces include:
//   - Video/Audio encoders and decoders (H.264, AAC-LC)
//   - Synthetic pattern sources plus raw YUV/PCM file sources
//   - An FLV muxer with timestamp-interleaved audio/video sessions
//   - An FLV prober and ADTS/Annex B bitstream helpers
//   - RTP packetizers/depacketizers for H.264 and AAC
//   - SDL3 playback for raw video frames and PCM audio
//
// # Architecture
//
//	Encode: VideoSource/AudioSource -> Encoder -> EncodePipeline -> Session -> MuxSink
//	Decode: ADTS/Annex B reader -> Decoder -> Frame/Samples
//	Stream: Encoder -> RTPPacketizer -> UDP or WebRTC track
//	Play:   VideoSource -> VideoPlayer, PCM reader -> DoubleBuffer -> AudioPlayer
//
// # Native Libraries
//
// Codec and playback bindings load shared libraries at runtime with
// purego (CGO_ENABLED=0): OpenH264, fdk-aac, libsamplerate and SDL3.
// Each library is optional; IsH264Available and friends report what
// loaded, and the path can be pinned with OPENH264_LIB_PATH,
// FDK_AAC_LIB_PATH, SAMPLERATE_LIB_PATH or SDL3_LIB_PATH.
//
// Containers and transport stay in pure Go: yutopp/go-flv for FLV
// tags, yutopp/go-rtmp for ingest, pion/rtp and pion/webrtc for
// streaming.
//
// # Supported Codecs
//
// Video: H.264 (OpenH264, Annex B in and out)
// Audio: AAC-LC (fdk-aac, raw frames; ADTS framing is done here)
// Availability depends on which native libraries are present at runtime.
package avtk
