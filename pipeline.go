package avtk

import (
	"fmt"
	"io"
	"time"
)

// nanoTB is the time base Budget durations are compared in.
var nanoTB = R(1, 1e9)

// VideoEncodePipeline pulls raw frames from a source, encodes them,
// and hands packets to a sink. It owns the stream's clock: frames get
// consecutive PTS in the encoder's time base regardless of what the
// source stamped.
type VideoEncodePipeline struct {
	source VideoSource
	enc    VideoEncoder
	desc   *StreamDesc

	timeBase Rational
	budget   time.Duration
	nextPTS  int64
	draining bool
	finished bool
}

// NewVideoEncodePipeline wires a source to an encoder. budget bounds
// the stream duration; 0 means run until the source ends.
func NewVideoEncodePipeline(source VideoSource, enc VideoEncoder, budget time.Duration) *VideoEncodePipeline {
	cfg := enc.Config()
	return &VideoEncodePipeline{
		source: source,
		enc:    enc,
		desc: &StreamDesc{
			Kind:       StreamKindVideo,
			VideoCodec: enc.Codec(),
			Width:      cfg.Width,
			Height:     cfg.Height,
			FPS:        cfg.FPS,
			SPS:        enc.GetSPS(),
			PPS:        enc.GetPPS(),
			BitrateBps: cfg.BitrateBps,
		},
		timeBase: cfg.TimeBase(),
		budget:   budget,
	}
}

// Desc returns the stream description for the sink's header.
func (p *VideoEncodePipeline) Desc() *StreamDesc { return p.desc }

// NextPTS returns the PTS the next frame would get, in TimeBase units.
func (p *VideoEncodePipeline) NextPTS() int64 { return p.nextPTS }

// TimeBase returns the encoder's time base.
func (p *VideoEncodePipeline) TimeBase() Rational { return p.timeBase }

// Produce advances the pipeline by one step: encode one frame or
// drain one packet. done reports that the stream is complete.
func (p *VideoEncodePipeline) Produce(sink MuxSink) (done bool, err error) {
	if p.finished {
		return true, nil
	}
	if !p.draining && p.budget > 0 &&
		CompareTS(p.nextPTS, p.timeBase, p.budget.Nanoseconds(), nanoTB) >= 0 {
		p.draining = true
	}

	if p.draining {
		pkt, err := p.enc.Flush()
		if err == io.EOF {
			p.finished = true
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("video flush failed: %w", err)
		}
		if pkt == nil {
			return false, nil
		}
		return false, p.deliver(sink, pkt)
	}

	frame, err := p.source.NextFrame()
	if err == io.EOF {
		p.draining = true
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("video source failed: %w", err)
	}

	frame.PTS = p.nextPTS
	p.nextPTS++

	pkt, err := p.enc.Encode(frame)
	if err != nil {
		return false, fmt.Errorf("video encode failed: %w", err)
	}
	if pkt == nil {
		return false, nil
	}
	return false, p.deliver(sink, pkt)
}

func (p *VideoEncodePipeline) deliver(sink MuxSink, pkt *Packet) error {
	pkt.StreamIndex = p.desc.Index
	if err := sink.WritePacket(pkt); err != nil {
		return fmt.Errorf("video write failed: %w", err)
	}
	return nil
}

// AudioEncodePipeline pulls PCM blocks sized to the encoder's frame
// and hands packets to a sink.
type AudioEncodePipeline struct {
	source AudioSource
	enc    AudioEncoder
	desc   *StreamDesc

	timeBase Rational
	budget   time.Duration
	nextPTS  int64
	draining bool
	finished bool
}

// NewAudioEncodePipeline wires a source to an encoder. budget bounds
// the stream duration; 0 means run until the source ends.
func NewAudioEncodePipeline(source AudioSource, enc AudioEncoder, budget time.Duration) *AudioEncodePipeline {
	cfg := enc.Config()
	return &AudioEncodePipeline{
		source: source,
		enc:    enc,
		desc: &StreamDesc{
			Kind:       StreamKindAudio,
			AudioCodec: enc.Codec(),
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			CodecData:  enc.CodecData(),
			BitrateBps: cfg.BitrateBps,
		},
		timeBase: cfg.TimeBase(),
		budget:   budget,
	}
}

// Desc returns the stream description for the sink's header.
func (p *AudioEncodePipeline) Desc() *StreamDesc { return p.desc }

// NextPTS returns the PTS the next block would get, in TimeBase units.
func (p *AudioEncodePipeline) NextPTS() int64 { return p.nextPTS }

// TimeBase returns the encoder's time base.
func (p *AudioEncodePipeline) TimeBase() Rational { return p.timeBase }

// Produce advances the pipeline by one step: encode one block or
// drain one packet. done reports that the stream is complete.
func (p *AudioEncodePipeline) Produce(sink MuxSink) (done bool, err error) {
	if p.finished {
		return true, nil
	}
	if !p.draining && p.budget > 0 &&
		CompareTS(p.nextPTS, p.timeBase, p.budget.Nanoseconds(), nanoTB) >= 0 {
		p.draining = true
	}

	if p.draining {
		pkt, err := p.enc.Flush()
		if err == io.EOF {
			p.finished = true
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("audio flush failed: %w", err)
		}
		if pkt == nil {
			return false, nil
		}
		return false, p.deliver(sink, pkt)
	}

	block, err := p.source.NextBlock(p.enc.FrameSize())
	if err == io.EOF {
		p.draining = true
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("audio source failed: %w", err)
	}

	block.PTS = p.nextPTS
	p.nextPTS += int64(block.SampleCount)

	pkt, err := p.enc.Encode(block)
	if err != nil {
		return false, fmt.Errorf("audio encode failed: %w", err)
	}
	if pkt == nil {
		return false, nil
	}
	return false, p.deliver(sink, pkt)
}

func (p *AudioEncodePipeline) deliver(sink MuxSink, pkt *Packet) error {
	pkt.StreamIndex = p.desc.Index
	if err := sink.WritePacket(pkt); err != nil {
		return fmt.Errorf("audio write failed: %w", err)
	}
	return nil
}

// Session drives one or two encode pipelines into a shared sink,
// interleaved by presentation time so the output stays well ordered
// for streaming.
type Session struct {
	sink  MuxSink
	video *VideoEncodePipeline
	audio *AudioEncodePipeline
}

// NewSession creates a session. Either pipeline may be nil, not both.
func NewSession(sink MuxSink, video *VideoEncodePipeline, audio *AudioEncodePipeline) (*Session, error) {
	if sink == nil {
		return nil, fmt.Errorf("session needs a sink")
	}
	if video == nil && audio == nil {
		return nil, fmt.Errorf("session needs at least one pipeline")
	}
	return &Session{sink: sink, video: video, audio: audio}, nil
}

// Run writes the header, steps whichever pipeline is furthest behind
// until both finish, then writes the trailer. Video goes first on
// ties so a keyframe precedes audio with the same timestamp.
func (s *Session) Run() error {
	var streams []*StreamDesc
	if s.video != nil {
		streams = append(streams, s.video.Desc())
	}
	if s.audio != nil {
		streams = append(streams, s.audio.Desc())
	}
	if err := s.sink.WriteHeader(streams); err != nil {
		return fmt.Errorf("write header failed: %w", err)
	}

	videoActive := s.video != nil
	audioActive := s.audio != nil
	for videoActive || audioActive {
		useVideo := videoActive
		if videoActive && audioActive {
			useVideo = CompareTS(s.video.NextPTS(), s.video.TimeBase(),
				s.audio.NextPTS(), s.audio.TimeBase()) <= 0
		}
		if useVideo {
			done, err := s.video.Produce(s.sink)
			if err != nil {
				return err
			}
			if done {
				videoActive = false
			}
		} else {
			done, err := s.audio.Produce(s.sink)
			if err != nil {
				return err
			}
			if done {
				audioActive = false
			}
		}
	}

	if err := s.sink.WriteTrailer(); err != nil {
		return fmt.Errorf("write trailer failed: %w", err)
	}
	return nil
}
