package avtk

import (
	"fmt"
	"io"
	"os"
)

// VideoSource yields raw frames in presentation order. NextFrame
// returns io.EOF when the stream ends.
type VideoSource interface {
	NextFrame() (*VideoFrame, error)
	io.Closer
}

// AudioSource yields blocks of interleaved PCM. NextBlock returns
// io.EOF when the stream ends; a final short block is zero padded to
// the requested count so encoders always see whole frames.
type AudioSource interface {
	NextBlock(sampleCount int) (*AudioSamples, error)
	io.Closer
}

// YUVFileSource reads tightly packed I420 frames, the layout .yuv
// files use.
type YUVFileSource struct {
	r      io.Reader
	closer io.Closer
	width  int
	height int
	index  int64
}

// NewYUVFileSource opens a raw .yuv file of the given dimensions.
func NewYUVFileSource(path string, width, height int) (*YUVFileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open yuv file: %w", err)
	}
	s, err := NewYUVSource(f, width, height)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewYUVSource reads packed I420 frames from r.
func NewYUVSource(r io.Reader, width, height int) (*YUVFileSource, error) {
	if err := validateDimensions(width, height); err != nil {
		return nil, err
	}
	return &YUVFileSource{r: r, width: width, height: height}, nil
}

func (s *YUVFileSource) NextFrame() (*VideoFrame, error) {
	frame := NewVideoFrame(s.width, s.height, PixelFormatI420)
	for i, plane := range frame.Data {
		_, err := io.ReadFull(s.r, plane)
		if err == io.EOF && i == 0 {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("truncated yuv frame %d: %w", s.index, err)
		}
	}
	frame.PTS = s.index
	s.index++
	return frame, nil
}

func (s *YUVFileSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// PCMFileSource reads interleaved PCM samples.
type PCMFileSource struct {
	r          io.Reader
	closer     io.Closer
	sampleRate int
	channels   int
	format     AudioFormat
	samplePos  int64
	eof        bool
}

// NewPCMFileSource opens a headerless PCM file.
func NewPCMFileSource(path string, sampleRate, channels int, format AudioFormat) (*PCMFileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcm file: %w", err)
	}
	s, err := NewPCMSource(f, sampleRate, channels, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewPCMSource reads interleaved PCM from r.
func NewPCMSource(r io.Reader, sampleRate, channels int, format AudioFormat) (*PCMFileSource, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid pcm parameters: rate %d, channels %d", sampleRate, channels)
	}
	return &PCMFileSource{
		r:          r,
		sampleRate: sampleRate,
		channels:   channels,
		format:     format,
	}, nil
}

func (s *PCMFileSource) NextBlock(sampleCount int) (*AudioSamples, error) {
	if sampleCount <= 0 {
		return nil, fmt.Errorf("invalid block size %d", sampleCount)
	}
	if s.eof {
		return nil, io.EOF
	}

	block := NewAudioSamples(sampleCount, s.sampleRate, s.channels, s.format)
	n, err := io.ReadFull(s.r, block.Data)
	if err == io.EOF {
		s.eof = true
		return nil, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		// Keep the tail, padded with silence.
		s.eof = true
		frameBytes := s.channels * s.format.BytesPerSample()
		whole := n / frameBytes
		clear(block.Data[whole*frameBytes:])
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("pcm read failed: %w", err)
	}

	block.PTS = s.samplePos
	s.samplePos += int64(sampleCount)
	return block, nil
}

func (s *PCMFileSource) SampleRate() int { return s.sampleRate }

func (s *PCMFileSource) Channels() int { return s.channels }

func (s *PCMFileSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
