// Package mp3 adapts github.com/hajimehoshi/go-mp3 to the decode.Stream
// interface.
package mp3

import (
	"fmt"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/lyrebird-player/lyrebird/internal/decode"
)

// go-mp3 always produces 16-bit stereo output.
const (
	channels       = 2
	bytesPerSample = 2
	bytesPerFrame  = channels * bytesPerSample
)

type stream struct {
	file *os.File
	dec  *gomp3.Decoder

	sampleRate int
	buf        []byte
}

func (s *stream) SampleRate() int { return s.sampleRate }
func (s *stream) Channels() int   { return channels }

func (s *stream) Duration() float64 {
	n := s.dec.Length()
	if n <= 0 {
		return 0
	}
	return float64(n/bytesPerFrame) / float64(s.sampleRate)
}

func (s *stream) Close() error {
	return s.file.Close()
}

func (s *stream) ReadFrames(dst []float32) (int, error) {
	frames := len(dst) / channels
	if frames == 0 {
		return 0, nil
	}
	need := frames * bytesPerFrame
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]

	n, err := io.ReadFull(s.dec, s.buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		if n == 0 {
			return 0, fmt.Errorf("%w: %v", decode.ErrCorruptFrame, err)
		}
		// keep the partial read; report the error on the next call
	}

	samples := n / bytesPerSample
	for i := 0; i < samples; i++ {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = float32(v) / 32768.0
	}

	got := samples / channels
	if got == 0 {
		return 0, io.EOF
	}
	return got, nil
}

// Seek repositions within the decoded output. go-mp3 exposes seeking in
// bytes of decoded PCM, which maps exactly onto frames.
func (s *stream) Seek(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: %.3fs", decode.ErrSeekOutOfRange, seconds)
	}
	offset := int64(seconds*float64(s.sampleRate)) * bytesPerFrame
	if total := s.dec.Length(); total > 0 && offset > total {
		return fmt.Errorf("%w: %.3fs", decode.ErrSeekOutOfRange, seconds)
	}
	if _, err := s.dec.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", decode.ErrUnseekable, err)
	}
	return nil
}

// Opener opens MP3 files.
type Opener struct{}

// Sniff matches an ID3 tag or an MPEG audio sync word.
func (Opener) Sniff(header []byte) bool {
	if len(header) >= 3 && header[0] == 'I' && header[1] == 'D' && header[2] == '3' {
		return true
	}
	return len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0
}

func (Opener) Open(path string) (decode.Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", decode.ErrNotFound, err)
	}

	dec, err := gomp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", decode.ErrCorrupt, err)
	}

	return &stream{
		file:       file,
		dec:        dec,
		sampleRate: dec.SampleRate(),
		buf:        make([]byte, 8192),
	}, nil
}
