// Package vorbis adapts github.com/jfreymuth/oggvorbis to the decode.Stream
// interface.
package vorbis

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"

	"github.com/lyrebird-player/lyrebird/internal/decode"
)

type stream struct {
	file *os.File
	dec  *oggvorbis.Reader

	sampleRate int
	channels   int
}

func (s *stream) SampleRate() int { return s.sampleRate }
func (s *stream) Channels() int   { return s.channels }

func (s *stream) Duration() float64 {
	n := s.dec.Length()
	if n <= 0 {
		return 0
	}
	return float64(n) / float64(s.sampleRate)
}

func (s *stream) Close() error {
	return s.file.Close()
}

func (s *stream) ReadFrames(dst []float32) (int, error) {
	want := len(dst) / s.channels * s.channels
	if want == 0 {
		return 0, nil
	}

	// Read returns the number of float32 values written, interleaved.
	n, err := s.dec.Read(dst[:want])
	if n == 0 {
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", decode.ErrCorruptFrame, err)
		}
		return 0, nil
	}
	return n / s.channels, nil
}

func (s *stream) Seek(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: %.3fs", decode.ErrSeekOutOfRange, seconds)
	}
	target := int64(seconds * float64(s.sampleRate))
	if total := s.dec.Length(); total > 0 && target > total {
		return fmt.Errorf("%w: %.3fs", decode.ErrSeekOutOfRange, seconds)
	}
	if err := s.dec.SetPosition(target); err != nil {
		return fmt.Errorf("%w: %v", decode.ErrUnseekable, err)
	}
	return nil
}

// Opener opens Ogg Vorbis files.
type Opener struct{}

// Sniff matches the Ogg container capture pattern.
func (Opener) Sniff(header []byte) bool {
	return len(header) >= 4 && bytes.Equal(header[0:4], []byte("OggS"))
}

func (Opener) Open(path string) (decode.Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", decode.ErrNotFound, err)
	}

	dec, err := oggvorbis.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", decode.ErrCorrupt, err)
	}

	return &stream{
		file:       file,
		dec:        dec,
		sampleRate: dec.SampleRate(),
		channels:   dec.Channels(),
	}, nil
}
