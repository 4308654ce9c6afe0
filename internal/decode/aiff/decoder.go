// Package aiff adapts github.com/go-audio/aiff to the decode.Stream interface.
package aiff

import (
	"bytes"
	"fmt"
	"io"
	"os"

	goaiff "github.com/go-audio/aiff"
	"github.com/go-audio/audio"

	"github.com/lyrebird-player/lyrebird/internal/decode"
)

type stream struct {
	path string
	file *os.File
	dec  *goaiff.Decoder

	sampleRate int
	channels   int
	bitDepth   int
	duration   float64

	buf *audio.IntBuffer
}

func (s *stream) SampleRate() int   { return s.sampleRate }
func (s *stream) Channels() int     { return s.channels }
func (s *stream) Duration() float64 { return s.duration }

func (s *stream) Close() error {
	return s.file.Close()
}

func (s *stream) ReadFrames(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	want := len(dst) / s.channels * s.channels
	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w: %v", decode.ErrCorruptFrame, err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	scale := float32(int64(1) << (s.bitDepth - 1))
	for i := 0; i < n; i++ {
		dst[i] = float32(s.buf.Data[i]) / scale
	}
	return n / s.channels, nil
}

// Seek re-opens the file and skips decoded frames up to the target, same as
// the wav adapter: no random access into the sound data chunk.
func (s *stream) Seek(seconds float64) error {
	if seconds < 0 || (s.duration > 0 && seconds > s.duration) {
		return fmt.Errorf("%w: %.3fs", decode.ErrSeekOutOfRange, seconds)
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", decode.ErrUnseekable, err)
	}
	dec := goaiff.NewDecoder(file)
	if err := dec.FwdToPCM(); err != nil {
		file.Close()
		return fmt.Errorf("%w: %v", decode.ErrCorrupt, err)
	}

	target := int64(seconds * float64(s.sampleRate))
	skip := &audio.IntBuffer{
		Format: s.buf.Format,
		Data:   make([]int, 4096*s.channels),
	}
	var skipped int64
	for skipped < target {
		remain := (target - skipped) * int64(s.channels)
		if remain < int64(len(skip.Data)) {
			skip.Data = skip.Data[:remain]
		}
		n, err := dec.PCMBuffer(skip)
		if err != nil && err != io.EOF {
			file.Close()
			return fmt.Errorf("%w: %v", decode.ErrCorruptFrame, err)
		}
		if n == 0 {
			break
		}
		skipped += int64(n / s.channels)
	}

	s.file.Close()
	s.file = file
	s.dec = dec
	return nil
}

// Opener opens AIFF files.
type Opener struct{}

// Sniff matches the FORM/AIFF (or AIFC) container magic.
func (Opener) Sniff(header []byte) bool {
	if len(header) < 12 || !bytes.Equal(header[0:4], []byte("FORM")) {
		return false
	}
	return bytes.Equal(header[8:12], []byte("AIFF")) || bytes.Equal(header[8:12], []byte("AIFC"))
}

func (Opener) Open(path string) (decode.Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", decode.ErrNotFound, err)
	}

	dec := goaiff.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: not a valid aiff file", decode.ErrCorrupt)
	}

	var duration float64
	if d, err := dec.Duration(); err == nil {
		duration = d.Seconds()
	}

	if err := dec.FwdToPCM(); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", decode.ErrCorrupt, err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		file.Close()
		return nil, fmt.Errorf("%w: zero channels", decode.ErrCorrupt)
	}

	return &stream{
		path:       path,
		file:       file,
		dec:        dec,
		sampleRate: int(dec.SampleRate),
		channels:   channels,
		bitDepth:   int(dec.BitDepth),
		duration:   duration,
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  int(dec.SampleRate),
			},
			Data: make([]int, 4096*channels),
		},
	}, nil
}
