// Package decode provides the decoder adapter layer: format probing and a
// registry of per-format openers that turn audio files into PCM streams in
// their native sample rate and channel layout.
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Sentinel errors for the decode layer. Adapters wrap these so callers can
// classify failures with errors.Is.
var (
	// ErrNotFound indicates the file does not exist or cannot be read.
	ErrNotFound = errors.New("decode: file not found")
	// ErrUnsupportedFormat indicates no registered opener recognizes the file.
	ErrUnsupportedFormat = errors.New("decode: unsupported format")
	// ErrCorrupt indicates the container/header is malformed beyond use.
	ErrCorrupt = errors.New("decode: corrupt stream")
	// ErrCorruptFrame indicates a malformed unit mid-stream. Callers may skip
	// it and continue reading.
	ErrCorruptFrame = errors.New("decode: corrupt frame")
	// ErrUnseekable indicates the stream does not support repositioning.
	ErrUnseekable = errors.New("decode: stream is not seekable")
	// ErrSeekOutOfRange indicates the seek target lies outside the stream.
	ErrSeekOutOfRange = errors.New("decode: seek target out of range")
)

// Stream is a decoded PCM stream in the file's native format.
type Stream interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (1=mono, 2=stereo, ...).
	Channels() int
	// ReadFrames fills dst with interleaved float32 samples in [-1,1] and
	// returns the number of complete frames written. len(dst) must be a
	// multiple of Channels(). Returns io.EOF when the stream is finished.
	ReadFrames(dst []float32) (int, error)
	// Seek repositions the stream to the given time in seconds from the
	// start. Returns ErrUnseekable or ErrSeekOutOfRange on failure, leaving
	// the position unchanged.
	Seek(seconds float64) error
	// Close releases any resources.
	Close() error
}

// Durationer is implemented by streams that know their total length.
type Durationer interface {
	// Duration in seconds.
	Duration() float64
}

// LoopPointser is implemented by streams whose container carries loop
// metadata (loop_start/loop_end tags in tracker and game-rip files).
type LoopPointser interface {
	// LoopPoints returns the loop region in seconds; ok is false when the
	// stream has no usable loop tags.
	LoopPoints() (start, end float64, ok bool)
}

// Opener constructs a Stream from a file path.
type Opener interface {
	Open(path string) (Stream, error)
	// Sniff reports whether the header bytes look like this format.
	Sniff(header []byte) bool
}

// SniffLen is the number of leading bytes handed to Opener.Sniff.
const SniffLen = 16

type registered struct {
	format string
	opener Opener
}

// Registry holds openers by format key ("wav", "mp3", ...), probed in
// registration order. A fallback opener (typically ffmpeg) catches formats
// no sniffer recognizes.
type Registry struct {
	mtx      sync.Mutex
	openers  []registered
	fallback Opener
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an opener for a format key. Later registrations of the same
// key replace earlier ones.
func (r *Registry) Register(format string, o Opener) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for i := range r.openers {
		if r.openers[i].format == format {
			r.openers[i].opener = o
			return
		}
	}
	r.openers = append(r.openers, registered{format: format, opener: o})
}

// SetFallback sets the opener used when no sniffer matches.
func (r *Registry) SetFallback(o Opener) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.fallback = o
}

// Get returns the opener registered for a format key.
func (r *Registry) Get(format string) (Opener, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, reg := range r.openers {
		if reg.format == format {
			return reg.opener, true
		}
	}
	return nil, false
}

// Open probes the file and opens it with the first matching opener. It
// returns the stream and the matched format key.
func (r *Registry) Open(path string) (Stream, string, error) {
	header, err := readHeader(path)
	if err != nil {
		return nil, "", err
	}

	r.mtx.Lock()
	openers := make([]registered, len(r.openers))
	copy(openers, r.openers)
	fallback := r.fallback
	r.mtx.Unlock()

	for _, reg := range openers {
		if !reg.opener.Sniff(header) {
			continue
		}
		stream, err := reg.opener.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("decode %s as %s: %w", path, reg.format, err)
		}
		return stream, reg.format, nil
	}

	if fallback != nil {
		stream, err := fallback.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("decode %s: %w", path, err)
		}
		return stream, "fallback", nil
	}

	return nil, "", fmt.Errorf("decode %s: %w", path, ErrUnsupportedFormat)
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer f.Close()

	header := make([]byte, SniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return header[:n], nil
}
