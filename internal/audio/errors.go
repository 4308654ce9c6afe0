package audio

import "fmt"

// OpenError means a track could not be opened at all: missing file,
// unsupported format, or an unreadable header. Fatal for that track; the
// engine reports it and advances.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open %s: %v", e.Path, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// DecodeError means decoding failed mid-stream beyond the corrupt-frame
// recovery threshold.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Path, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// SeekError means a seek request could not be honored. Playback position is
// unchanged.
type SeekError struct {
	Target float64
	Err    error
}

func (e *SeekError) Error() string { return fmt.Sprintf("seek to %.3fs: %v", e.Target, e.Err) }
func (e *SeekError) Unwrap() error { return e.Err }
