package audio

import (
	"io"
)

// FrameSource is the input side of the resampler: interleaved float32 frames
// at a native rate and channel layout. decode.Stream satisfies it.
type FrameSource interface {
	SampleRate() int
	Channels() int
	ReadFrames(dst []float32) (int, error)
}

// Resampler converts a source stream to the engine's fixed output rate and
// channel count using cubic interpolation over a four-frame window. It is
// stateful per stream: the interpolation history and the fractional read
// position carry across calls, so long-run output frame counts track the
// ideal rate ratio within one frame. Reset discards that state; it must be
// called after seeking the source.
type Resampler struct {
	src     FrameSource
	srcRate float64
	dstRate float64
	ratio   float64 // source frames consumed per output frame
	srcCh   int
	dstCh   int

	// interpolation window, frames[1]..frames[2] bracket the output position
	frames   [4][]float32
	hasFrame [4]bool
	pos      float64
	primed   bool
	eof      bool

	// chunked source reads, consumed one frame at a time
	readBuf  []float32
	readLen  int // frames available in readBuf
	readNext int // next frame index within readBuf
}

const resampleChunkFrames = 1024

// NewResampler wraps src, producing frames at dstRate with dstChannels.
func NewResampler(src FrameSource, dstRate, dstChannels int) *Resampler {
	r := &Resampler{
		src:     src,
		srcRate: float64(src.SampleRate()),
		dstRate: float64(dstRate),
		ratio:   float64(src.SampleRate()) / float64(dstRate),
		srcCh:   src.Channels(),
		dstCh:   dstChannels,
		readBuf: make([]float32, resampleChunkFrames*src.Channels()),
	}
	for i := range r.frames {
		r.frames[i] = make([]float32, dstChannels)
	}
	return r
}

// SampleRate returns the output rate.
func (r *Resampler) SampleRate() int { return int(r.dstRate) }

// Channels returns the output channel count.
func (r *Resampler) Channels() int { return r.dstCh }

// Reset discards interpolation history, the fractional position, and any
// buffered source frames. The source must already be positioned at the new
// location.
func (r *Resampler) Reset() {
	for i := range r.hasFrame {
		r.hasFrame[i] = false
	}
	r.pos = 0
	r.primed = false
	r.eof = false
	r.readLen = 0
	r.readNext = 0
}

// nextSourceFrame maps one source frame into dst at the output channel
// layout. Returns false at end of source.
func (r *Resampler) nextSourceFrame(dst []float32) (bool, error) {
	if r.readNext >= r.readLen {
		if r.eof {
			return false, nil
		}
		n, err := r.src.ReadFrames(r.readBuf)
		if err != nil && err != io.EOF {
			return false, err
		}
		if err == io.EOF {
			r.eof = true
		}
		r.readLen = n
		r.readNext = 0
		if n == 0 {
			return false, nil
		}
	}

	frame := r.readBuf[r.readNext*r.srcCh : (r.readNext+1)*r.srcCh]
	r.readNext++

	switch {
	case r.srcCh == r.dstCh:
		copy(dst, frame)
	case r.srcCh == 1:
		for c := 0; c < r.dstCh; c++ {
			dst[c] = frame[0]
		}
	case r.srcCh > r.dstCh:
		copy(dst, frame[:r.dstCh])
	default:
		for c := 0; c < r.dstCh; c++ {
			dst[c] = frame[c%r.srcCh]
		}
	}
	return true, nil
}

// shift advances the interpolation window by one source frame.
func (r *Resampler) shift() (bool, error) {
	copy(r.frames[0], r.frames[1])
	copy(r.frames[1], r.frames[2])
	copy(r.frames[2], r.frames[3])
	r.hasFrame[0] = r.hasFrame[1]
	r.hasFrame[1] = r.hasFrame[2]
	r.hasFrame[2] = r.hasFrame[3]

	ok, err := r.nextSourceFrame(r.frames[3])
	if err != nil {
		return false, err
	}
	r.hasFrame[3] = ok
	return r.hasFrame[1] && r.hasFrame[2], nil
}

func (r *Resampler) prime() error {
	for i := 0; i < 4; i++ {
		ok, err := r.nextSourceFrame(r.frames[i])
		if err != nil {
			return err
		}
		if !ok {
			// short stream; duplicate the last valid frame
			if i == 0 {
				return io.EOF
			}
			for j := i; j < 4; j++ {
				copy(r.frames[j], r.frames[i-1])
				r.hasFrame[j] = true
			}
			break
		}
		r.hasFrame[i] = true
	}
	r.primed = true
	return nil
}

// ReadFrames fills dst with interleaved output frames and returns the number
// produced. len(dst) must be a multiple of Channels(). Returns io.EOF once
// the source is exhausted.
func (r *Resampler) ReadFrames(dst []float32) (int, error) {
	want := len(dst) / r.dstCh
	if want == 0 {
		return 0, nil
	}

	if !r.primed {
		if err := r.prime(); err != nil {
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}
	}

	written := 0
	for written < want {
		for r.pos >= 1.0 {
			r.pos -= 1.0
			ok, err := r.shift()
			if err != nil {
				return written, err
			}
			if !ok {
				if written == 0 {
					return 0, io.EOF
				}
				return written, io.EOF
			}
		}

		alpha := float32(r.pos)
		for c := 0; c < r.dstCh; c++ {
			y0 := r.frames[1][c]
			if r.hasFrame[0] {
				y0 = r.frames[0][c]
			}
			y1 := r.frames[1][c]
			y2 := r.frames[2][c]
			y3 := y2
			if r.hasFrame[3] {
				y3 = r.frames[3][c]
			}
			dst[written*r.dstCh+c] = cubicInterpolate(y0, y1, y2, y3, alpha)
		}

		written++
		r.pos += r.ratio
	}

	return written, nil
}

// cubicInterpolate evaluates a Catmull-Rom style cubic through four
// neighboring samples at fractional position t in [0,1).
func cubicInterpolate(y0, y1, y2, y3, t float32) float32 {
	a := y3 - y2 - y0 + y1
	b := y0 - y1 - a
	c := y2 - y0
	d := y1
	return ((a*t+b)*t+c)*t + d
}
