package audio

import "math"

// FadeCurve selects the crossfade gain shape.
type FadeCurve int

const (
	FadeLinear FadeCurve = iota
	FadeEqualPower
)

func (c FadeCurve) String() string {
	if c == FadeEqualPower {
		return "equalPower"
	}
	return "linear"
}

// ParseFadeCurve maps a config string to a curve, defaulting to equal power.
func ParseFadeCurve(s string) FadeCurve {
	if s == "linear" {
		return FadeLinear
	}
	return FadeEqualPower
}

// gains returns the outgoing and incoming gain for fade progress t in [0,1].
// At t=0 the output is outgoing-only, at t=1 incoming-only. Linear keeps the
// amplitude sum constant; equal power keeps the energy sum constant, which
// avoids the mid-fade dip on uncorrelated material.
func (c FadeCurve) gains(t float64) (out, in float32) {
	if t <= 0 {
		return 1, 0
	}
	if t >= 1 {
		return 0, 1
	}
	if c == FadeEqualPower {
		angle := t * math.Pi / 2
		return float32(math.Cos(angle)), float32(math.Sin(angle))
	}
	return float32(1 - t), float32(t)
}

// crossfade tracks an in-progress fade between two sample streams. The
// output pull path owns it exclusively; totalFrames is fixed at creation.
type crossfade struct {
	curve       FadeCurve
	totalFrames int64
	doneFrames  int64
}

// progress reports fade completion in [0,1].
func (x *crossfade) progress() float64 {
	if x.totalFrames <= 0 {
		return 1
	}
	p := float64(x.doneFrames) / float64(x.totalFrames)
	if p > 1 {
		p = 1
	}
	return p
}

func (x *crossfade) done() bool {
	return x.doneFrames >= x.totalFrames
}

// mixFrames blends frames of out and in (interleaved, channels wide) into
// dst, advancing the fade per frame. All three slices hold frames*channels
// samples. Samples are clamped to [-1,1].
func (x *crossfade) mixFrames(dst, out, in []float32, frames, channels int) {
	for f := 0; f < frames; f++ {
		og, ig := x.curve.gains(x.progress())
		for c := 0; c < channels; c++ {
			i := f*channels + c
			dst[i] = clampSample(out[i]*og + in[i]*ig)
		}
		x.doneFrames++
	}
}

func clampSample(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
