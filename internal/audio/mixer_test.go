package audio

import (
	"math"
	"testing"
)

func TestFadeCurveEndpoints(t *testing.T) {
	for _, curve := range []FadeCurve{FadeLinear, FadeEqualPower} {
		out, in := curve.gains(0)
		if out != 1 || in != 0 {
			t.Errorf("%v gains(0) = %v, %v, want 1, 0", curve, out, in)
		}
		out, in = curve.gains(1)
		if out != 0 || in != 1 {
			t.Errorf("%v gains(1) = %v, %v, want 0, 1", curve, out, in)
		}
	}
}

func TestFadeCurveMonotonic(t *testing.T) {
	for _, curve := range []FadeCurve{FadeLinear, FadeEqualPower} {
		prevOut, prevIn := curve.gains(0)
		for i := 1; i <= 100; i++ {
			out, in := curve.gains(float64(i) / 100)
			if out > prevOut {
				t.Fatalf("%v: outgoing gain rose at t=%.2f", curve, float64(i)/100)
			}
			if in < prevIn {
				t.Fatalf("%v: incoming gain fell at t=%.2f", curve, float64(i)/100)
			}
			prevOut, prevIn = out, in
		}
	}
}

func TestFadeLinearAmplitudeSum(t *testing.T) {
	for i := 0; i <= 100; i++ {
		out, in := FadeLinear.gains(float64(i) / 100)
		if sum := float64(out + in); math.Abs(sum-1) > 1e-6 {
			t.Fatalf("amplitude sum at t=%.2f = %v, want 1", float64(i)/100, sum)
		}
	}
}

func TestFadeEqualPowerEnergySum(t *testing.T) {
	for i := 0; i <= 100; i++ {
		out, in := FadeEqualPower.gains(float64(i) / 100)
		if sum := float64(out*out + in*in); math.Abs(sum-1) > 1e-6 {
			t.Fatalf("energy sum at t=%.2f = %v, want 1", float64(i)/100, sum)
		}
	}
}

func TestCrossfadeMixEndpoints(t *testing.T) {
	const frames, channels = 4, 2
	out := make([]float32, frames*channels)
	in := make([]float32, frames*channels)
	dst := make([]float32, frames*channels)
	for i := range out {
		out[i] = 0.5
		in[i] = -0.25
	}

	// fade far from done: first frame is outgoing-only
	x := &crossfade{curve: FadeLinear, totalFrames: 1 << 30}
	x.mixFrames(dst, out, in, frames, channels)
	if dst[0] != 0.5 {
		t.Errorf("at t=0 dst[0] = %v, want outgoing 0.5", dst[0])
	}

	// fade already complete: incoming-only
	x = &crossfade{curve: FadeLinear, totalFrames: 10, doneFrames: 10}
	x.mixFrames(dst, out, in, frames, channels)
	if dst[0] != -0.25 {
		t.Errorf("at t=1 dst[0] = %v, want incoming -0.25", dst[0])
	}
}

func TestCrossfadeMixClamps(t *testing.T) {
	out := []float32{0.9, -0.9}
	in := []float32{0.9, -0.9}
	dst := make([]float32, 2)

	x := &crossfade{curve: FadeEqualPower, totalFrames: 2, doneFrames: 1}
	x.mixFrames(dst, out, in, 1, 2)
	for i, v := range dst {
		if v > 1 || v < -1 {
			t.Errorf("dst[%d] = %v, outside [-1,1]", i, v)
		}
	}
}

func TestCrossfadeProgress(t *testing.T) {
	x := &crossfade{curve: FadeLinear, totalFrames: 100}
	if x.done() {
		t.Fatal("fresh fade reports done")
	}
	x.doneFrames = 50
	if p := x.progress(); p != 0.5 {
		t.Errorf("progress = %v, want 0.5", p)
	}
	x.doneFrames = 100
	if !x.done() {
		t.Error("completed fade not done")
	}
	x.doneFrames = 150
	if p := x.progress(); p != 1 {
		t.Errorf("progress past end = %v, want clamped to 1", p)
	}
}
