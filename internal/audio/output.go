package audio

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hajimehoshi/oto/v2"
)

const outputBitDepth = 2 // 16-bit samples

// MaxPullFrames bounds a single device pull. Read caps larger requests here,
// and the engine sizes its render scratch buffers to match.
const MaxPullFrames = 16384

// Renderer produces interleaved float32 output samples on demand. Render
// must fill all of dst (silence included) and must not block.
type Renderer interface {
	Render(dst []float32)
}

// OtoOutput owns the audio device session for the lifetime of the engine.
// The device pulls samples through Read on its own thread; Read renders
// float frames from the engine, applies volume, and emits 16-bit PCM. All
// buffers are allocated up front so the pull path stays allocation-free.
type OtoOutput struct {
	context  *oto.Context
	player   oto.Player
	renderer Renderer

	// volume/mute truth lives on the transport so external observers see
	// the same values the device applies
	transport *Transport

	sampleRate int
	channels   int

	analyzer *Analyzer
	floatBuf []float32
	closed   atomic.Bool
}

// NewOtoOutput opens the device at the engine's output format and starts
// pulling immediately. The device session is held until Close.
func NewOtoOutput(sampleRate, channels int, renderer Renderer, transport *Transport) (*OtoOutput, error) {
	ctx, ready, err := oto.NewContext(sampleRate, channels, outputBitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	o := &OtoOutput{
		context:    ctx,
		renderer:   renderer,
		transport:  transport,
		sampleRate: sampleRate,
		channels:   channels,
		analyzer:   NewAnalyzer(sampleRate, channels),
		floatBuf:   make([]float32, MaxPullFrames*channels),
	}
	o.player = ctx.NewPlayer(o)
	o.player.Play()
	return o, nil
}

// Read implements io.Reader for the device pull. It always yields a full
// buffer; starvation shows up as silence rendered by the engine, never as a
// short read or a block.
func (o *OtoOutput) Read(p []byte) (int, error) {
	if o.closed.Load() {
		return 0, io.EOF
	}

	bytesPerFrame := outputBitDepth * o.channels
	frames := len(p) / bytesPerFrame
	samples := frames * o.channels
	if samples > len(o.floatBuf) {
		samples = len(o.floatBuf)
		frames = samples / o.channels
	}
	if frames == 0 {
		return 0, nil
	}

	buf := o.floatBuf[:samples]
	o.renderer.Render(buf)

	if o.analyzer != nil {
		o.analyzer.ProcessSamples(buf)
	}

	gain := float32(1.0)
	if snap := o.transport.Load(); snap != nil {
		if snap.Muted {
			gain = 0
		} else {
			gain = float32(snap.Volume)
		}
	}

	for i := 0; i < samples; i++ {
		v := clampSample(buf[i]*gain) * 32767
		s := int16(v)
		p[2*i] = byte(s)
		p[2*i+1] = byte(s >> 8)
	}
	return frames * bytesPerFrame, nil
}

// SampleRate returns the device rate.
func (o *OtoOutput) SampleRate() int { return o.sampleRate }

// Channels returns the device channel count.
func (o *OtoOutput) Channels() int { return o.channels }

// Analyzer exposes the FFT analyzer fed from the pull path.
func (o *OtoOutput) Analyzer() *Analyzer { return o.analyzer }

// Close stops the pull and releases the device session.
func (o *OtoOutput) Close() error {
	o.closed.Store(true)
	if o.player != nil {
		return o.player.Close()
	}
	return nil
}

var _ io.Reader = (*OtoOutput)(nil)
