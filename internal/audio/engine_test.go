package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lyrebird-player/lyrebird/internal/decode"
	"github.com/lyrebird-player/lyrebird/internal/types"
)

const testRate = 8000

// memStream is an in-memory decode.Stream whose sample values encode their
// own frame index, so rendered output can be checked for timing.
type memStream struct {
	mu       sync.Mutex
	rate     int
	channels int
	total    int64
	pos      int64

	// frames at which ReadFrames reports a corrupt unit before continuing
	corruptFrom  int64
	corruptCount int
	corruptLeft  int

	// when non-nil, ReadFrames blocks until the channel closes
	gate chan struct{}

	unseekable bool
}

func (m *memStream) SampleRate() int   { return m.rate }
func (m *memStream) Channels() int     { return m.channels }
func (m *memStream) Duration() float64 { return float64(m.total) / float64(m.rate) }
func (m *memStream) Close() error      { return nil }

// sampleAt encodes a frame index as a small float.
func sampleAt(frame int64) float32 {
	return float32(frame) / 1e7
}

func frameOf(sample float32) int64 {
	return int64(math.Round(float64(sample) * 1e7))
}

func (m *memStream) ReadFrames(dst []float32) (int, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.corruptLeft > 0 && m.pos >= m.corruptFrom {
		m.corruptLeft--
		return 0, fmt.Errorf("%w: bad unit", decode.ErrCorruptFrame)
	}

	frames := len(dst) / m.channels
	if m.pos >= m.total {
		return 0, io.EOF
	}
	if remain := m.total - m.pos; int64(frames) > remain {
		frames = int(remain)
	}
	for i := 0; i < frames; i++ {
		v := sampleAt(m.pos + int64(i))
		for c := 0; c < m.channels; c++ {
			dst[i*m.channels+c] = v
		}
	}
	m.pos += int64(frames)
	var err error
	if m.pos >= m.total {
		err = io.EOF
	}
	return frames, err
}

func (m *memStream) Seek(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unseekable {
		return decode.ErrUnseekable
	}
	target := int64(seconds * float64(m.rate))
	if target < 0 || target > m.total {
		return decode.ErrSeekOutOfRange
	}
	m.pos = target
	m.corruptLeft = m.corruptCount
	return nil
}

// memOpener serves prepared streams by path.
type memOpener struct {
	mu      sync.Mutex
	streams map[string]func() *memStream
}

func (o *memOpener) Sniff(header []byte) bool { return true }

func (o *memOpener) Open(path string) (decode.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	mk, ok := o.streams[path]
	if !ok {
		return nil, decode.ErrUnsupportedFormat
	}
	return mk(), nil
}

type testHarness struct {
	engine *Engine
	opener *memOpener
	dir    string

	mu     sync.Mutex
	ended  []types.TrackDescriptor
	failed []error
}

func newHarness(t *testing.T, cfg EngineConfig) *testHarness {
	t.Helper()
	opener := &memOpener{streams: map[string]func() *memStream{}}
	reg := decode.NewRegistry()
	reg.SetFallback(opener)

	h := &testHarness{
		engine: NewEngine(cfg, reg),
		opener: opener,
		dir:    t.TempDir(),
	}
	h.engine.SetOnTrackEnd(func(track types.TrackDescriptor) {
		h.mu.Lock()
		h.ended = append(h.ended, track)
		h.mu.Unlock()
	})
	h.engine.SetOnTrackError(func(track types.TrackDescriptor, err error) {
		h.mu.Lock()
		h.failed = append(h.failed, err)
		h.mu.Unlock()
	})
	go h.engine.Run()
	t.Cleanup(func() { h.engine.Close() })
	return h
}

func testConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.SampleRate = testRate
	cfg.Channels = 2
	cfg.RingMs = 200
	cfg.DecodeAheadMs = 150
	return cfg
}

// addTrack registers a stream factory and returns its descriptor. The
// backing file only exists so the registry's header probe succeeds.
func (h *testHarness) addTrack(t *testing.T, name string, mk func() *memStream) types.TrackDescriptor {
	t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, []byte("testdata-header-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.opener.mu.Lock()
	h.opener.streams[path] = mk
	h.opener.mu.Unlock()
	return types.TrackDescriptor{ID: name, Path: path}
}

func (h *testHarness) endedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ended)
}

func (h *testHarness) failedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.failed)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// render pulls one output buffer the way the device would.
func (h *testHarness) render(frames int) []float32 {
	buf := make([]float32, frames*2)
	h.engine.Render(buf)
	return buf
}

func TestEnginePlaybackMonotonic(t *testing.T) {
	h := newHarness(t, testConfig())
	track := h.addTrack(t, "a", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate} // 1s
	})

	h.engine.Play(track)
	waitFor(t, "playing state", func() bool {
		return h.engine.Transport().Load().State == StatePlaying
	})

	var lastFrame int64 = -1
	var lastPos float64
	for i := 0; i < 200 && h.endedCount() == 0; i++ {
		buf := h.render(256)
		for f := 0; f < 256; f++ {
			v := buf[f*2]
			if v == 0 {
				continue // silence while buffering or draining
			}
			frame := frameOf(v)
			if frame <= lastFrame {
				t.Fatalf("frame order violated: %d after %d", frame, lastFrame)
			}
			lastFrame = frame
		}
		if pos := h.engine.Position(); pos < lastPos {
			t.Fatalf("position regressed: %v after %v", pos, lastPos)
		} else {
			lastPos = pos
		}
		time.Sleep(time.Millisecond)
	}

	waitFor(t, "track end", func() bool {
		h.render(256)
		return h.endedCount() == 1
	})
	waitFor(t, "stopped state", func() bool {
		return h.engine.Transport().Load().State == StateStopped
	})
}

func TestEnginePauseHoldsPosition(t *testing.T) {
	h := newHarness(t, testConfig())
	track := h.addTrack(t, "a", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate * 10}
	})

	h.engine.Play(track)
	waitFor(t, "audible output", func() bool {
		buf := h.render(128)
		return buf[0] != 0
	})

	h.engine.Pause()
	waitFor(t, "paused state", func() bool {
		return h.engine.Transport().Load().State == StatePaused
	})

	posBefore := h.engine.Position()
	for i := 0; i < 10; i++ {
		buf := h.render(256)
		for _, v := range buf {
			if v != 0 {
				t.Fatal("paused engine produced non-silent output")
			}
		}
	}
	if pos := h.engine.Position(); pos != posBefore {
		t.Errorf("position moved while paused: %v -> %v", posBefore, pos)
	}

	h.engine.Resume()
	waitFor(t, "audible output after resume", func() bool {
		buf := h.render(128)
		return buf[0] != 0
	})
}

func TestEngineSeekLandsNearTarget(t *testing.T) {
	h := newHarness(t, testConfig())
	track := h.addTrack(t, "a", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate * 10}
	})

	h.engine.Play(track)
	waitFor(t, "audible output", func() bool { return h.render(128)[0] != 0 })

	if err := h.engine.Seek(5.0); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "seek completion", func() bool {
		return h.engine.Transport().Load().State == StatePlaying &&
			h.engine.Position() >= 4.9
	})

	var first float32
	waitFor(t, "post-seek output", func() bool {
		buf := h.render(128)
		for _, v := range buf {
			if v != 0 {
				first = v
				return true
			}
		}
		return false
	})

	gotSec := float64(frameOf(first)) / testRate
	if gotSec < 4.9 || gotSec > 5.3 {
		t.Errorf("first frame after seek at %.3fs, want ~5.0s", gotSec)
	}
}

func TestEngineSeekOutOfRange(t *testing.T) {
	h := newHarness(t, testConfig())
	track := h.addTrack(t, "a", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate * 2}
	})

	h.engine.Play(track)
	waitFor(t, "audible output", func() bool { return h.render(128)[0] != 0 })
	posBefore := h.engine.Position()

	if err := h.engine.Seek(500); err != nil {
		t.Fatal(err) // rejected asynchronously by the decode loop
	}
	waitFor(t, "state restored", func() bool {
		return h.engine.Transport().Load().State == StatePlaying
	})
	if pos := h.engine.Position(); pos < posBefore {
		t.Errorf("failed seek moved position backwards: %v -> %v", posBefore, pos)
	}
}

func TestEngineSeekWhileStopped(t *testing.T) {
	h := newHarness(t, testConfig())
	err := h.engine.Seek(1.0)
	var se *SeekError
	if !errors.As(err, &se) {
		t.Fatalf("Seek while stopped = %v, want SeekError", err)
	}
}

func TestEngineUnderrunOnStall(t *testing.T) {
	cfg := testConfig()
	cfg.RingMs = 50
	cfg.DecodeAheadMs = 50
	h := newHarness(t, cfg)

	gate := make(chan struct{})
	released := false
	track := h.addTrack(t, "a", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate * 10, gate: gate}
	})
	defer func() {
		if !released {
			close(gate)
		}
	}()

	h.engine.Play(track)
	waitFor(t, "playing state", func() bool {
		return h.engine.Transport().Load().State == StatePlaying
	})

	// decode is gated shut, so the ring is empty: every render is a
	// silent underrun but never a block
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			buf := h.render(256)
			for _, v := range buf {
				if v != 0 {
					t.Error("stalled engine produced non-silent output")
					return
				}
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("render blocked during decode stall")
	}

	if h.engine.Transport().Underruns() == 0 {
		t.Error("no underruns counted during stall")
	}

	close(gate)
	released = true
	waitFor(t, "audible output after stall", func() bool { return h.render(128)[0] != 0 })
}

func TestEngineCorruptFrameRecovery(t *testing.T) {
	h := newHarness(t, testConfig())
	track := h.addTrack(t, "a", func() *memStream {
		return &memStream{
			rate: testRate, channels: 2, total: testRate,
			corruptFrom: testRate / 2, corruptCount: 3, corruptLeft: 3,
		}
	})

	h.engine.Play(track)
	waitFor(t, "track end", func() bool {
		h.render(256)
		return h.endedCount() == 1
	})
	if n := h.failedCount(); n != 0 {
		t.Errorf("recoverable corruption reported %d track failures", n)
	}
}

func TestEngineCorruptFrameEscalation(t *testing.T) {
	cfg := testConfig()
	cfg.CorruptFrameLimit = 4
	h := newHarness(t, cfg)
	track := h.addTrack(t, "a", func() *memStream {
		return &memStream{
			rate: testRate, channels: 2, total: testRate * 10,
			corruptFrom: testRate / 4, corruptCount: 100, corruptLeft: 100,
		}
	})

	h.engine.Play(track)
	waitFor(t, "track failure", func() bool {
		h.render(256)
		return h.failedCount() == 1
	})

	h.mu.Lock()
	err := h.failed[0]
	h.mu.Unlock()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("failure = %v, want DecodeError", err)
	}
	waitFor(t, "stopped state", func() bool {
		return h.engine.Transport().Load().State == StateStopped
	})
}

func TestEngineOpenErrorMissingFile(t *testing.T) {
	h := newHarness(t, testConfig())

	h.engine.Play(types.TrackDescriptor{ID: "ghost", Path: filepath.Join(h.dir, "missing")})
	waitFor(t, "open failure", func() bool { return h.failedCount() == 1 })

	h.mu.Lock()
	err := h.failed[0]
	h.mu.Unlock()
	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("failure = %v, want OpenError", err)
	}
}

func loopTrack(h *testHarness, t *testing.T, start, end float64) types.TrackDescriptor {
	track := h.addTrack(t, "loop", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate * 20}
	})
	track.LoopStart = &start
	track.LoopEnd = &end
	return track
}

func TestEngineLoopWrapsToLoopStart(t *testing.T) {
	h := newHarness(t, testConfig())
	track := loopTrack(h, t, 5.0, 10.0)
	track.StartOffset = 4.5 // start just ahead of the loop window

	h.engine.Play(track)
	waitFor(t, "audible output", func() bool { return h.render(128)[0] != 0 })

	// drain three full loop iterations, watching the source timestamps
	var wraps int
	var lastFrame int64 = -1
	deadline := time.Now().Add(5 * time.Second)
	for wraps < 3 && time.Now().Before(deadline) {
		buf := h.render(256)
		for f := 0; f < 256; f++ {
			v := buf[f*2]
			if v == 0 {
				continue
			}
			frame := frameOf(v)
			sec := float64(frame) / testRate
			if sec >= 10.05 {
				t.Fatalf("decoded past loop_end: %.3fs", sec)
			}
			if frame < lastFrame {
				// wrap: must land back at loop_start
				if sec < 4.95 || sec > 5.1 {
					t.Fatalf("loop wrapped to %.3fs, want ~5.0s", sec)
				}
				wraps++
			}
			lastFrame = frame
		}
		time.Sleep(time.Millisecond)
	}
	if wraps < 3 {
		t.Fatalf("only %d loop iterations in time", wraps)
	}

	// reported position stays folded into the loop region
	if pos := h.engine.Position(); pos < 4.5 || pos > 10.1 {
		t.Errorf("reported position %.3fs outside loop region", pos)
	}
}

func TestEngineGaplessTransition(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.addTrack(t, "a", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate / 2}
	})
	b := h.addTrack(t, "b", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate * 4}
	})

	h.engine.Play(a)
	h.engine.Enqueue(b)

	waitFor(t, "transition to b", func() bool {
		h.render(256)
		snap := h.engine.Transport().Load()
		return snap.Track != nil && snap.Track.ID == "b" && snap.State == StatePlaying
	})
	if h.endedCount() != 1 {
		t.Errorf("ended callbacks = %d, want 1 (for track a)", h.endedCount())
	}

	// keep consuming; playback must continue without a stop
	for i := 0; i < 50; i++ {
		h.render(256)
		time.Sleep(time.Millisecond)
	}
	if snap := h.engine.Transport().Load(); snap.State != StatePlaying {
		t.Errorf("state after gapless transition = %v, want playing", snap.State)
	}
}

func TestEngineCrossfadePromotes(t *testing.T) {
	cfg := testConfig()
	cfg.CrossfadeMs = 100
	h := newHarness(t, cfg)
	a := h.addTrack(t, "a", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate} // 1s
	})
	b := h.addTrack(t, "b", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate * 4}
	})

	h.engine.Play(a)
	h.engine.Enqueue(b)

	// consume in realtime-ish steps so the fade window is reached and mixed
	deadline := time.Now().Add(5 * time.Second)
	for h.endedCount() == 0 && time.Now().Before(deadline) {
		h.render(256)
		time.Sleep(time.Millisecond)
	}

	waitFor(t, "promotion to b", func() bool {
		snap := h.engine.Transport().Load()
		return snap.Track != nil && snap.Track.ID == "b" && snap.State == StatePlaying
	})
	if h.endedCount() != 1 {
		t.Errorf("ended callbacks = %d, want 1", h.endedCount())
	}
}

func TestEngineStopClearsEverything(t *testing.T) {
	h := newHarness(t, testConfig())
	track := h.addTrack(t, "a", func() *memStream {
		return &memStream{rate: testRate, channels: 2, total: testRate * 10}
	})

	h.engine.Play(track)
	waitFor(t, "audible output", func() bool { return h.render(128)[0] != 0 })

	h.engine.Stop()
	waitFor(t, "stopped state", func() bool {
		snap := h.engine.Transport().Load()
		return snap.State == StateStopped && snap.Track == nil
	})
	waitFor(t, "silent output", func() bool {
		buf := h.render(256)
		for _, v := range buf {
			if v != 0 {
				return false
			}
		}
		return true
	})
	if h.endedCount() != 0 {
		t.Errorf("manual stop fired track-end callback")
	}
}

func TestEngineVolumeAndMute(t *testing.T) {
	h := newHarness(t, testConfig())

	h.engine.SetVolume(1.5)
	if v := h.engine.Transport().Load().Volume; v != 1.0 {
		t.Errorf("volume clamped to %v, want 1.0", v)
	}
	h.engine.SetVolume(-2)
	if v := h.engine.Transport().Load().Volume; v != 0 {
		t.Errorf("volume clamped to %v, want 0", v)
	}
	h.engine.SetVolume(0.4)
	h.engine.SetMuted(true)
	snap := h.engine.Transport().Load()
	if !snap.Muted || snap.Volume != 0.4 {
		t.Errorf("mute overwrote volume: %+v", snap)
	}
}

func TestEngineRenderLargePullMidFade(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg, decode.NewRegistry())
	ch := cfg.Channels

	prime := func(frames int) *Ring {
		r := NewRing(frames * ch)
		buf := make([]float32, frames*ch)
		for i := range buf {
			buf[i] = 0.25
		}
		r.TryPush(buf)
		return r
	}

	// both rings buffered past a single pull, fade in progress
	frames := MaxPullFrames + 4096
	rs := &renderState{
		cur:  prime(frames + 1024),
		nxt:  prime(frames + 1024),
		fade: &crossfade{curve: FadeEqualPower, totalFrames: int64(frames) * 4},
	}
	e.publish(rs)
	e.transport.Update(func(s *Snapshot) { s.State = StatePlaying })

	// a pull wider than the scratch buffers must mix the whole buffer
	dst := make([]float32, frames*ch)
	e.Render(dst)

	for _, i := range []int{0, frames / 2 * ch, (frames - 1) * ch} {
		if dst[i] == 0 {
			t.Fatalf("sample %d is silence, want mixed audio", i)
		}
	}
	if got := e.transport.PositionFrames(); got != int64(frames) {
		t.Errorf("position advanced by %d frames, want %d", got, frames)
	}
}

func TestLoopRampScalesBoundarySamples(t *testing.T) {
	cfg := testConfig()
	cfg.LoopCrossfadeMs = 10 // 80 frames at 8kHz
	e := NewEngine(cfg, decode.NewRegistry())

	loopStart, loopEnd := 1.0, 2.0
	a := &activeStream{
		track: types.TrackDescriptor{
			Path:      "/x",
			LoopStart: &loopStart,
			LoopEnd:   &loopEnd,
		},
	}
	ramp := int(e.framesOf(cfg.LoopCrossfadeMs))

	ones := func(frames int) []float32 {
		s := make([]float32, frames*cfg.Channels)
		for i := range s {
			s[i] = 1
		}
		return s
	}

	// chunk ending exactly at loop_end fades out over the last ramp frames
	frames := 200
	a.baseSec = loopEnd - float64(frames)/float64(cfg.SampleRate)
	out := ones(frames)
	e.applyLoopRamp(a, out, frames)
	if out[0] != 1 {
		t.Errorf("sample before the ramp was scaled: %v", out[0])
	}
	last := out[(frames-1)*cfg.Channels]
	if last >= float32(2)/float32(ramp) {
		t.Errorf("final pre-wrap sample = %v, want near 0", last)
	}
	mid := out[(frames-ramp/2)*cfg.Channels]
	if mid < 0.3 || mid > 0.7 {
		t.Errorf("mid-ramp sample = %v, want around 0.5", mid)
	}

	// before any wrap the loop_start region plays unfaded
	a.baseSec = loopStart
	out = ones(frames)
	e.applyLoopRamp(a, out, frames)
	if out[0] != 1 {
		t.Errorf("fade-in applied before first wrap: %v", out[0])
	}

	// after a wrap the first ramp frames fade back in
	a.wrapped = true
	out = ones(frames)
	e.applyLoopRamp(a, out, frames)
	if out[0] != 0 {
		t.Errorf("first post-wrap sample = %v, want 0", out[0])
	}
	if got := out[ramp*cfg.Channels]; got != 1 {
		t.Errorf("sample past the ramp = %v, want 1", got)
	}
}
