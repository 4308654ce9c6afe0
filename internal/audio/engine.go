// Package audio implements the playback engine: decoding, resampling, the
// lock-free handoff into the output pull path, and the transport state
// machine. Decoding runs on one long-lived goroutine; the output device
// pulls rendered frames on its own thread and never blocks on the decoder.
package audio

import (
	"errors"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lyrebird-player/lyrebird/internal/decode"
	"github.com/lyrebird-player/lyrebird/internal/types"
)

// EngineConfig holds the tunables of a playback engine instance.
type EngineConfig struct {
	SampleRate int // output rate, Hz
	Channels   int

	RingMs        int // handoff buffer capacity
	DecodeAheadMs int // how far ahead of playback decoding runs

	CrossfadeMs     int // 0 means gapless splice
	FadeCurve       FadeCurve
	LoopCrossfadeMs int // fade applied at interior loop wrap, normally 0

	// consecutive corrupt frames tolerated before the track is abandoned
	CorruptFrameLimit int
}

// DefaultEngineConfig returns the stock configuration: 44.1kHz stereo,
// half a second of buffer, gapless transitions.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SampleRate:        44100,
		Channels:          2,
		RingMs:            500,
		DecodeAheadMs:     350,
		CrossfadeMs:       0,
		FadeCurve:         FadeEqualPower,
		LoopCrossfadeMs:   0,
		CorruptFrameLimit: 8,
	}
}

// TrackEndCallback fires when a track finishes naturally (not on stop/skip).
type TrackEndCallback func(track types.TrackDescriptor)

// TrackErrorCallback fires when a track is abandoned due to an open or
// decode failure. The engine has already stopped the track; the callback
// decides what plays next.
type TrackErrorCallback func(track types.TrackDescriptor, err error)

// renderState is what the output pull path works from: the active ring,
// plus the incoming ring and fade session while a crossfade runs. The
// decode loop builds a new renderState (allocating is fine on its side) and
// publishes it with one atomic swap; the pull path only loads and mutates
// the fade progress and scratch buffers it exclusively owns.
type renderState struct {
	cur *Ring
	nxt *Ring
	fade *crossfade

	// set by the decode loop once the current stream hit EOF; the pull
	// path then treats an empty ring as drain, not underrun
	draining atomic.Bool
	// set by the pull path when the fade has completed and the decode
	// loop should promote the incoming ring
	fadeDone atomic.Bool

	outBuf []float32
	inBuf  []float32
}

// Engine is the playback engine. Control methods may be called from any
// goroutine; they publish intent into the transport snapshot and the decode
// loop acts on it within one loop iteration.
type Engine struct {
	cfg       EngineConfig
	registry  *decode.Registry
	transport *Transport

	render atomic.Pointer[renderState]

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	mu           sync.RWMutex
	onTrackEnd   TrackEndCallback
	onTrackError TrackErrorCallback

	// duration of the current track in seconds, for status reporting
	durationSec atomic.Uint64 // math.Float64bits
}

// NewEngine creates an engine. Call Run to start the decode loop.
func NewEngine(cfg EngineConfig, registry *decode.Registry) *Engine {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		panic("audio: engine needs a valid sample rate and channel count")
	}
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		transport: NewTransport(),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Transport exposes the snapshot/counter surface for status reporting and
// media-session integration.
func (e *Engine) Transport() *Transport { return e.transport }

func (e *Engine) SetOnTrackEnd(cb TrackEndCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrackEnd = cb
}

func (e *Engine) SetOnTrackError(cb TrackErrorCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrackError = cb
}

func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Play starts playback of a track, replacing whatever is active.
func (e *Engine) Play(track types.TrackDescriptor) {
	e.transport.Update(func(s *Snapshot) {
		s.Track = &track
		s.NextTrack = nil
		s.State = StatePlaying
		s.PlaySeq++
	})
	e.notify()
}

// Enqueue sets the pending next track used for gapless/crossfade handoff.
func (e *Engine) Enqueue(track types.TrackDescriptor) {
	e.transport.Update(func(s *Snapshot) {
		s.NextTrack = &track
	})
	e.notify()
}

// ClearQueued drops the pending next track, if any.
func (e *Engine) ClearQueued() {
	e.transport.Update(func(s *Snapshot) {
		s.NextTrack = nil
	})
}

// Pause halts output without closing the stream. Idempotent.
func (e *Engine) Pause() {
	e.transport.Update(func(s *Snapshot) {
		if s.State == StatePlaying {
			s.State = StatePaused
		}
	})
}

// Resume continues paused playback. Idempotent.
func (e *Engine) Resume() {
	e.transport.Update(func(s *Snapshot) {
		if s.State == StatePaused {
			s.State = StatePlaying
		}
	})
	e.notify()
}

// Stop tears down the active stream and empties the buffer.
func (e *Engine) Stop() {
	e.transport.Update(func(s *Snapshot) {
		s.State = StateStopped
		s.Track = nil
		s.NextTrack = nil
		s.PlaySeq++
	})
	e.notify()
}

// Seek requests a reposition to seconds from track start. The decode loop
// performs the reseek and returns the transport to its prior state; on
// failure the position is unchanged.
func (e *Engine) Seek(seconds float64) error {
	snap := e.transport.Load()
	if snap.State == StateStopped || snap.Track == nil {
		return &SeekError{Target: seconds, Err: errors.New("not playing")}
	}
	if seconds < 0 {
		return &SeekError{Target: seconds, Err: decode.ErrSeekOutOfRange}
	}
	e.transport.Update(func(s *Snapshot) {
		if s.State != StateSeeking {
			s.SeekReturn = s.State
		}
		s.State = StateSeeking
		s.SeekTarget = seconds
		s.SeekSeq++
	})
	e.notify()
	return nil
}

// SetVolume sets output gain in [0,1].
func (e *Engine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.transport.Update(func(s *Snapshot) { s.Volume = v })
}

// SetMuted toggles mute without touching the stored volume.
func (e *Engine) SetMuted(muted bool) {
	e.transport.Update(func(s *Snapshot) { s.Muted = muted })
}

// Position returns playback position in seconds within the current track.
// For a looping track the raw frame counter keeps climbing; the reported
// position folds it back into the loop region.
func (e *Engine) Position() float64 {
	pos := float64(e.transport.PositionFrames()) / float64(e.cfg.SampleRate)
	snap := e.transport.Load()
	if snap.Track != nil && snap.Track.HasLoop() {
		start, end := *snap.Track.LoopStart, *snap.Track.LoopEnd
		if pos > end && end > start {
			pos = start + math.Mod(pos-start, end-start)
		}
	}
	return pos
}

// Duration returns the current track duration in seconds, 0 if unknown.
func (e *Engine) Duration() float64 {
	return math.Float64frombits(e.durationSec.Load())
}

// Close stops the decode loop and waits for it to exit.
func (e *Engine) Close() error {
	close(e.quit)
	e.notify()
	<-e.done
	return nil
}

func (e *Engine) ringCapacity() int {
	frames := e.cfg.SampleRate * e.cfg.RingMs / 1000
	if frames < 1024 {
		frames = 1024
	}
	return frames * e.cfg.Channels
}

func (e *Engine) framesOf(ms int) int64 {
	return int64(e.cfg.SampleRate) * int64(ms) / 1000
}

// activeStream is one decoding track: its source stream, the per-stream
// resampler, and the ring it feeds. Owned by the decode loop.
type activeStream struct {
	track  types.TrackDescriptor
	stream decode.Stream
	res    *Resampler
	ring   *Ring

	// timeline bookkeeping at the output rate
	baseSec   float64 // source position where outFrames was last zeroed
	outFrames int64   // frames pushed since baseSec
	duration  float64

	buf     []float32 // decode chunk
	pending []float32 // resampled frames the ring had no room for
	corrupt int
	eof     bool
	wrapped bool // at least one loop wrap has happened
}

// posSec is the source timeline position of the newest decoded frame.
func (a *activeStream) posSec(rate int) float64 {
	return a.baseSec + float64(a.outFrames)/float64(rate)
}

func (a *activeStream) close() {
	if a.stream != nil {
		a.stream.Close()
		a.stream = nil
	}
}

// openStream opens and positions a track for decoding.
func (e *Engine) openStream(track types.TrackDescriptor, startSec float64, ring *Ring) (*activeStream, error) {
	stream, format, err := e.registry.Open(track.Path)
	if err != nil {
		return nil, &OpenError{Path: track.Path, Err: err}
	}
	log.Printf("[ENGINE] Opened %s as %s (%dHz %dch)", track.Path, format, stream.SampleRate(), stream.Channels())

	if startSec > 0 {
		if err := stream.Seek(startSec); err != nil {
			stream.Close()
			return nil, &OpenError{Path: track.Path, Err: err}
		}
	}

	duration := track.Duration
	if d, ok := stream.(decode.Durationer); ok && d.Duration() > 0 {
		duration = d.Duration()
	}

	// descriptor loop points win; container tags fill in when it has none
	if !track.HasLoop() {
		if lp, ok := stream.(decode.LoopPointser); ok {
			if start, end, ok := lp.LoopPoints(); ok {
				track.LoopStart, track.LoopEnd = &start, &end
				log.Printf("[ENGINE] Loop tags from container: %.3f-%.3fs", start, end)
			}
		}
	}

	chunk := e.cfg.SampleRate / 10 * e.cfg.Channels // 100ms decode granularity
	return &activeStream{
		track:    track,
		stream:   stream,
		res:      NewResampler(stream, e.cfg.SampleRate, e.cfg.Channels),
		ring:     ring,
		baseSec:  startSec,
		duration: duration,
		buf:      make([]float32, chunk),
	}, nil
}

// fill decodes one chunk into the stream's ring, honoring loop truncation.
// Returns false when there is nothing further to push right now (ring full
// or EOF).
func (e *Engine) fill(a *activeStream) (bool, error) {
	// flush frames left over from a previous full ring
	if len(a.pending) > 0 {
		n := a.ring.TryPush(a.pending)
		a.pending = a.pending[n:]
		if len(a.pending) > 0 {
			return false, nil
		}
		return true, nil
	}
	if a.eof {
		return false, nil
	}
	if ahead := int(e.framesOf(e.cfg.DecodeAheadMs)) * e.cfg.Channels; ahead > 0 && a.ring.Len() >= ahead {
		return false, nil
	}
	if a.ring.Free() < len(a.buf) {
		return false, nil
	}

	want := len(a.buf) / e.cfg.Channels

	// truncate at loop_end so the wrap lands frame-accurately
	if a.track.HasLoop() && a.baseSec < *a.track.LoopEnd {
		remain := int64((*a.track.LoopEnd - a.posSec(e.cfg.SampleRate)) * float64(e.cfg.SampleRate))
		if remain <= 0 {
			return true, e.loopWrap(a)
		}
		if int64(want) > remain {
			want = int(remain)
		}
	}

	n, err := a.res.ReadFrames(a.buf[:want*e.cfg.Channels])
	if n > 0 {
		a.corrupt = 0
		samples := a.buf[:n*e.cfg.Channels]
		e.applyLoopRamp(a, samples, n)
		pushed := a.ring.TryPush(samples)
		if pushed < len(samples) {
			a.pending = append(a.pending[:0], samples[pushed:]...)
		}
		a.outFrames += int64(n)
	}

	switch {
	case err == nil:
		return true, nil
	case err == io.EOF:
		if a.track.HasLoop() {
			return true, e.loopWrap(a)
		}
		a.eof = true
		return false, nil
	case errors.Is(err, decode.ErrCorruptFrame):
		a.corrupt++
		log.Printf("[ENGINE] Skipping corrupt frame in %s (%d consecutive)", a.track.Path, a.corrupt)
		if a.corrupt > e.cfg.CorruptFrameLimit {
			return false, &DecodeError{Path: a.track.Path, Err: err}
		}
		return true, nil
	default:
		return false, &DecodeError{Path: a.track.Path, Err: err}
	}
}

// loopWrap reseeks the stream to loop_start.
func (e *Engine) loopWrap(a *activeStream) error {
	start := *a.track.LoopStart
	if err := a.stream.Seek(start); err != nil {
		return &DecodeError{Path: a.track.Path, Err: err}
	}
	a.res.Reset()
	a.baseSec = start
	a.outFrames = 0
	a.wrapped = true
	log.Printf("[ENGINE] Loop wrap: %s back to %.3fs", a.track.Path, start)
	return nil
}

// applyLoopRamp smooths a loop wrap whose points are not sample-aligned:
// with LoopCrossfadeMs set, the last ramp frames before loop_end fade out
// and, after a wrap, the first ramp frames from loop_start fade back in.
func (e *Engine) applyLoopRamp(a *activeStream, samples []float32, frames int) {
	ramp := e.framesOf(e.cfg.LoopCrossfadeMs)
	if ramp <= 0 || !a.track.HasLoop() {
		return
	}
	rate := float64(e.cfg.SampleRate)
	endFrame := int64(*a.track.LoopEnd * rate)
	startFrame := int64(*a.track.LoopStart * rate)
	absFrame := int64(a.baseSec*rate) + a.outFrames
	ch := e.cfg.Channels

	for i := 0; i < frames; i++ {
		f := absFrame + int64(i)
		gain := 1.0
		if f >= endFrame-ramp && f < endFrame {
			gain = float64(endFrame-f) / float64(ramp)
		} else if a.wrapped && f >= startFrame && f < startFrame+ramp {
			gain = float64(f-startFrame) / float64(ramp)
		}
		if gain != 1.0 {
			for c := 0; c < ch; c++ {
				samples[i*ch+c] *= float32(gain)
			}
		}
	}
}

// publish swaps in a new renderState for the output pull path.
func (e *Engine) publish(rs *renderState) {
	if rs != nil && rs.outBuf == nil {
		rs.outBuf = make([]float32, MaxPullFrames*e.cfg.Channels)
		rs.inBuf = make([]float32, MaxPullFrames*e.cfg.Channels)
	}
	e.render.Store(rs)
}

// Run executes the decode loop until Close. Start it on its own goroutine.
func (e *Engine) Run() {
	defer close(e.done)
	log.Printf("[ENGINE] Decode loop started (%dHz, %dch, ring %dms)",
		e.cfg.SampleRate, e.cfg.Channels, e.cfg.RingMs)

	var cur, nxt *activeStream
	var lastPlaySeq, lastSeekSeq uint64

	teardown := func() {
		if cur != nil {
			cur.close()
			cur = nil
		}
		if nxt != nil {
			nxt.close()
			nxt = nil
		}
		e.publish(nil)
		e.transport.SetPositionFrames(0)
		e.durationSec.Store(math.Float64bits(0))
	}
	defer teardown()

	idle := func() bool {
		select {
		case <-e.quit:
			return false
		case <-e.wake:
			return true
		case <-time.After(20 * time.Millisecond):
			return true
		}
	}

	for {
		select {
		case <-e.quit:
			return
		default:
		}

		snap := e.transport.Load()

		// play/stop intent
		if snap.PlaySeq != lastPlaySeq {
			lastPlaySeq = snap.PlaySeq
			teardown()
			if snap.State != StateStopped && snap.Track != nil {
				track := *snap.Track
				a, err := e.openStream(track, track.StartOffset, NewRing(e.ringCapacity()))
				if err != nil {
					seq := lastPlaySeq
					e.transport.Update(func(s *Snapshot) {
						if s.PlaySeq == seq {
							s.State = StateStopped
							s.Track = nil
						}
					})
					e.failTrack(track, err)
					continue
				}
				cur = a
				// republish the descriptor so container-derived loop
				// points show up in status and position folding
				seq := lastPlaySeq
				e.transport.Update(func(s *Snapshot) {
					if s.PlaySeq == seq {
						s.Track = &a.track
					}
				})
				e.durationSec.Store(math.Float64bits(a.duration))
				e.transport.SetPositionFrames(int64(track.StartOffset * float64(e.cfg.SampleRate)))
				rs := &renderState{cur: a.ring}
				e.publish(rs)
			}
			continue
		}

		if cur == nil {
			if !idle() {
				return
			}
			continue
		}

		// seek intent
		if snap.SeekSeq != lastSeekSeq {
			lastSeekSeq = snap.SeekSeq
			if err := e.reseek(cur, snap.SeekTarget); err != nil {
				log.Printf("[ENGINE] %v", err)
				e.transport.Update(func(s *Snapshot) {
					if s.SeekSeq == lastSeekSeq {
						s.State = s.SeekReturn
					}
				})
			} else {
				// drop the incoming stream; the fade will be re-armed
				// if the seek lands back inside the window
				if nxt != nil {
					nxt.close()
					nxt = nil
				}
				e.transport.SetPositionFrames(int64(snap.SeekTarget * float64(e.cfg.SampleRate)))
				rs := &renderState{cur: cur.ring}
				e.publish(rs)
				e.transport.Update(func(s *Snapshot) {
					if s.SeekSeq == lastSeekSeq {
						s.State = s.SeekReturn
					}
				})
				log.Printf("[ENGINE] Seek complete: %.3fs", snap.SeekTarget)
			}
			continue
		}

		if snap.State == StatePaused {
			if !idle() {
				return
			}
			continue
		}

		// crossfade arming: open the next track once the outgoing one is
		// inside the fade window
		if nxt == nil && e.cfg.CrossfadeMs > 0 && snap.NextTrack != nil &&
			cur.duration > 0 && !cur.track.HasLoop() {
			remain := cur.duration - cur.posSec(e.cfg.SampleRate)
			if remain <= float64(e.cfg.CrossfadeMs)/1000 {
				next := *snap.NextTrack
				a, err := e.openStream(next, next.StartOffset, NewRing(e.ringCapacity()))
				if err != nil {
					e.failTrack(next, err)
					e.transport.Update(func(s *Snapshot) { s.NextTrack = nil })
				} else {
					nxt = a
					rs := e.render.Load()
					fadeFrames := e.framesOf(e.cfg.CrossfadeMs)
					nrs := &renderState{
						cur:  rs.cur,
						nxt:  a.ring,
						fade: &crossfade{curve: e.cfg.FadeCurve, totalFrames: fadeFrames},
					}
					nrs.draining.Store(rs.draining.Load())
					e.publish(nrs)
					log.Printf("[ENGINE] Crossfade armed: %s -> %s over %dms",
						cur.track.Path, next.Path, e.cfg.CrossfadeMs)
				}
			}
		}

		// keep the rings fed
		progress, err := e.fill(cur)
		if err != nil {
			track := cur.track
			teardown()
			lastPlaySeq = e.transport.Update(func(s *Snapshot) {
				s.State = StateStopped
				s.Track = nil
				s.PlaySeq++
			}).PlaySeq
			e.failTrack(track, err)
			continue
		}
		if nxt != nil {
			if _, err := e.fill(nxt); err != nil {
				e.failTrack(nxt.track, err)
				nxt.close()
				nxt = nil
				rs := e.render.Load()
				nrs := &renderState{cur: rs.cur}
				nrs.draining.Store(rs.draining.Load())
				e.publish(nrs)
			}
		}

		if cur.eof {
			if rs := e.render.Load(); rs != nil {
				rs.draining.Store(true)
			}
			if done := e.finishTrack(&cur, &nxt, &lastPlaySeq); !done {
				return
			}
			continue
		}

		if !progress {
			if !idle() {
				return
			}
		}
	}
}

// finishTrack handles the end of the current stream: promote a crossfading
// or gapless next track, or drain out and signal TrackEnding. Returns false
// only on quit.
func (e *Engine) finishTrack(cur, nxt **activeStream, lastPlaySeq *uint64) bool {
	c := *cur

	// crossfade in flight: wait for the pull path to finish the fade,
	// keep feeding the incoming ring meanwhile
	if *nxt != nil {
		rs := e.render.Load()
		if rs != nil && rs.fade != nil {
			if !rs.fadeDone.Load() {
				if _, err := e.fill(*nxt); err != nil {
					e.failTrack((*nxt).track, err)
					(*nxt).close()
					*nxt = nil
					nrs := &renderState{cur: c.ring}
					nrs.draining.Store(true)
					e.publish(nrs)
					return true
				}
				select {
				case <-e.quit:
					return false
				case <-time.After(5 * time.Millisecond):
				}
				return true
			}
		}
		e.promote(cur, nxt, lastPlaySeq, rs)
		return true
	}

	// gapless: splice the queued track into a fresh render state the
	// moment the outgoing stream is decoded, so the device never starves
	snap := e.transport.Load()
	if snap.NextTrack != nil {
		next := *snap.NextTrack
		a, err := e.openStream(next, next.StartOffset, c.ring)
		if err != nil {
			e.transport.Update(func(s *Snapshot) { s.NextTrack = nil })
			e.failTrack(next, err)
			return true
		}
		ended := c.track
		c.close()
		*cur = a // same ring: the buffered tail of the old track plays out first
		e.durationSec.Store(math.Float64bits(a.duration))
		if rs := e.render.Load(); rs != nil {
			rs.draining.Store(false)
		}
		*lastPlaySeq = e.transport.Update(func(s *Snapshot) {
			s.Track = &a.track
			s.NextTrack = nil
			s.State = StatePlaying
			s.PlaySeq++
		}).PlaySeq
		// position restarts at the splice; the handful of buffered
		// outgoing frames report as the new track's opening moments
		e.transport.SetPositionFrames(int64(a.track.StartOffset * float64(e.cfg.SampleRate)))
		log.Printf("[ENGINE] Gapless transition: %s -> %s", ended.Path, a.track.Path)
		e.fireTrackEnd(ended)
		return true
	}

	// nothing queued: let the buffer drain, then signal TrackEnding
	if c.ring.Len() > 0 {
		select {
		case <-e.quit:
			return false
		case <-e.wake:
		case <-time.After(10 * time.Millisecond):
		}
		return true
	}

	ended := c.track
	c.close()
	*cur = nil
	e.publish(nil)
	*lastPlaySeq = e.transport.Update(func(s *Snapshot) {
		s.State = StateTrackEnding
		s.Track = nil
		s.PlaySeq++
	}).PlaySeq
	log.Printf("[ENGINE] Track ended: %s", ended.Path)
	e.fireTrackEnd(ended)

	// if the callback queued nothing, settle into Stopped
	e.transport.Update(func(s *Snapshot) {
		if s.State == StateTrackEnding {
			s.State = StateStopped
		}
	})
	return true
}

// promote makes the crossfaded-in track the current one.
func (e *Engine) promote(cur, nxt **activeStream, lastPlaySeq *uint64, rs *renderState) {
	ended := (*cur).track
	(*cur).close()
	a := *nxt
	*cur = a
	*nxt = nil

	var consumed int64
	if rs != nil && rs.fade != nil {
		consumed = rs.fade.totalFrames // fade is complete at promotion
	}
	e.durationSec.Store(math.Float64bits(a.duration))
	nrs := &renderState{cur: a.ring}
	e.publish(nrs)
	*lastPlaySeq = e.transport.Update(func(s *Snapshot) {
		s.Track = &a.track
		s.NextTrack = nil
		s.State = StatePlaying
		s.PlaySeq++
	}).PlaySeq
	e.transport.SetPositionFrames(int64(a.track.StartOffset*float64(e.cfg.SampleRate)) + consumed)
	log.Printf("[ENGINE] Crossfade complete: %s -> %s", ended.Path, a.track.Path)
	e.fireTrackEnd(ended)
}

func (e *Engine) fireTrackEnd(track types.TrackDescriptor) {
	e.mu.RLock()
	cb := e.onTrackEnd
	e.mu.RUnlock()
	if cb != nil {
		cb(track)
	}
}

func (e *Engine) failTrack(track types.TrackDescriptor, err error) {
	log.Printf("[ENGINE] Track failed: %v", err)
	e.mu.RLock()
	cb := e.onTrackError
	e.mu.RUnlock()
	if cb != nil {
		cb(track, err)
	}
}

// reseek repositions the current stream, resets the resampler, and starts a
// fresh ring so no stale frames reach the device.
func (e *Engine) reseek(a *activeStream, target float64) error {
	if err := a.stream.Seek(target); err != nil {
		return &SeekError{Target: target, Err: err}
	}
	a.res.Reset()
	a.baseSec = target
	a.outFrames = 0
	a.eof = false
	a.pending = a.pending[:0]
	a.corrupt = 0
	a.ring = NewRing(e.ringCapacity())
	return nil
}

// Render fills dst with interleaved output samples. Called from the audio
// device's pull path: it never blocks, never allocates, and always produces
// a full buffer, padding with silence and counting an underrun when the
// decode side has fallen behind.
func (e *Engine) Render(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}

	snap := e.transport.Load()
	if snap.State != StatePlaying {
		return
	}
	rs := e.render.Load()
	if rs == nil || rs.cur == nil {
		return
	}

	ch := e.cfg.Channels
	wantFrames := len(dst) / ch

	if rs.fade != nil && rs.nxt != nil {
		e.renderFade(rs, dst, wantFrames, ch)
		return
	}

	n := rs.cur.Pull(dst[:wantFrames*ch])
	frames := n / ch
	e.transport.AdvancePosition(int64(frames))
	if frames < wantFrames && !rs.draining.Load() {
		e.transport.NoteUnderrun()
	}
}

// renderFade mixes the outgoing and incoming rings per the fade curve,
// chunked by the scratch buffers so a pull of any size stays in bounds.
func (e *Engine) renderFade(rs *renderState, dst []float32, wantFrames, ch int) {
	for wantFrames > 0 {
		chunk := len(rs.outBuf) / ch
		if chunk > wantFrames {
			chunk = wantFrames
		}
		e.renderFadeChunk(rs, dst[:chunk*ch], chunk, ch)
		dst = dst[chunk*ch:]
		wantFrames -= chunk
	}
}

func (e *Engine) renderFadeChunk(rs *renderState, dst []float32, wantFrames, ch int) {
	out := rs.outBuf[:wantFrames*ch]
	in := rs.inBuf[:wantFrames*ch]

	inN := rs.nxt.Pull(in) / ch
	if inN < wantFrames {
		// incoming not buffered that far yet; mix only what both sides
		// can cover this callback
		if inN == 0 && rs.nxt.Len() == 0 && rs.fade.doneFrames == 0 {
			// fade armed but incoming ring still priming: play outgoing only
			n := rs.cur.Pull(dst[:wantFrames*ch])
			e.transport.AdvancePosition(int64(n / ch))
			return
		}
	}
	frames := inN

	outN := rs.cur.Pull(out[:frames*ch]) / ch
	for i := outN * ch; i < frames*ch; i++ {
		out[i] = 0 // outgoing drained; fade continues over silence
	}

	rs.fade.mixFrames(dst[:frames*ch], out[:frames*ch], in[:frames*ch], frames, ch)
	e.transport.AdvancePosition(int64(frames))
	if frames < wantFrames {
		e.transport.NoteUnderrun()
	}
	if rs.fade.done() {
		rs.fadeDone.Store(true)
	}
}
