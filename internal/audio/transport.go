package audio

import (
	"sync"
	"sync/atomic"

	"github.com/lyrebird-player/lyrebird/internal/types"
)

// State is the transport state.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateSeeking
	StateTrackEnding
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSeeking:
		return "seeking"
	case StateTrackEnding:
		return "trackEnding"
	default:
		return "unknown"
	}
}

// Snapshot is the transport's published truth. The control thread writes a
// fresh copy and swaps the pointer; the decode loop and the output pull path
// read it with a single atomic load and never see a torn state.
//
// Position and the underrun count live in separate atomic counters on the
// Transport because the output path updates them at callback cadence and
// must not allocate a new snapshot to do so.
type Snapshot struct {
	State State

	Track     *types.TrackDescriptor
	NextTrack *types.TrackDescriptor

	Volume float64
	Muted  bool

	// seek intent: the decode loop observes SeekSeq advancing, performs the
	// reseek to SeekTarget, and publishes the return state
	SeekTarget float64
	SeekSeq    uint64
	// state to return to once seeking completes
	SeekReturn State

	// bumped on every Play/Stop so the decode loop can tell a restart of
	// the same track from a stale snapshot
	PlaySeq uint64
}

// Transport owns the snapshot and the hot-path counters.
type Transport struct {
	mu   sync.Mutex // serializes writers; readers never take it
	snap atomic.Pointer[Snapshot]

	positionFrames atomic.Int64
	underruns      atomic.Uint64
}

func NewTransport() *Transport {
	t := &Transport{}
	t.snap.Store(&Snapshot{State: StateStopped, Volume: 1.0})
	return t
}

// Load returns the current snapshot. Safe from any thread; never blocks on
// writers.
func (t *Transport) Load() *Snapshot {
	return t.snap.Load()
}

// Update copies the current snapshot, applies fn, and publishes the copy.
func (t *Transport) Update(fn func(*Snapshot)) *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := *t.snap.Load()
	fn(&next)
	t.snap.Store(&next)
	return &next
}

// PositionFrames returns frames played since the start of the current track.
func (t *Transport) PositionFrames() int64 {
	return t.positionFrames.Load()
}

// AdvancePosition adds consumed frames to the position counter. Output pull
// path only.
func (t *Transport) AdvancePosition(frames int64) {
	t.positionFrames.Add(frames)
}

// SetPositionFrames overwrites the position counter, used on seek and track
// start.
func (t *Transport) SetPositionFrames(frames int64) {
	t.positionFrames.Store(frames)
}

// Underruns returns the diagnostic underrun counter.
func (t *Transport) Underruns() uint64 {
	return t.underruns.Load()
}

// NoteUnderrun increments the underrun counter. Output pull path only.
func (t *Transport) NoteUnderrun() {
	t.underruns.Add(1)
}
