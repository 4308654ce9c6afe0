// Package media mirrors the daemon's playback state to the OS media layer
// and routes media-key commands back into the player.
package media

import (
	"time"

	"github.com/lyrebird-player/lyrebird/internal/types"
)

// TransportState mirrors the engine's transport states, including the
// transient ones. Backends project these onto whatever their protocol can
// express; MPRIS, for example, reports seeking and track-ending as playing.
type TransportState int

const (
	TransportStopped TransportState = iota
	TransportPlaying
	TransportPaused
	TransportSeeking
	TransportTrackEnding
)

// Audible reports whether audio is flowing in this state.
func (s TransportState) Audible() bool {
	return s == TransportPlaying || s == TransportSeeking || s == TransportTrackEnding
}

func (s TransportState) String() string {
	switch s {
	case TransportPlaying:
		return "playing"
	case TransportPaused:
		return "paused"
	case TransportSeeking:
		return "seeking"
	case TransportTrackEnding:
		return "trackEnding"
	default:
		return "stopped"
	}
}

// NowPlaying is the daemon's playback truth, published to the OS layer as
// one unit whenever it changes. Backends diff against their previous copy
// and emit only what moved.
type NowPlaying struct {
	State    TransportState
	Position time.Duration
	Duration time.Duration

	// Track is the descriptor the engine is playing, nil when stopped.
	// Backends read its display metadata and loop region directly.
	Track   *types.TrackDescriptor
	ArtPath string

	Shuffle bool
	Repeat  types.RepeatMode

	// Underruns is the engine's starvation counter, for backends with a
	// diagnostic surface.
	Underruns uint64
}

// Action is a transport command arriving from the OS.
type Action int

const (
	ActionPlay Action = iota
	ActionPause
	ActionPlayPause
	ActionStop
	ActionNext
	ActionPrevious
	ActionSeek
	ActionSetShuffle
	ActionSetRepeat
)

func (a Action) String() string {
	switch a {
	case ActionPlay:
		return "Play"
	case ActionPause:
		return "Pause"
	case ActionPlayPause:
		return "PlayPause"
	case ActionStop:
		return "Stop"
	case ActionNext:
		return "Next"
	case ActionPrevious:
		return "Previous"
	case ActionSeek:
		return "Seek"
	case ActionSetShuffle:
		return "SetShuffle"
	case ActionSetRepeat:
		return "SetRepeat"
	default:
		return "Unknown"
	}
}

// Command pairs an action with its argument. Only the field matching the
// action is meaningful.
type Command struct {
	Action Action

	// SeekTo is the absolute target position for ActionSeek. Backends that
	// receive relative offsets resolve them against their last published
	// position before handing the command over.
	SeekTo time.Duration

	Shuffle bool
	Repeat  types.RepeatMode
}

// CommandHandler receives media commands from the OS.
type CommandHandler interface {
	OnCommand(cmd Command) error
}

// CommandHandlerFunc is a function adapter for CommandHandler.
type CommandHandlerFunc func(cmd Command) error

func (f CommandHandlerFunc) OnCommand(cmd Command) error {
	return f(cmd)
}

// Session mirrors playback state to one OS media backend.
type Session interface {
	// Publish pushes the full playback truth. Called on every state change.
	Publish(np NowPlaying) error

	// SetCommandHandler sets the handler for media commands (play, pause,
	// seek, ...).
	SetCommandHandler(handler CommandHandler)

	// Close releases resources
	Close() error
}

// NoOpSession is a session that does nothing, used when media session
// integration is not available.
type NoOpSession struct{}

// NewNoOpSession creates a new no-op session
func NewNoOpSession() *NoOpSession {
	return &NoOpSession{}
}

func (s *NoOpSession) Publish(np NowPlaying) error {
	return nil
}

func (s *NoOpSession) SetCommandHandler(handler CommandHandler) {
}

func (s *NoOpSession) Close() error {
	return nil
}
