// Package types provides shared type definitions used across the lyrebird daemon.
package types

// TrackDescriptor is the minimal identifying/playback metadata the engine
// needs to decode an audio source. It is supplied by the library collaborator
// and is immutable once handed to the engine for a playback instance.
type TrackDescriptor struct {
	// ID identifies the track to external collaborators. The engine treats
	// it as opaque.
	ID string `json:"id,omitempty"`

	// Path is the absolute path of the audio file. Files are never moved or
	// rewritten by the daemon.
	Path string `json:"path"`

	// StartOffset is where playback begins, in seconds from the start of the
	// file. Zero for normal playback.
	StartOffset float64 `json:"startOffset,omitempty"`

	// Duration in seconds. Zero means unknown; the engine will ask the
	// decoder adapter.
	Duration float64 `json:"duration,omitempty"`

	// LoopStart/LoopEnd delimit an interior loop region in seconds. Both
	// must be set for looping to apply; LoopEnd must be greater than
	// LoopStart.
	LoopStart *float64 `json:"loopStart,omitempty"`
	LoopEnd   *float64 `json:"loopEnd,omitempty"`

	Metadata *TrackMetadata `json:"metadata,omitempty"`
}

// HasLoop reports whether the descriptor carries a valid interior loop region.
func (t *TrackDescriptor) HasLoop() bool {
	return t != nil && t.LoopStart != nil && t.LoopEnd != nil && *t.LoopEnd > *t.LoopStart
}

// TrackMetadata contains display metadata for a track
type TrackMetadata struct {
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Duration int64  `json:"duration,omitempty"` // milliseconds
	ArtPath  string `json:"artPath,omitempty"`
}

// RepeatMode represents the repeat behavior
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

// String returns the string representation of the repeat mode
func (r RepeatMode) String() string {
	switch r {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "off"
	}
}

// ParseRepeatMode parses a string into a RepeatMode
func ParseRepeatMode(s string) RepeatMode {
	switch s {
	case "one":
		return RepeatOne
	case "all":
		return RepeatAll
	default:
		return RepeatOff
	}
}
