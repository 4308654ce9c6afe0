//go:build linux

package media

import (
	"testing"
	"time"

	"github.com/lyrebird-player/lyrebird/internal/types"
)

func TestPlaybackStatusFlattensTransientStates(t *testing.T) {
	cases := map[TransportState]string{
		TransportStopped:     "Stopped",
		TransportPlaying:     "Playing",
		TransportPaused:      "Paused",
		TransportSeeking:     "Playing",
		TransportTrackEnding: "Playing",
	}
	for state, want := range cases {
		if got := playbackStatus(state); got != want {
			t.Errorf("playbackStatus(%s) = %q, want %q", state, got, want)
		}
	}
}

func TestLoopStatusRoundTrip(t *testing.T) {
	modes := []types.RepeatMode{types.RepeatOff, types.RepeatOne, types.RepeatAll}
	for _, mode := range modes {
		if got := repeatOf(loopStatus(mode)); got != mode {
			t.Errorf("repeatOf(loopStatus(%v)) = %v", mode, got)
		}
	}
	if got := repeatOf("garbage"); got != types.RepeatOff {
		t.Errorf("repeatOf(garbage) = %v, want RepeatOff", got)
	}
}

func TestMetadataMapCarriesLoopRegion(t *testing.T) {
	loopStart, loopEnd := 12.5, 80.0
	np := NowPlaying{
		Duration: 2 * time.Minute,
		Track: &types.TrackDescriptor{
			Path:      "/music/album/song.ogg",
			LoopStart: &loopStart,
			LoopEnd:   &loopEnd,
			Metadata:  &types.TrackMetadata{Artist: "Someone"},
		},
	}

	m := metadataMap(np)
	if got := m["xesam:title"].Value(); got != "song.ogg" {
		t.Errorf("title = %v, want file name fallback", got)
	}
	if got := m["mpris:length"].Value(); got != int64(120_000_000) {
		t.Errorf("length = %v, want 120000000", got)
	}
	if got := m["lyrebird:loopStart"].Value(); got != 12.5 {
		t.Errorf("loopStart = %v, want 12.5", got)
	}
	if got := m["lyrebird:loopEnd"].Value(); got != 80.0 {
		t.Errorf("loopEnd = %v, want 80.0", got)
	}

	if _, ok := metadataMap(NowPlaying{})["xesam:title"]; ok {
		t.Error("stopped metadata carries a title")
	}
}

func TestSeekResolvesRelativeOffset(t *testing.T) {
	var got Command
	s := &MPRISSession{}
	s.SetCommandHandler(CommandHandlerFunc(func(cmd Command) error {
		got = cmd
		return nil
	}))
	s.np = NowPlaying{State: TransportPlaying, Position: 10 * time.Second}

	s.Seek(-4_000_000) // microseconds
	if got.Action != ActionSeek || got.SeekTo != 6*time.Second {
		t.Errorf("command = %+v, want seek to 6s", got)
	}

	s.Seek(-30_000_000)
	if got.SeekTo != 0 {
		t.Errorf("seek before track start = %v, want clamp to 0", got.SeekTo)
	}
}

func TestPublishNoChangeEmitsNothing(t *testing.T) {
	// conn is nil; any emit would panic
	s := &MPRISSession{}
	if err := s.Publish(NowPlaying{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := s.Publish(NowPlaying{}); err != nil {
		t.Fatalf("Publish repeat: %v", err)
	}
}
