package media

import (
	"testing"
	"time"
)

func TestTransportStateAudible(t *testing.T) {
	audible := []TransportState{TransportPlaying, TransportSeeking, TransportTrackEnding}
	for _, st := range audible {
		if !st.Audible() {
			t.Errorf("%s.Audible() = false, want true", st)
		}
	}
	silent := []TransportState{TransportStopped, TransportPaused}
	for _, st := range silent {
		if st.Audible() {
			t.Errorf("%s.Audible() = true, want false", st)
		}
	}
}

func TestCommandHandlerFunc(t *testing.T) {
	var got Command
	h := CommandHandlerFunc(func(cmd Command) error {
		got = cmd
		return nil
	})

	want := Command{Action: ActionSeek, SeekTo: 90 * time.Second}
	if err := h.OnCommand(want); err != nil {
		t.Fatalf("OnCommand: %v", err)
	}
	if got != want {
		t.Errorf("handler received %+v, want %+v", got, want)
	}
}

func TestNoOpSession(t *testing.T) {
	s := NewNoOpSession()
	s.SetCommandHandler(nil)
	if err := s.Publish(NowPlaying{State: TransportPlaying}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
