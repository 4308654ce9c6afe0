package queue

import (
	"testing"

	"github.com/lyrebird-player/lyrebird/internal/types"
)

func tracks(paths ...string) []types.TrackDescriptor {
	out := make([]types.TrackDescriptor, len(paths))
	for i, p := range paths {
		out[i] = types.TrackDescriptor{ID: p, Path: p}
	}
	return out
}

func TestNewManager(t *testing.T) {
	m := NewManager()

	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	idx, size := m.Position()
	if idx != -1 {
		t.Errorf("Expected index -1, got %d", idx)
	}
	if size != 0 {
		t.Errorf("Expected size 0, got %d", size)
	}
}

func TestSet(t *testing.T) {
	m := NewManager()

	m.Set(tracks("/path/1.mp3", "/path/2.mp3", "/path/3.mp3"))

	idx, size := m.Position()
	if idx != -1 {
		t.Errorf("Expected index -1 after Set, got %d", idx)
	}
	if size != 3 {
		t.Errorf("Expected size 3, got %d", size)
	}

	items := m.GetItems()
	if len(items) != 3 {
		t.Errorf("Expected 3 items, got %d", len(items))
	}
}

func TestAppend(t *testing.T) {
	m := NewManager()

	m.Set(tracks("/path/1.mp3"))
	m.Append(tracks("/path/2.mp3", "/path/3.mp3"))

	_, size := m.Position()
	if size != 3 {
		t.Errorf("Expected size 3, got %d", size)
	}
}

func TestNext(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3", "/path/3.mp3"))

	// First Next should return first track
	track, ok := m.Next()
	if !ok || track.Path != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3, got %s (ok=%v)", track.Path, ok)
	}

	idx, _ := m.Position()
	if idx != 0 {
		t.Errorf("Expected index 0, got %d", idx)
	}

	track, _ = m.Next()
	if track.Path != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3, got %s", track.Path)
	}

	track, _ = m.Next()
	if track.Path != "/path/3.mp3" {
		t.Errorf("Expected /path/3.mp3, got %s", track.Path)
	}

	// Next at end of queue should report no track
	if _, ok := m.Next(); ok {
		t.Error("Expected no track at end of queue")
	}
}

func TestPeekNext(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3"))

	// peek before navigation sees the first track without advancing
	track, ok := m.PeekNext()
	if !ok || track.Path != "/path/1.mp3" {
		t.Errorf("PeekNext = %s (ok=%v), want /path/1.mp3", track.Path, ok)
	}
	if idx, _ := m.Position(); idx != -1 {
		t.Errorf("PeekNext advanced the index to %d", idx)
	}

	m.Next() // -> 1.mp3
	track, ok = m.PeekNext()
	if !ok || track.Path != "/path/2.mp3" {
		t.Errorf("PeekNext = %s (ok=%v), want /path/2.mp3", track.Path, ok)
	}

	m.Next() // -> 2.mp3, now at the end
	if _, ok := m.PeekNext(); ok {
		t.Error("PeekNext at end of queue should report no track")
	}

	// with repeat all, the successor wraps to the head
	m.SetRepeat(types.RepeatAll)
	track, ok = m.PeekNext()
	if !ok || track.Path != "/path/1.mp3" {
		t.Errorf("PeekNext with RepeatAll = %s (ok=%v), want /path/1.mp3", track.Path, ok)
	}
}

func TestPeekNextRepeatOne(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3"))
	m.SetRepeat(types.RepeatOne)
	m.Next()

	track, ok := m.PeekNext()
	if !ok || track.Path != "/path/1.mp3" {
		t.Errorf("PeekNext with RepeatOne = %s (ok=%v), want current track", track.Path, ok)
	}
}

func TestPrev(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3", "/path/3.mp3"))

	m.Next() // 0
	m.Next() // 1
	m.Next() // 2

	track, _ := m.Prev()
	if track.Path != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3, got %s", track.Path)
	}

	track, _ = m.Prev()
	if track.Path != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3, got %s", track.Path)
	}

	// Prev at beginning should report no track
	if _, ok := m.Prev(); ok {
		t.Error("Expected no track at beginning of queue")
	}
}

func TestCurrent(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3"))

	// Before any Next, Current should report no track
	if _, ok := m.Current(); ok {
		t.Error("Expected no current track before navigation")
	}

	m.Next()
	track, ok := m.Current()
	if !ok || track.Path != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3, got %s", track.Path)
	}
}

func TestSetIndex(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3", "/path/3.mp3"))

	if !m.SetIndex(1) {
		t.Error("SetIndex(1) should succeed")
	}

	track, _ := m.Current()
	if track.Path != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3, got %s", track.Path)
	}

	if m.SetIndex(-1) {
		t.Error("SetIndex(-1) should fail")
	}

	if m.SetIndex(10) {
		t.Error("SetIndex(10) should fail")
	}
}

func TestClear(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3"))
	m.Next()

	m.Clear()

	idx, size := m.Position()
	if idx != -1 {
		t.Errorf("Expected index -1 after Clear, got %d", idx)
	}
	if size != 0 {
		t.Errorf("Expected size 0 after Clear, got %d", size)
	}
}

func TestRepeatAll(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3"))
	m.SetRepeat(types.RepeatAll)

	m.Next()             // 0
	m.Next()             // 1
	track, _ := m.Next() // should wrap to 0

	if track.Path != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3 with RepeatAll, got %s", track.Path)
	}
}

func TestRepeatOne(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3"))
	m.SetRepeat(types.RepeatOne)

	m.Next() // 0

	track, _ := m.Next()
	if track.Path != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3 with RepeatOne, got %s", track.Path)
	}
}

func TestRemove(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3", "/path/3.mp3"))
	m.Next() // index 0
	m.Next() // index 1

	// Remove track before current - index should adjust
	m.Remove(0)

	idx, size := m.Position()
	if idx != 0 {
		t.Errorf("Expected index 0 after remove, got %d", idx)
	}
	if size != 2 {
		t.Errorf("Expected size 2 after remove, got %d", size)
	}

	track, _ := m.Current()
	if track.Path != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3, got %s", track.Path)
	}
}

func TestInsert(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/3.mp3"))
	m.Next() // index 0

	m.Insert(1, types.TrackDescriptor{ID: "2", Path: "/path/2.mp3"})

	_, size := m.Position()
	if size != 3 {
		t.Errorf("Expected size 3 after insert, got %d", size)
	}

	items := m.GetItems()
	if items[1].Path != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3 at index 1, got %s", items[1].Path)
	}
}

func TestShuffleGetSet(t *testing.T) {
	m := NewManager()

	if m.GetShuffle() {
		t.Error("Shuffle should be off by default")
	}

	m.SetShuffle(true)
	if !m.GetShuffle() {
		t.Error("Shuffle should be on after SetShuffle(true)")
	}

	m.SetShuffle(false)
	if m.GetShuffle() {
		t.Error("Shuffle should be off after SetShuffle(false)")
	}
}

func TestRepeatGetSet(t *testing.T) {
	m := NewManager()

	if m.GetRepeat() != types.RepeatOff {
		t.Error("Repeat should be off by default")
	}

	m.SetRepeat(types.RepeatOne)
	if m.GetRepeat() != types.RepeatOne {
		t.Error("Repeat should be RepeatOne")
	}

	m.SetRepeat(types.RepeatAll)
	if m.GetRepeat() != types.RepeatAll {
		t.Error("Repeat should be RepeatAll")
	}
}

func TestShuffleOrder(t *testing.T) {
	m := NewManager()
	paths := []string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3", "/path/4.mp3", "/path/5.mp3"}
	m.Set(tracks(paths...))

	m.SetShuffle(true)

	// Collect all paths by navigating through
	visited := make(map[string]bool)
	for i := 0; i < len(paths); i++ {
		track, ok := m.Next()
		if !ok {
			t.Fatalf("Got no track after %d Next() calls", i+1)
		}
		visited[track.Path] = true
	}

	// Verify all tracks are reachable
	if len(visited) != len(paths) {
		t.Errorf("Expected %d unique paths, got %d", len(paths), len(visited))
	}
}

func TestShuffleMaintainsCurrentTrack(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3", "/path/3.mp3", "/path/4.mp3"))

	m.Next() // index 0
	m.Next() // index 1

	current, _ := m.Current()
	if current.Path != "/path/2.mp3" {
		t.Fatalf("Expected /path/2.mp3 before shuffle, got %s", current.Path)
	}

	// Enable shuffle - current track should remain the same
	m.SetShuffle(true)

	after, _ := m.Current()
	if after.Path != "/path/2.mp3" {
		t.Errorf("Expected current track to stay as /path/2.mp3, got %s", after.Path)
	}
}

func TestShuffleDisableMaintainsCurrentTrack(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3", "/path/3.mp3", "/path/4.mp3"))

	m.Next() // index 0
	m.SetShuffle(true)
	m.Next() // random next

	current, ok := m.Current()
	if !ok {
		t.Fatal("Expected a current track")
	}

	m.SetShuffle(false)

	after, _ := m.Current()
	if after.Path != current.Path {
		t.Errorf("Expected current track to remain %s, got %s", current.Path, after.Path)
	}
}

func TestMove(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3", "/path/3.mp3"))
	m.Next() // index 0

	if !m.Move(2, 0) {
		t.Error("Move should succeed")
	}

	items := m.GetItems()
	if items[0].Path != "/path/3.mp3" {
		t.Errorf("Expected /path/3.mp3 at index 0, got %s", items[0].Path)
	}
	if items[1].Path != "/path/1.mp3" {
		t.Errorf("Expected /path/1.mp3 at index 1, got %s", items[1].Path)
	}
	if items[2].Path != "/path/2.mp3" {
		t.Errorf("Expected /path/2.mp3 at index 2, got %s", items[2].Path)
	}
}

func TestMoveInvalidIndex(t *testing.T) {
	m := NewManager()
	m.Set(tracks("/path/1.mp3", "/path/2.mp3"))

	if m.Move(-1, 0) {
		t.Error("Move with negative from index should fail")
	}
	if m.Move(0, 5) {
		t.Error("Move with out-of-bounds to index should fail")
	}
}

func TestOnChange(t *testing.T) {
	m := NewManager()

	callCount := 0
	m.SetOnChange(func() {
		callCount++
	})

	m.Set(tracks("/path/1.mp3"))
	if callCount != 1 {
		t.Errorf("Expected 1 onChange call after Set, got %d", callCount)
	}

	m.Next()
	if callCount != 2 {
		t.Errorf("Expected 2 onChange calls after Next, got %d", callCount)
	}

	m.SetRepeat(types.RepeatAll)
	if callCount != 3 {
		t.Errorf("Expected 3 onChange calls after SetRepeat, got %d", callCount)
	}
}
