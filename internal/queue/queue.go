// Package queue manages the playback queue.
package queue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/lyrebird-player/lyrebird/internal/types"
)

// ChangeCallback is called when the queue state changes
type ChangeCallback func()

// Manager manages the playback queue
type Manager struct {
	mu           sync.RWMutex
	items        []types.TrackDescriptor
	index        int // current position in items (or shuffleOrder if shuffled)
	shuffle      bool
	shuffleOrder []int // shuffled indices into items
	repeat       types.RepeatMode
	rng          *rand.Rand
	onChange     ChangeCallback
}

// NewManager creates a new queue manager
func NewManager() *Manager {
	return &Manager{
		items:        make([]types.TrackDescriptor, 0),
		index:        -1,
		repeat:       types.RepeatOff,
		shuffleOrder: make([]int, 0),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetOnChange sets a callback to be called when the queue state changes
func (m *Manager) SetOnChange(callback ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = callback
}

// notifyChange calls the onChange callback if set (must be called without lock held)
func (m *Manager) notifyChange() {
	m.mu.RLock()
	callback := m.onChange
	m.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

// Set replaces the entire queue
func (m *Manager) Set(tracks []types.TrackDescriptor) {
	m.mu.Lock()

	m.items = make([]types.TrackDescriptor, len(tracks))
	copy(m.items, tracks)
	m.index = -1

	if m.shuffle {
		m.generateShuffleOrder()
	}

	m.mu.Unlock()
	m.notifyChange()
}

// Append adds tracks to the end of the queue
func (m *Manager) Append(tracks []types.TrackDescriptor) {
	m.mu.Lock()

	m.items = append(m.items, tracks...)

	if m.shuffle {
		m.appendToShuffleOrder(len(tracks))
	}

	m.mu.Unlock()
	m.notifyChange()
}

// appendToShuffleOrder adds new item indices to the shuffle order in random positions
func (m *Manager) appendToShuffleOrder(count int) {
	startIdx := len(m.items) - count
	for i := 0; i < count; i++ {
		newIdx := startIdx + i
		// insert at a random position after the current index
		insertPos := m.index + 1 + m.rng.Intn(len(m.shuffleOrder)-m.index)
		if insertPos > len(m.shuffleOrder) {
			insertPos = len(m.shuffleOrder)
		}
		m.shuffleOrder = append(m.shuffleOrder[:insertPos], append([]int{newIdx}, m.shuffleOrder[insertPos:]...)...)
	}
}

// Clear clears the queue
func (m *Manager) Clear() {
	m.mu.Lock()

	m.items = make([]types.TrackDescriptor, 0)
	m.shuffleOrder = make([]int, 0)
	m.index = -1

	m.mu.Unlock()
	m.notifyChange()
}

// Next moves to the next track and returns it
func (m *Manager) Next() (types.TrackDescriptor, bool) {
	m.mu.Lock()

	if len(m.items) == 0 {
		m.mu.Unlock()
		return types.TrackDescriptor{}, false
	}

	// repeat one returns the current track unchanged
	if m.repeat == types.RepeatOne && m.index >= 0 {
		itemIdx := m.getItemIndex(m.index)
		if itemIdx >= 0 && itemIdx < len(m.items) {
			item := m.items[itemIdx]
			m.mu.Unlock()
			return item, true
		}
	}

	m.index++

	maxIndex := m.getMaxIndex()
	if m.index >= maxIndex {
		if m.repeat == types.RepeatAll {
			m.index = 0
			// re-shuffle when wrapping around
			if m.shuffle {
				m.generateShuffleOrder()
			}
		} else {
			m.index = maxIndex - 1
			m.mu.Unlock()
			return types.TrackDescriptor{}, false
		}
	}

	itemIdx := m.getItemIndex(m.index)
	if itemIdx < 0 || itemIdx >= len(m.items) {
		m.mu.Unlock()
		return types.TrackDescriptor{}, false
	}
	item := m.items[itemIdx]
	m.mu.Unlock()
	m.notifyChange()
	return item, true
}

// PeekNext returns the track Next would yield, without advancing. Used to
// hand the engine its gapless/crossfade successor ahead of time.
func (m *Manager) PeekNext() (types.TrackDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.items) == 0 {
		return types.TrackDescriptor{}, false
	}

	if m.repeat == types.RepeatOne && m.index >= 0 {
		itemIdx := m.getItemIndex(m.index)
		if itemIdx >= 0 && itemIdx < len(m.items) {
			return m.items[itemIdx], true
		}
	}

	next := m.index + 1
	if next >= m.getMaxIndex() {
		if m.repeat != types.RepeatAll {
			return types.TrackDescriptor{}, false
		}
		// the wrap re-shuffles, so the successor is not knowable yet
		if m.shuffle {
			return types.TrackDescriptor{}, false
		}
		next = 0
	}

	itemIdx := m.getItemIndex(next)
	if itemIdx < 0 || itemIdx >= len(m.items) {
		return types.TrackDescriptor{}, false
	}
	return m.items[itemIdx], true
}

// Prev moves to the previous track and returns it
func (m *Manager) Prev() (types.TrackDescriptor, bool) {
	m.mu.Lock()

	if len(m.items) == 0 {
		m.mu.Unlock()
		return types.TrackDescriptor{}, false
	}

	if m.repeat == types.RepeatOne && m.index >= 0 {
		itemIdx := m.getItemIndex(m.index)
		if itemIdx >= 0 && itemIdx < len(m.items) {
			item := m.items[itemIdx]
			m.mu.Unlock()
			return item, true
		}
	}

	m.index--

	if m.index < 0 {
		if m.repeat == types.RepeatAll {
			m.index = m.getMaxIndex() - 1
		} else {
			m.index = 0
			m.mu.Unlock()
			return types.TrackDescriptor{}, false
		}
	}

	itemIdx := m.getItemIndex(m.index)
	if itemIdx < 0 || itemIdx >= len(m.items) {
		m.mu.Unlock()
		return types.TrackDescriptor{}, false
	}
	item := m.items[itemIdx]
	m.mu.Unlock()
	m.notifyChange()
	return item, true
}

// getItemIndex returns the actual item index for the given position index.
// If shuffle is enabled, it looks up the shuffled order.
func (m *Manager) getItemIndex(posIndex int) int {
	if !m.shuffle || len(m.shuffleOrder) == 0 {
		return posIndex
	}
	if posIndex < 0 || posIndex >= len(m.shuffleOrder) {
		return -1
	}
	return m.shuffleOrder[posIndex]
}

// getMaxIndex returns the maximum valid index
func (m *Manager) getMaxIndex() int {
	if m.shuffle && len(m.shuffleOrder) > 0 {
		return len(m.shuffleOrder)
	}
	return len(m.items)
}

// generateShuffleOrder creates a new shuffled order of indices
func (m *Manager) generateShuffleOrder() {
	n := len(m.items)
	m.shuffleOrder = make([]int, n)
	for i := 0; i < n; i++ {
		m.shuffleOrder[i] = i
	}
	// Fisher-Yates shuffle
	for i := n - 1; i > 0; i-- {
		j := m.rng.Intn(i + 1)
		m.shuffleOrder[i], m.shuffleOrder[j] = m.shuffleOrder[j], m.shuffleOrder[i]
	}
}

// Current returns the current track
func (m *Manager) Current() (types.TrackDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.index < 0 {
		return types.TrackDescriptor{}, false
	}

	itemIdx := m.getItemIndex(m.index)
	if itemIdx < 0 || itemIdx >= len(m.items) {
		return types.TrackDescriptor{}, false
	}

	return m.items[itemIdx], true
}

// SetIndex sets the current queue index
func (m *Manager) SetIndex(index int) bool {
	m.mu.Lock()

	if index < 0 || index >= len(m.items) {
		m.mu.Unlock()
		return false
	}

	m.index = index
	m.mu.Unlock()
	m.notifyChange()
	return true
}

// Position returns the current index and queue size
func (m *Manager) Position() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.index, len(m.items)
}

// GetItems returns all items in the queue
func (m *Manager) GetItems() []types.TrackDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]types.TrackDescriptor, len(m.items))
	copy(items, m.items)
	return items
}

// SetShuffle enables or disables shuffle mode
func (m *Manager) SetShuffle(enabled bool) {
	m.mu.Lock()

	wasEnabled := m.shuffle
	m.shuffle = enabled

	if enabled && !wasEnabled {
		m.generateShuffleOrder()

		// keep the current track as shuffle position 0 so playback
		// continues from where the user was
		if m.index >= 0 && m.index < len(m.items) {
			currentItemIdx := m.index
			for i, idx := range m.shuffleOrder {
				if idx == currentItemIdx {
					m.shuffleOrder[0], m.shuffleOrder[i] = m.shuffleOrder[i], m.shuffleOrder[0]
					break
				}
			}
			m.index = 0
		}
	} else if !enabled && wasEnabled {
		// restore normal order: map the shuffle position back to the
		// actual item index
		if m.index >= 0 && m.index < len(m.shuffleOrder) {
			m.index = m.shuffleOrder[m.index]
		}
		m.shuffleOrder = nil
	}

	m.mu.Unlock()
	m.notifyChange()
}

// GetShuffle returns whether shuffle is enabled
func (m *Manager) GetShuffle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.shuffle
}

// SetRepeat sets the repeat mode
func (m *Manager) SetRepeat(mode types.RepeatMode) {
	m.mu.Lock()
	m.repeat = mode
	m.mu.Unlock()
	m.notifyChange()
}

// GetRepeat returns the current repeat mode
func (m *Manager) GetRepeat() types.RepeatMode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.repeat
}

// Remove removes an item at the specified index (actual item index, not shuffle position)
func (m *Manager) Remove(index int) bool {
	m.mu.Lock()

	if index < 0 || index >= len(m.items) {
		m.mu.Unlock()
		return false
	}

	m.items = append(m.items[:index], m.items[index+1:]...)

	if m.shuffle && len(m.shuffleOrder) > 0 {
		// drop the index from the shuffle order and renumber the rest
		newOrder := make([]int, 0, len(m.shuffleOrder)-1)
		removedPos := -1
		for i, idx := range m.shuffleOrder {
			if idx == index {
				removedPos = i
				continue
			}
			if idx > index {
				newOrder = append(newOrder, idx-1)
			} else {
				newOrder = append(newOrder, idx)
			}
		}
		m.shuffleOrder = newOrder

		if removedPos >= 0 && removedPos < m.index {
			m.index--
		} else if removedPos == m.index && m.index >= len(m.shuffleOrder) {
			m.index = len(m.shuffleOrder) - 1
		}
	} else {
		if index < m.index {
			m.index--
		} else if index == m.index {
			// current track removed; stay at the same index, now the next track
			if m.index >= len(m.items) {
				m.index = len(m.items) - 1
			}
		}
	}

	m.mu.Unlock()
	m.notifyChange()
	return true
}

// Insert inserts a track at the specified index (actual item index, not shuffle position)
func (m *Manager) Insert(index int, track types.TrackDescriptor) bool {
	m.mu.Lock()

	if index < 0 || index > len(m.items) {
		m.mu.Unlock()
		return false
	}

	m.items = append(m.items[:index], append([]types.TrackDescriptor{track}, m.items[index:]...)...)

	if m.shuffle && len(m.shuffleOrder) > 0 {
		for i := range m.shuffleOrder {
			if m.shuffleOrder[i] >= index {
				m.shuffleOrder[i]++
			}
		}
		insertPos := m.index + 1 + m.rng.Intn(len(m.shuffleOrder)-m.index)
		if insertPos > len(m.shuffleOrder) {
			insertPos = len(m.shuffleOrder)
		}
		m.shuffleOrder = append(m.shuffleOrder[:insertPos], append([]int{index}, m.shuffleOrder[insertPos:]...)...)
	} else {
		if index <= m.index {
			m.index++
		}
	}

	m.mu.Unlock()
	m.notifyChange()
	return true
}

// Move moves an item from one index to another
func (m *Manager) Move(fromIndex, toIndex int) bool {
	m.mu.Lock()

	if fromIndex < 0 || fromIndex >= len(m.items) {
		m.mu.Unlock()
		return false
	}
	if toIndex < 0 || toIndex >= len(m.items) {
		m.mu.Unlock()
		return false
	}
	if fromIndex == toIndex {
		m.mu.Unlock()
		return true
	}

	item := m.items[fromIndex]
	m.items = append(m.items[:fromIndex], m.items[fromIndex+1:]...)

	if toIndex > fromIndex {
		toIndex--
	}
	m.items = append(m.items[:toIndex], append([]types.TrackDescriptor{item}, m.items[toIndex:]...)...)

	// shuffle order indexes positions, not items, so only the plain order
	// needs the current index adjusted
	if !m.shuffle {
		if m.index == fromIndex {
			m.index = toIndex
		} else if fromIndex < m.index && toIndex >= m.index {
			m.index--
		} else if fromIndex > m.index && toIndex <= m.index {
			m.index++
		}
	}

	m.mu.Unlock()
	m.notifyChange()
	return true
}
