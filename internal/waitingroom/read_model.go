// Package waitingroom keeps the display projection of today's queue:
// which visits are waiting and which one is currently called in.
package waitingroom

import (
	"sync"

	"hospital-waiting-room/internal/models"
	"hospital-waiting-room/internal/relay"
)

// ReadModel is a relay-fed projection of today's visits. It never writes
// to the visit store.
type ReadModel struct {
	mu      sync.RWMutex
	entries map[uint]models.WaitingRoomEntry
	order   []uint
	current uint
}

// Snapshot is what a display renders
type Snapshot struct {
	Entries []models.WaitingRoomEntry `json:"entries"`
	Current *models.WaitingRoomEntry  `json:"current"`
}

func NewReadModel() *ReadModel {
	return &ReadModel{entries: make(map[uint]models.WaitingRoomEntry)}
}

// Load replaces the model with a fresh fetch. Completed visits are left out.
func (m *ReadModel) Load(visits []models.Visit, currentID *uint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[uint]models.WaitingRoomEntry, len(visits))
	m.order = m.order[:0]
	m.current = 0

	for i := range visits {
		v := &visits[i]
		if v.Status == models.VisitStatusComplete {
			continue
		}
		if _, seen := m.entries[v.ID]; !seen {
			m.order = append(m.order, v.ID)
		}
		m.entries[v.ID] = models.EntryFromVisit(v)
	}
	if currentID != nil {
		if _, ok := m.entries[*currentID]; ok {
			m.current = *currentID
		}
	}
}

// Apply folds one relay event into the model
func (m *ReadModel) Apply(ev relay.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case relay.EventVisitNotified:
		id := ev.VisitID
		if ev.Visit != nil {
			id = ev.Visit.ID
			if ev.Visit.Status == models.VisitStatusComplete {
				m.evict(id)
				return
			}
			if _, seen := m.entries[id]; !seen {
				m.order = append(m.order, id)
			}
			m.entries[id] = models.EntryFromVisit(ev.Visit)
		}
		if _, ok := m.entries[id]; ok {
			m.current = id
		}
	case relay.EventVisitRemoved:
		m.evict(ev.VisitID)
	}
}

func (m *ReadModel) evict(id uint) {
	if _, ok := m.entries[id]; !ok {
		return
	}
	delete(m.entries, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.current == id {
		m.current = 0
	}
}

// Entries returns the waiting visits in queue order
func (m *ReadModel) Entries() []models.WaitingRoomEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.WaitingRoomEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}

// Current returns the visit currently called in, if any
func (m *ReadModel) Current() (models.WaitingRoomEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == 0 {
		return models.WaitingRoomEntry{}, false
	}
	e, ok := m.entries[m.current]
	return e, ok
}

// Snapshot returns entries and the current visit together
func (m *ReadModel) Snapshot() Snapshot {
	s := Snapshot{Entries: m.Entries()}
	if cur, ok := m.Current(); ok {
		s.Current = &cur
	}
	return s
}
