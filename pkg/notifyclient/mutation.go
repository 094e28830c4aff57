package notifyclient

import (
	"slices"
	"time"
)

// MutationKind identifies an optimistic user action.
type MutationKind string

const (
	MutationMarkRead    MutationKind = "mark_read"
	MutationMarkAllRead MutationKind = "mark_all_read"
	MutationDelete      MutationKind = "delete"
)

// MutationState is the lifecycle of an optimistic mutation. Every mutation
// starts Applied and settles exactly once.
type MutationState int

const (
	// MutationApplied means the local view already reflects the action and the
	// server call has not settled.
	MutationApplied MutationState = iota
	// MutationConfirmed means the server accepted the action.
	MutationConfirmed
	// MutationRolledBack means the server rejected the action and the local
	// view was restored from the snapshot.
	MutationRolledBack
	// MutationSuperseded means the server rejected the action after a full
	// refetch replaced the view, so there was nothing to restore.
	MutationSuperseded
)

func (s MutationState) String() string {
	switch s {
	case MutationApplied:
		return "applied"
	case MutationConfirmed:
		return "confirmed"
	case MutationRolledBack:
		return "rolled_back"
	case MutationSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// viewState is the mutable part of the notification view model.
type viewState struct {
	items  []Notification
	unread int64
}

func (v *viewState) indexOf(id string) int {
	return slices.IndexFunc(v.items, func(n Notification) bool { return n.ID == id })
}

func (v *viewState) decrementUnread() int64 {
	if v.unread <= 0 {
		return 0
	}
	v.unread--
	return 1
}

// snapshot holds exactly what an apply changed so rollback can undo it.
// A deleted item is remembered by its neighbours rather than its index, since
// live events may reshape the list while the call is in flight.
type snapshot struct {
	item        Notification
	prevID      string
	nextID      string
	unreadDelta int64
	readIDs     []string
}

// mutation is one optimistic action moving through Applied to a settled state.
type mutation struct {
	kind  MutationKind
	id    string
	epoch uint64
	state MutationState
	snap  snapshot
	// changed is false when apply found nothing to do locally.
	changed bool
}

func newMutation(kind MutationKind, id string, epoch uint64) *mutation {
	return &mutation{kind: kind, id: id, epoch: epoch, state: MutationApplied}
}

// apply mutates v and records the snapshot needed to reverse it.
func (m *mutation) apply(v *viewState, now time.Time) {
	switch m.kind {
	case MutationMarkRead:
		idx := v.indexOf(m.id)
		if idx < 0 || v.items[idx].Read {
			return
		}
		m.snap.item = v.items[idx]
		v.items[idx].Read = true
		v.items[idx].ReadAt = &now
		m.snap.unreadDelta = v.decrementUnread()
		m.changed = true

	case MutationMarkAllRead:
		for i := range v.items {
			if v.items[i].Read {
				continue
			}
			m.snap.readIDs = append(m.snap.readIDs, v.items[i].ID)
			v.items[i].Read = true
			v.items[i].ReadAt = &now
		}
		// The counter covers notifications outside the loaded page too.
		m.snap.unreadDelta = v.unread
		v.unread = 0
		m.changed = len(m.snap.readIDs) > 0 || m.snap.unreadDelta > 0

	case MutationDelete:
		idx := v.indexOf(m.id)
		if idx < 0 {
			return
		}
		m.snap.item = v.items[idx]
		if idx > 0 {
			m.snap.prevID = v.items[idx-1].ID
		}
		if idx+1 < len(v.items) {
			m.snap.nextID = v.items[idx+1].ID
		}
		v.items = slices.Delete(v.items, idx, idx+1)
		if !m.snap.item.Read {
			m.snap.unreadDelta = v.decrementUnread()
		}
		m.changed = true
	}
}

// rollback restores what apply changed. Item and counter are restored
// together; an item that live updates already restored or removed is left
// alone along with its counter share.
func (m *mutation) rollback(v *viewState) {
	if !m.changed {
		return
	}

	switch m.kind {
	case MutationMarkRead:
		idx := v.indexOf(m.id)
		if idx < 0 || !v.items[idx].Read {
			return
		}
		v.items[idx].Read = false
		v.items[idx].ReadAt = m.snap.item.ReadAt
		v.unread += m.snap.unreadDelta

	case MutationMarkAllRead:
		restored := m.snap.unreadDelta
		for _, id := range m.snap.readIDs {
			idx := v.indexOf(id)
			if idx < 0 {
				// Deleted live while read locally; its share is gone too.
				restored--
				continue
			}
			v.items[idx].Read = false
			v.items[idx].ReadAt = nil
		}
		v.unread += max(restored, 0)

	case MutationDelete:
		if v.indexOf(m.id) >= 0 {
			return
		}
		v.items = slices.Insert(v.items, m.restoreIndex(v), m.snap.item)
		v.unread += m.snap.unreadDelta
	}
}

// restoreIndex places a deleted item back next to a surviving neighbour, or
// by recency when both neighbours are gone.
func (m *mutation) restoreIndex(v *viewState) int {
	if m.snap.prevID != "" {
		if idx := v.indexOf(m.snap.prevID); idx >= 0 {
			return idx + 1
		}
	}
	if m.snap.nextID != "" {
		if idx := v.indexOf(m.snap.nextID); idx >= 0 {
			return idx
		}
	}
	created := m.snap.item.CreatedAt
	if idx := slices.IndexFunc(v.items, func(n Notification) bool { return n.CreatedAt.Before(created) }); idx >= 0 {
		return idx
	}
	return len(v.items)
}

// settle moves the mutation out of Applied. A failure after the view was
// replaced by a newer refetch does not roll back.
func (m *mutation) settle(v *viewState, err error, epoch uint64) MutationState {
	switch {
	case err == nil:
		m.state = MutationConfirmed
	case epoch != m.epoch:
		m.state = MutationSuperseded
	default:
		m.rollback(v)
		m.state = MutationRolledBack
	}
	return m.state
}
