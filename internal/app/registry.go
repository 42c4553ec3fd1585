package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomEntry struct {
	mu   sync.RWMutex
	room *domain.Room
}

// Registry is the in-memory owner of every room. Locks are always taken
// registry first, then room; rooms never lock each other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomID]*roomEntry),
	}
}

func (r *Registry) entry(id domain.RoomID) (*roomEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[id]
	return e, ok
}

func (r *Registry) Put(room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; ok {
		return domain.ErrRoomExists
	}
	r.rooms[room.ID] = &roomEntry{room: room}
	log.Info().Str("module", "app.registry").Str("room", string(room.ID)).Msg("room stored")
	return nil
}

// Get returns a snapshot of the room taken under its read lock.
func (r *Registry) Get(id domain.RoomID) (*domain.Room, error) {
	var out *domain.Room
	err := r.View(id, func(room *domain.Room) error {
		out = room.Clone()
		return nil
	})
	return out, err
}

func (r *Registry) Remove(id domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; !ok {
		return domain.ErrRoomNotFound
	}
	delete(r.rooms, id)
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room removed")
	return nil
}

// View runs fn under the room's shared lock. fn must not keep room.
func (r *Registry) View(id domain.RoomID, fn func(room *domain.Room) error) error {
	e, ok := r.entry(id)
	if !ok {
		return domain.ErrRoomNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(e.room)
}

// Update runs fn under the room's exclusive lock. Inactive rooms are never
// handed to fn. fn does the whole check-then-mutate and no I/O.
func (r *Registry) Update(id domain.RoomID, fn func(room *domain.Room) error) error {
	e, ok := r.entry(id)
	if !ok {
		return domain.ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.room.IsActive {
		return domain.ErrRoomInactive
	}
	return fn(e.room)
}

// End deactivates the room and drops it from the registry in one step.
// The returned snapshot is the room's final state.
func (r *Registry) End(id domain.RoomID) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	e.mu.Lock()
	e.room.Deactivate()
	final := e.room.Clone()
	e.mu.Unlock()
	delete(r.rooms, id)
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room ended")
	return final, nil
}

// List returns snapshots of all rooms ordered by creation time.
func (r *Registry) List() []*domain.Room {
	r.mu.RLock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*domain.Room, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, e.room.Clone())
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
