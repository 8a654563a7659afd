// Package registry tracks live participant membership per lecture room.
//
// Join/Leave for one room are serialized behind a per-room mutex so that
// concurrent mutations from different connections can neither lose updates
// nor duplicate entries.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturehall/backend/internal/lectures"
	"github.com/lecturehall/backend/internal/models"
)

// ErrRoomNotFound is returned when the lecture record does not exist upstream.
var ErrRoomNotFound = errors.New("room not found")

// Store is the document-store surface the registry needs. Satisfied by
// *lectures.Repository.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lecture, error)
	AddParticipant(ctx context.Context, lectureID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, lectureID, userID uuid.UUID) error
	ListParticipants(ctx context.Context, lectureID uuid.UUID) ([]uuid.UUID, error)
}

type room struct {
	mu      sync.Mutex
	members map[uuid.UUID]struct{}
	loaded  bool
}

// Registry owns the live participant set of every active room.
type Registry struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	rooms map[uuid.UUID]*room
}

// New creates a room registry.
func New(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		logger: logger,
		rooms:  make(map[uuid.UUID]*room),
	}
}

func (r *Registry) room(id uuid.UUID) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	if !ok {
		rm = &room{members: make(map[uuid.UUID]struct{})}
		r.rooms[id] = rm
	}
	return rm
}

// load populates the member set from the store once per room.
// Caller holds rm.mu.
func (r *Registry) load(ctx context.Context, rm *room, roomID uuid.UUID) error {
	if rm.loaded {
		return nil
	}
	ids, err := r.store.ListParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rm.members[id] = struct{}{}
	}
	rm.loaded = true
	return nil
}

// Join adds userID to the room's participant set. Idempotent: joining twice
// yields the same set as joining once. Returns ErrRoomNotFound when the
// lecture record does not exist.
func (r *Registry) Join(ctx context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := r.store.GetByID(ctx, roomID); err != nil {
		if errors.Is(err, lectures.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	rm := r.room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if err := r.load(ctx, rm, roomID); err != nil {
		return nil, err
	}
	if _, ok := rm.members[userID]; !ok {
		if err := r.store.AddParticipant(ctx, roomID, userID); err != nil {
			return nil, err
		}
		rm.members[userID] = struct{}{}
		r.logger.Debug("participant joined",
			zap.String("room_id", roomID.String()),
			zap.String("user_id", userID.String()),
			zap.Int("count", len(rm.members)))
	}
	return snapshot(rm.members), nil
}

// Leave removes userID from the room's participant set. A no-op when absent.
func (r *Registry) Leave(ctx context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error) {
	rm := r.room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if err := r.load(ctx, rm, roomID); err != nil {
		return nil, err
	}
	if _, ok := rm.members[userID]; ok {
		if err := r.store.RemoveParticipant(ctx, roomID, userID); err != nil {
			return nil, err
		}
		delete(rm.members, userID)
		r.logger.Debug("participant left",
			zap.String("room_id", roomID.String()),
			zap.String("user_id", userID.String()),
			zap.Int("count", len(rm.members)))
	}
	return snapshot(rm.members), nil
}

// Participants returns the current participant set of a room.
func (r *Registry) Participants(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	rm := r.room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if err := r.load(ctx, rm, roomID); err != nil {
		return nil, err
	}
	return snapshot(rm.members), nil
}

// Count returns the number of participants in a room without touching the store.
func (r *Registry) Count(roomID uuid.UUID) int {
	rm := r.room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

func snapshot(members map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
