// Package memory keeps latest device state in process memory. It backs local
// runs without a database and the pipeline tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/netatmo-ingest/internal/domain"
)

// Store is a concurrency-safe in-memory latest-state store. Stored values are
// copied on the way in and out so callers never share state with it.
type Store struct {
	mu    sync.RWMutex
	data  map[string]domain.LatestDeviceState
	clock clockwork.Clock
}

// NewStore creates an empty Store. A nil clock uses real time for the
// created/updated timestamps.
func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		data:  make(map[string]domain.LatestDeviceState),
		clock: clock,
	}
}

func (s *Store) Get(_ context.Context, deviceID string) (domain.LatestDeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[deviceID]
	if !ok {
		return domain.LatestDeviceState{}, domain.NewError(domain.KindLatestNotFound, deviceID, nil)
	}
	return state.Clone(), nil
}

// Create stores the first snapshot of a device. It fails if the device
// already has one.
func (s *Store) Create(_ context.Context, state domain.LatestDeviceState) (domain.LatestDeviceState, error) {
	if state.DeviceID == "" {
		return domain.LatestDeviceState{}, domain.NewError(domain.KindCreateFailed, "", errors.New("missing device id"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[state.DeviceID]; ok {
		return domain.LatestDeviceState{}, domain.NewError(domain.KindCreateFailed, state.DeviceID, errors.New("device already exists"))
	}
	now := s.clock.Now().UTC()
	stored := state.Clone()
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.data[state.DeviceID] = stored
	return stored.Clone(), nil
}

// Update replaces the location, extras and sensors of an existing device.
func (s *Store) Update(_ context.Context, deviceID string, patch domain.LatestPatch) (domain.LatestDeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.data[deviceID]
	if !ok {
		return domain.LatestDeviceState{}, domain.NewError(domain.KindUpdateFailed, deviceID,
			domain.NewError(domain.KindLatestNotFound, deviceID, nil))
	}
	next := domain.LatestDeviceState{
		DeviceID:  deviceID,
		Location:  patch.Location,
		Extras:    patch.Extras,
		Sensors:   patch.Sensors,
		CreatedAt: stored.CreatedAt,
		UpdatedAt: s.clock.Now().UTC(),
	}.Clone()
	s.data[deviceID] = next
	return next.Clone(), nil
}

// Len reports the number of stored devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Snapshot returns a copy of every stored state, ordered by device id.
func (s *Store) Snapshot() []domain.LatestDeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LatestDeviceState, 0, len(s.data))
	for _, state := range s.data {
		out = append(out, state.Clone())
	}
	slices.SortFunc(out, func(a, b domain.LatestDeviceState) int {
		return strings.Compare(a.DeviceID, b.DeviceID)
	})
	return out
}

// Restore loads previously snapshotted states as they are, timestamps
// included. Existing entries for the same devices are replaced.
func (s *Store) Restore(states []domain.LatestDeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, state := range states {
		if state.DeviceID == "" {
			return errors.New("restore: state without device id")
		}
		s.data[state.DeviceID] = state.Clone()
	}
	return nil
}
