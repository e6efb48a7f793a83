package departure

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of SettingRepository and
// SnapshotRepository. This is intended for testing. Production should use the
// Postgres repositories.
type InMemoryRepository struct {
	mu        sync.RWMutex
	settings  map[string]*Setting
	snapshots map[snapshotKey]*Snapshot
}

type snapshotKey struct {
	settingID string
	date      string
}

func keyFor(settingID string, date time.Time) snapshotKey {
	return snapshotKey{settingID: settingID, date: date.In(Location).Format(DateLayout)}
}

// NewInMemoryRepository creates a new in-memory departure repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		settings:  make(map[string]*Setting),
		snapshots: make(map[snapshotKey]*Snapshot),
	}
}

// PutSetting stores a setting, replacing any with the same ID.
func (r *InMemoryRepository) PutSetting(setting *Setting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *setting
	r.settings[setting.ID] = &cpy
}

// GetSetting retrieves a setting by ID.
func (r *InMemoryRepository) GetSetting(_ context.Context, settingID string) (*Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[settingID]
	if !ok {
		return nil, ErrSettingNotFound
	}
	cpy := *s
	return &cpy, nil
}

// FindSnapshot returns the snapshot for the setting on date.
func (r *InMemoryRepository) FindSnapshot(_ context.Context, settingID string, date time.Time) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.snapshots[keyFor(settingID, date)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return copySnapshot(s), nil
}

// CreateSnapshot stores a new snapshot.
func (r *InMemoryRepository) CreateSnapshot(_ context.Context, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyFor(snapshot.SettingID, snapshot.Date)
	if _, exists := r.snapshots[key]; exists {
		return ErrSnapshotExists
	}
	r.snapshots[key] = copySnapshot(snapshot)
	return nil
}

// UpdateSnapshot replaces an existing snapshot.
func (r *InMemoryRepository) UpdateSnapshot(_ context.Context, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyFor(snapshot.SettingID, snapshot.Date)
	stored, exists := r.snapshots[key]
	if !exists {
		return ErrSnapshotNotFound
	}
	if stored.Status == StatusDeparted {
		return ErrSnapshotDeparted
	}
	r.snapshots[key] = copySnapshot(snapshot)
	return nil
}

func copySnapshot(s *Snapshot) *Snapshot {
	cpy := *s
	if s.HistoryMinutes != nil {
		h := *s.HistoryMinutes
		cpy.HistoryMinutes = &h
	}
	return &cpy
}

// Ensure InMemoryRepository implements the repository interfaces.
var (
	_ SettingRepository  = (*InMemoryRepository)(nil)
	_ SnapshotRepository = (*InMemoryRepository)(nil)
)
