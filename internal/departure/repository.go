package departure

import (
	"context"
	"time"
)

// SettingRepository provides read access to departure settings.
type SettingRepository interface {
	// GetSetting retrieves a setting by ID.
	// Returns ErrSettingNotFound if the setting doesn't exist.
	GetSetting(ctx context.Context, settingID string) (*Setting, error)
}

// SnapshotRepository persists departure snapshots, one per (setting, civil date).
type SnapshotRepository interface {
	// FindSnapshot returns the snapshot for the setting on date.
	// Returns ErrSnapshotNotFound if none exists.
	FindSnapshot(ctx context.Context, settingID string, date time.Time) (*Snapshot, error)

	// CreateSnapshot stores a new snapshot.
	// Returns ErrSnapshotExists if one already exists for the same (setting, date).
	CreateSnapshot(ctx context.Context, snapshot *Snapshot) error

	// UpdateSnapshot replaces an existing snapshot. A departed snapshot is final.
	// Returns ErrSnapshotNotFound if it doesn't exist and ErrSnapshotDeparted if
	// the stored snapshot has departed.
	UpdateSnapshot(ctx context.Context, snapshot *Snapshot) error
}
