package departure

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// PostgresRepository is a PostgreSQL implementation of SettingRepository and SnapshotRepository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL departure repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetSetting retrieves a setting by ID.
func (r *PostgresRepository) GetSetting(ctx context.Context, settingID string) (*Setting, error) {
	query := `
		SELECT id, user_id, route_id, departure_type, arrival_time, prep_time_minutes, enabled
		FROM departure_settings
		WHERE id = $1
	`

	var s Setting
	var depType string
	err := r.pool.QueryRow(ctx, query, settingID).Scan(
		&s.ID,
		&s.UserID,
		&s.RouteID,
		&depType,
		&s.ArrivalTime,
		&s.PrepTimeMinutes,
		&s.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, err
	}
	s.DepartureType = DepartureType(depType)

	return &s, nil
}

// FindSnapshot returns the snapshot for the setting on date.
func (r *PostgresRepository) FindSnapshot(ctx context.Context, settingID string, date time.Time) (*Snapshot, error) {
	query := `
		SELECT
			id, setting_id, user_id, route_id, snapshot_date,
			departure_type, arrival_time, prep_time_minutes,
			baseline_minutes, history_minutes, realtime_adjustment_minutes,
			estimated_travel_minutes, optimal_departure_at,
			status, alerts_sent, calculated_at, updated_at
		FROM departure_snapshots
		WHERE setting_id = $1 AND snapshot_date = $2::date
	`

	var s Snapshot
	var depType, status string
	err := r.pool.QueryRow(ctx, query, settingID, date.In(Location).Format(DateLayout)).Scan(
		&s.ID,
		&s.SettingID,
		&s.UserID,
		&s.RouteID,
		&s.Date,
		&depType,
		&s.ArrivalTime,
		&s.PrepTimeMinutes,
		&s.BaselineMinutes,
		&s.HistoryMinutes,
		&s.RealtimeAdjustmentMinutes,
		&s.EstimatedTravelMinutes,
		&s.OptimalDepartureAt,
		&status,
		&s.AlertsSent,
		&s.CalculatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	s.DepartureType = DepartureType(depType)
	s.Status = SnapshotStatus(status)
	s.Date = CivilDate(s.Date)

	return &s, nil
}

// CreateSnapshot stores a new snapshot. UNIQUE (setting_id, snapshot_date) guards
// against concurrent creation.
func (r *PostgresRepository) CreateSnapshot(ctx context.Context, s *Snapshot) error {
	query := `
		INSERT INTO departure_snapshots (
			id, setting_id, user_id, route_id, snapshot_date,
			departure_type, arrival_time, prep_time_minutes,
			baseline_minutes, history_minutes, realtime_adjustment_minutes,
			estimated_travel_minutes, optimal_departure_at,
			status, alerts_sent, calculated_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.SettingID,
		s.UserID,
		s.RouteID,
		s.DateKey(),
		string(s.DepartureType),
		s.ArrivalTime,
		s.PrepTimeMinutes,
		s.BaselineMinutes,
		s.HistoryMinutes,
		s.RealtimeAdjustmentMinutes,
		s.EstimatedTravelMinutes,
		s.OptimalDepartureAt,
		string(s.Status),
		s.AlertsSent,
		s.CalculatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSnapshotExists
		}
		return err
	}
	return nil
}

// UpdateSnapshot replaces the calculated fields and status of an existing snapshot.
func (r *PostgresRepository) UpdateSnapshot(ctx context.Context, s *Snapshot) error {
	query := `
		UPDATE departure_snapshots SET
			arrival_time = $3,
			prep_time_minutes = $4,
			baseline_minutes = $5,
			history_minutes = $6,
			realtime_adjustment_minutes = $7,
			estimated_travel_minutes = $8,
			optimal_departure_at = $9,
			status = $10,
			alerts_sent = $11,
			calculated_at = $12,
			updated_at = $13
		WHERE setting_id = $1 AND snapshot_date = $2::date AND status <> 'departed'
	`

	result, err := r.pool.Exec(ctx, query,
		s.SettingID,
		s.DateKey(),
		s.ArrivalTime,
		s.PrepTimeMinutes,
		s.BaselineMinutes,
		s.HistoryMinutes,
		s.RealtimeAdjustmentMinutes,
		s.EstimatedTravelMinutes,
		s.OptimalDepartureAt,
		string(s.Status),
		s.AlertsSent,
		s.CalculatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM departure_snapshots WHERE setting_id = $1 AND snapshot_date = $2::date)`,
			s.SettingID, s.DateKey(),
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return ErrSnapshotDeparted
		}
		return ErrSnapshotNotFound
	}

	return nil
}

// Ensure PostgresRepository implements the repository interfaces.
var (
	_ SettingRepository  = (*PostgresRepository)(nil)
	_ SnapshotRepository = (*PostgresRepository)(nil)
)
