package commute

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of the commute read repositories.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL commute repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetRoute retrieves a route and its checkpoints ordered by sequence.
func (r *PostgresRepository) GetRoute(ctx context.Context, routeID string) (*Route, error) {
	query := `
		SELECT id, user_id, name, expected_duration_minutes, created_at, updated_at
		FROM routes
		WHERE id = $1
	`

	var route Route
	err := r.pool.QueryRow(ctx, query, routeID).Scan(
		&route.ID,
		&route.UserID,
		&route.Name,
		&route.ExpectedDurationMinutes,
		&route.CreatedAt,
		&route.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}

	checkpoints, err := r.listCheckpoints(ctx, routeID)
	if err != nil {
		return nil, err
	}
	route.Checkpoints = checkpoints

	return &route, nil
}

func (r *PostgresRepository) listCheckpoints(ctx context.Context, routeID string) ([]Checkpoint, error) {
	query := `
		SELECT
			id, route_id, sequence_order, name, checkpoint_type,
			COALESCE(line_id, ''), expected_wait_minutes, COALESCE(linked_station_id, '')
		FROM route_checkpoints
		WHERE route_id = $1
		ORDER BY sequence_order ASC
	`

	rows, err := r.pool.Query(ctx, query, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var cpType string
		if err := rows.Scan(
			&cp.ID,
			&cp.RouteID,
			&cp.Sequence,
			&cp.Name,
			&cpType,
			&cp.LineID,
			&cp.ExpectedWaitMinutes,
			&cp.LinkedStationID,
		); err != nil {
			return nil, err
		}
		cp.Type = CheckpointType(cpType)
		checkpoints = append(checkpoints, cp)
	}

	return checkpoints, rows.Err()
}

// FindRecords returns the user's records of the given type from the last lookbackDays, newest first.
func (r *PostgresRepository) FindRecords(ctx context.Context, userID string, commuteType CommuteType, lookbackDays int) ([]Record, error) {
	query := `
		SELECT id, user_id, commute_date, commute_type, actual_departure_at
		FROM commute_records
		WHERE user_id = $1
		  AND commute_type = $2
		  AND commute_date >= CURRENT_DATE - $3::int
		ORDER BY commute_date DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, string(commuteType), lookbackDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var recType string
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Date,
			&recType,
			&rec.ActualDepartureAt,
		); err != nil {
			return nil, err
		}
		rec.Type = CommuteType(recType)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// FindCompletedSessions returns completed sessions for the user and route started at or after since.
func (r *PostgresRepository) FindCompletedSessions(ctx context.Context, userID, routeID string, since time.Time) ([]Session, error) {
	query := `
		SELECT id, user_id, route_id, status, total_duration_minutes, started_at
		FROM commute_sessions
		WHERE user_id = $1
		  AND route_id = $2
		  AND status = 'completed'
		  AND started_at >= $3
		ORDER BY started_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, routeID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var status string
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.RouteID,
			&status,
			&s.TotalDurationMinutes,
			&s.StartedAt,
		); err != nil {
			return nil, err
		}
		s.Status = SessionStatus(status)
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// Ensure PostgresRepository implements the repository interfaces.
var (
	_ RouteRepository   = (*PostgresRepository)(nil)
	_ RecordRepository  = (*PostgresRepository)(nil)
	_ SessionRepository = (*PostgresRepository)(nil)
)
