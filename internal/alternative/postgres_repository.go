package alternative

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commutepulse/commutepulse/internal/transit"
)

// PostgresMappingRepository is a PostgreSQL implementation of MappingRepository.
type PostgresMappingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresMappingRepository creates a new PostgreSQL mapping repository.
func NewPostgresMappingRepository(pool *pgxpool.Pool) *PostgresMappingRepository {
	return &PostgresMappingRepository{pool: pool}
}

// FindMappingsFor returns active mappings touching (station, line) on either side.
// Both sides are indexed in the database migrations.
func (r *PostgresMappingRepository) FindMappingsFor(ctx context.Context, station, line string) ([]Mapping, error) {
	query := `
		SELECT
			id, station_a, line_a, station_b, line_b,
			walking_minutes, walking_distance_meters, active
		FROM alternative_mappings
		WHERE active
		  AND ((station_a = $1 AND line_a = $2) OR (station_b = $1 AND line_b = $2))
		ORDER BY (station_a = $1 AND line_a = $2) DESC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, transit.StripStationSuffix(station), line)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(
			&m.ID,
			&m.StationA,
			&m.LineA,
			&m.StationB,
			&m.LineB,
			&m.WalkingMinutes,
			&m.WalkingDistanceMeters,
			&m.Active,
		); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}

	return mappings, rows.Err()
}

// Ensure PostgresMappingRepository implements MappingRepository.
var _ MappingRepository = (*PostgresMappingRepository)(nil)
