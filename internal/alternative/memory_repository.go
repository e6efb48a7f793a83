package alternative

import (
	"context"
	"sync"

	"github.com/commutepulse/commutepulse/internal/transit"
)

// InMemoryMappingRepository indexes mappings by both of their sides.
// This is intended for testing and small static deployments.
type InMemoryMappingRepository struct {
	mu       sync.RWMutex
	mappings []Mapping
	bySideA  map[sideKey][]int
	bySideB  map[sideKey][]int
}

type sideKey struct {
	station string
	line    string
}

func newSideKey(station, line string) sideKey {
	return sideKey{station: transit.StripStationSuffix(station), line: line}
}

// NewInMemoryMappingRepository creates a repository holding mappings.
func NewInMemoryMappingRepository(mappings ...Mapping) *InMemoryMappingRepository {
	r := &InMemoryMappingRepository{
		bySideA: make(map[sideKey][]int),
		bySideB: make(map[sideKey][]int),
	}
	r.Add(mappings...)
	return r
}

// Add appends mappings and indexes both sides.
func (r *InMemoryMappingRepository) Add(mappings ...Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range mappings {
		idx := len(r.mappings)
		r.mappings = append(r.mappings, m)

		a := newSideKey(m.StationA, m.LineA)
		b := newSideKey(m.StationB, m.LineB)
		r.bySideA[a] = append(r.bySideA[a], idx)
		r.bySideB[b] = append(r.bySideB[b], idx)
	}
}

// FindMappingsFor returns active mappings touching (station, line), side A matches first.
func (r *InMemoryMappingRepository) FindMappingsFor(_ context.Context, station, line string) ([]Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := newSideKey(station, line)

	var out []Mapping
	for _, idx := range r.bySideA[key] {
		if m := r.mappings[idx]; m.Active {
			out = append(out, m)
		}
	}
	for _, idx := range r.bySideB[key] {
		if m := r.mappings[idx]; m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

// Ensure InMemoryMappingRepository implements MappingRepository.
var _ MappingRepository = (*InMemoryMappingRepository)(nil)
