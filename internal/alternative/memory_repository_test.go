package alternative_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/alternative"
)

func TestInMemoryMappingRepository_FindsBothSides(t *testing.T) {
	repo := gangnamMappings()

	mappings, err := repo.FindMappingsFor(context.Background(), "강남역", "2호선")
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "m1", mappings[0].ID)
	assert.Equal(t, "m2", mappings[1].ID)

	mappings, err = repo.FindMappingsFor(context.Background(), "신논현", "9호선")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "m1", mappings[0].ID)
}

func TestInMemoryMappingRepository_IgnoresInactiveAndOtherLines(t *testing.T) {
	repo := gangnamMappings()

	mappings, err := repo.FindMappingsFor(context.Background(), "역삼", "2호선")
	require.NoError(t, err)
	assert.Empty(t, mappings)

	mappings, err = repo.FindMappingsFor(context.Background(), "강남", "신분당선")
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestMapping_Opposite(t *testing.T) {
	m := alternative.Mapping{
		ID: "m1", StationA: "강남", LineA: "2호선", StationB: "신논현역", LineB: "9호선",
		WalkingMinutes: 6, WalkingDistanceMeters: 450,
	}

	c, ok := m.Opposite("강남역", "2호선")
	require.True(t, ok)
	assert.Equal(t, "신논현역", c.Station)
	assert.Equal(t, "9호선", c.Line)
	assert.Equal(t, 6, c.WalkingMinutes)

	c, ok = m.Opposite("신논현", "9호선")
	require.True(t, ok)
	assert.Equal(t, "강남", c.Station)

	_, ok = m.Opposite("강남", "9호선")
	assert.False(t, ok)
}
