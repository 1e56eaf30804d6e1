package pricesource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	sim := NewSimulated(SimulatedConfig{})
	r.Register("simulated", sim)
	r.Register("indexer", NewIndexer(IndexerConfig{BaseURL: "http://localhost"}))

	got, err := r.Get("simulated")
	require.NoError(t, err)
	assert.Same(t, sim, got)
	assert.Equal(t, []string{"indexer", "simulated"}, r.Kinds())

	_, err = r.Get("coingecko")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
