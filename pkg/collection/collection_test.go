package collection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civium/matchd/pkg/collection"
	"github.com/civium/matchd/pkg/tenant"
)

const testDim = 4

func newTestCollection(t *testing.T) *collection.Collection {
	t.Helper()
	key, err := tenant.NewKey(tenant.CategoryPrivate, 1, tenant.KindKnown)
	require.NoError(t, err)
	return collection.New(key, testDim, nil)
}

// basis returns the i-th standard basis vector, already unit length.
func basis(i int) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	return v
}

func TestCollection_Add(t *testing.T) {
	c := newTestCollection(t)

	pos, err := c.Add(basis(0))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = c.Add(basis(1))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 2, c.ValidLen())
}

func TestCollection_Add_Validation(t *testing.T) {
	c := newTestCollection(t)

	_, err := c.Add([]float32{1, 0})
	assert.ErrorIs(t, err, collection.ErrDimensionMismatch)

	_, err = c.Add(make([]float32, testDim))
	assert.ErrorIs(t, err, collection.ErrZeroVector)

	// Rejected vectors are never stored.
	assert.Equal(t, 0, c.Len())
}

func TestCollection_Add_Normalizes(t *testing.T) {
	c := newTestCollection(t)

	// Non-unit input is normalized on insert: searching with the unit form
	// yields similarity 1.
	_, err := c.Add([]float32{0, 5, 0, 0})
	require.NoError(t, err)

	matches, err := c.Search(basis(1), 1, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
	assert.InDelta(t, 100.0, matches[0].Confidence, 1e-3)
}

func TestCollection_Invalidate(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Add(basis(0))
	require.NoError(t, err)

	assert.False(t, c.Invalidate(-1))
	assert.False(t, c.Invalidate(1))

	assert.True(t, c.Invalidate(0))
	// Set semantics: invalidating an already-tombstoned position still
	// succeeds.
	assert.True(t, c.Invalidate(0))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.ValidLen())
	assert.Equal(t, 1, c.TombstoneCount())
}

func TestCollection_Revalidate(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Add(basis(0))
	require.NoError(t, err)

	assert.False(t, c.Revalidate(0), "not tombstoned yet")

	require.True(t, c.Invalidate(0))
	assert.True(t, c.Revalidate(0))
	assert.False(t, c.Revalidate(0), "tombstone already removed")
	assert.Equal(t, 1, c.ValidLen())
}

func TestCollection_TombstoneExclusion(t *testing.T) {
	c := newTestCollection(t)

	vec := []float32{0.5, 0.5, 0.5, 0.5}
	pos, err := c.Add(vec)
	require.NoError(t, err)

	require.True(t, c.Invalidate(pos))

	// Similarity to itself is 1.0, yet the tombstoned position must never
	// come back.
	matches, err := c.Search(vec, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCollection_Search_Empty(t *testing.T) {
	c := newTestCollection(t)

	matches, err := c.Search(basis(0), 10, 0.4)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCollection_Search_Validation(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Add(basis(0))
	require.NoError(t, err)

	_, err = c.Search([]float32{1}, 10, 0)
	assert.ErrorIs(t, err, collection.ErrDimensionMismatch)

	_, err = c.Search(make([]float32, testDim), 10, 0)
	assert.ErrorIs(t, err, collection.ErrZeroVector)
}

func TestCollection_Search_Ranking(t *testing.T) {
	c := newTestCollection(t)

	// Orthogonal to the query, similarity exactly 0.
	_, err := c.Add(basis(1))
	require.NoError(t, err)
	// Identical to the query.
	_, err = c.Add(basis(0))
	require.NoError(t, err)
	// Partially aligned, similarity ~0.707.
	_, err = c.Add([]float32{1, 1, 0, 0})
	require.NoError(t, err)

	matches, err := c.Search(basis(0), 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3, "threshold is inclusive: similarity 0 passes threshold 0")

	assert.Equal(t, 1, matches[0].Position)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-5)
	assert.Equal(t, 2, matches[1].Position)
	assert.InDelta(t, 0.7071, matches[1].Similarity, 1e-3)
	assert.Equal(t, 0, matches[2].Position)
	assert.InDelta(t, 0.0, matches[2].Similarity, 1e-6)
}

func TestCollection_Search_Threshold(t *testing.T) {
	c := newTestCollection(t)

	_, err := c.Add(basis(0))
	require.NoError(t, err)
	_, err = c.Add([]float32{1, 1, 0, 0}) // ~0.707 to basis(0)
	require.NoError(t, err)

	matches, err := c.Search(basis(0), 10, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Position)
}

func TestCollection_Search_TopK(t *testing.T) {
	c := newTestCollection(t)

	for i := 0; i < 5; i++ {
		_, err := c.Add([]float32{1, float32(i) * 0.01, 0, 0})
		require.NoError(t, err)
	}

	matches, err := c.Search(basis(0), 2, 0)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestCollection_Search_OverFetchSufficiency(t *testing.T) {
	c := newTestCollection(t)

	// Ten near-identical vectors, all similar to the query.
	for i := 0; i < 10; i++ {
		_, err := c.Add([]float32{1, float32(i) * 0.001, 0, 0})
		require.NoError(t, err)
	}
	// Tombstone five interleaved positions.
	for _, pos := range []int{0, 2, 4, 6, 8} {
		require.True(t, c.Invalidate(pos))
	}

	// The 3x over-fetch window must absorb the tombstones: exactly top_k
	// results in a single round.
	matches, err := c.Search(basis(0), 3, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.Contains(t, []int{1, 3, 5, 7, 9}, m.Position)
	}
}

func TestCollection_ConfidenceCap(t *testing.T) {
	c := newTestCollection(t)

	vec := []float32{0.1, 0.2, 0.3, 0.4}
	_, err := c.Add(vec)
	require.NoError(t, err)

	matches, err := c.Search(vec, 1, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.LessOrEqual(t, matches[0].Confidence, float32(100))
}
