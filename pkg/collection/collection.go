// Package collection implements the append-only vector store with a tombstone
// overlay providing logical deletion without compaction.
//
// A collection holds unit-normalized embeddings for one tenant key. Positions
// are permanent: assigned at append, never reused or reclaimed. Deletion is a
// tombstone entry filtered out of search results; the vector itself stays in
// the scan structure.
package collection

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/civium/matchd/pkg/tenant"
)

// Sentinel errors for vector validation.
var (
	// ErrDimensionMismatch is returned when a vector's length differs from the
	// collection dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrZeroVector is returned for vectors with ~0 norm. Zero vectors are
	// never stored: they corrupt cosine math, and some encodings reserve them
	// as the retired-position sentinel.
	ErrZeroVector = errors.New("zero vector")
)

// overFetchFactor sizes the candidate window so tombstoned and sub-threshold
// entries can be filtered after the similarity scan.
const overFetchFactor = 3

// Match is one search hit. Similarity is the inner product of unit vectors
// (range [-1, 1]); confidence rescales it to a 0-100 display range.
type Match struct {
	Position   int     `json:"position"`
	Similarity float32 `json:"similarity"`
	Confidence float32 `json:"confidence"`
}

// Collection is an ordered, append-only sequence of unit-norm vectors plus
// the set of tombstoned positions excluded from results.
//
// Writers (Add, Invalidate, Revalidate) are mutually exclusive per
// collection; concurrent searches proceed without blocking each other and
// never observe a half-appended write.
type Collection struct {
	key tenant.Key
	dim int

	mu         sync.RWMutex
	vectors    [][]float32
	tombstones map[int]struct{}

	// ioMu serializes artifact writes so concurrent saves cannot interleave.
	ioMu sync.Mutex

	logger *zap.Logger
}

// New creates an empty collection with dimension dim.
func New(key tenant.Key, dim int, logger *zap.Logger) *Collection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collection{
		key:        key,
		dim:        dim,
		tombstones: make(map[int]struct{}),
		logger:     logger.Named("collection").With(zap.String("collection", key.String())),
	}
}

// Key returns the tenant key this collection belongs to.
func (c *Collection) Key() tenant.Key { return c.key }

// Dimension returns the embedding dimensionality.
func (c *Collection) Dimension() int { return c.dim }

// Add validates, normalizes and appends a vector, returning its permanent
// position (the pre-insertion count). Assign-position-and-append is a single
// step under the write lock, so two concurrent adds never share a position.
func (c *Collection) Add(vec []float32) (int, error) {
	normalized, err := normalize(vec, c.dim)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	position := len(c.vectors)
	c.vectors = append(c.vectors, normalized)
	return position, nil
}

// Invalidate tombstones a position, excluding it from search results.
// Positions outside [0, total) return false. Invalidating an already
// tombstoned position is a set-add, not an error: it still returns true.
func (c *Collection) Invalidate(position int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if position < 0 || position >= len(c.vectors) {
		return false
	}
	c.tombstones[position] = struct{}{}
	return true
}

// Revalidate removes a position from the tombstone set. Returns false when
// the position is not tombstoned.
func (c *Collection) Revalidate(position int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tombstones[position]; !ok {
		return false
	}
	delete(c.tombstones, position)
	return true
}

// Search runs an exact inner-product scan and returns up to topK matches with
// similarity >= threshold, best first, ties broken by insertion order.
//
// Tombstoned entries must be filtered after the scan, so a candidate window
// of min(3*topK, total) is over-fetched first. If the window holds fewer than
// topK valid entries the short list is returned as-is; there is no second
// round with a larger window.
func (c *Collection) Search(query []float32, topK int, threshold float32) ([]Match, error) {
	q, err := normalize(query, c.dim)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	total := len(c.vectors)
	if total == 0 {
		return nil, nil
	}

	type candidate struct {
		position   int
		similarity float32
	}
	candidates := make([]candidate, total)
	for i, v := range c.vectors {
		candidates[i] = candidate{position: i, similarity: dot(q, v)}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})

	window := overFetchFactor * topK
	if window > total {
		window = total
	}

	matches := make([]Match, 0, topK)
	for _, cand := range candidates[:window] {
		if cand.similarity < threshold {
			// Descending order: nothing further in the window passes either.
			break
		}
		if _, dead := c.tombstones[cand.position]; dead {
			continue
		}
		matches = append(matches, Match{
			Position:   cand.position,
			Similarity: cand.similarity,
			Confidence: confidence(cand.similarity),
		})
		if len(matches) >= topK {
			break
		}
	}
	return matches, nil
}

// Len returns the total vector count, tombstoned entries included. It only
// ever increases.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// ValidLen returns the count of non-tombstoned vectors.
func (c *Collection) ValidLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors) - len(c.tombstones)
}

// TombstoneCount returns the number of tombstoned positions.
func (c *Collection) TombstoneCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tombstones)
}

// ValidateVector checks a vector against the dimension and zero-norm
// contracts without storing anything.
func ValidateVector(vec []float32, dim int) error {
	_, err := normalize(vec, dim)
	return err
}

func confidence(similarity float32) float32 {
	conf := similarity * 100
	if conf > 100 {
		conf = 100
	}
	return conf
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize validates dimension and norm and returns a unit-length copy.
func normalize(vec []float32, dim int) ([]float32, error) {
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, dim, len(vec))
	}
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-12 {
		return nil, fmt.Errorf("%w: norm is ~0", ErrZeroVector)
	}
	out := make([]float32, len(vec))
	inv := float32(1 / norm)
	for i, v := range vec {
		out[i] = v * inv
	}
	return out, nil
}
