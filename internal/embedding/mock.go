package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// Mock is a deterministic Embedder for tests and offline development. The
// same text always yields the same unit vector.
type Mock struct {
	dims int

	// EmbedFunc overrides the default behaviour when set.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	calls   atomic.Int64
	queries atomic.Int64
}

var _ Embedder = (*Mock)(nil)

// NewMock returns a mock producing vectors of size dims.
func NewMock(dims int) *Mock {
	if dims <= 0 {
		dims = 384
	}
	return &Mock{dims: dims}
}

func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return DeterministicVector(text, m.dims), nil
}

// EmbedQuery counts the call as a query and otherwise behaves like Embed,
// so a query equal to a stored document yields the same vector.
func (m *Mock) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.queries.Add(1)
	return m.Embed(ctx, text)
}

// Calls returns how many times Embed ran, queries included.
func (m *Mock) Calls() int { return int(m.calls.Load()) }

// QueryCalls returns how many times EmbedQuery ran.
func (m *Mock) QueryCalls() int { return int(m.queries.Load()) }

func (m *Mock) Dimensions() int { return m.dims }

func (m *Mock) ModelInfo(context.Context) *ModelInfo {
	return &ModelInfo{Provider: "mock", Name: "fnv-lcg", Dimensions: m.dims, Available: true}
}

func (m *Mock) Close() error { return nil }

// DeterministicVector derives a unit vector from an FNV hash of text.
func DeterministicVector(text string, dims int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dims)
	var sumSquares float64
	for i := range vector {
		seed = seed*1664525 + 1013904223
		v := float32(seed%1000)/1000.0 - 0.5
		vector[i] = v
		sumSquares += float64(v * v)
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
