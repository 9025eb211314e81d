package vectorstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/types"
)

func testStoreConfig() config.VectorStoreConfig {
	return config.VectorStoreConfig{
		Backend:         config.BackendBadger,
		Collection:      "cv_vectors",
		Dimensions:      3,
		Distance:        "cosine",
		StartupAttempts: 3,
		StartupDelay:    time.Millisecond,
		Badger:          config.BadgerConfig{InMemory: true},
	}
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(testStoreConfig(), errors.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureCollection(context.Background()))
	return store
}

func record(id, name string, ts float64) types.CandidateRecord {
	return types.CandidateRecord{
		ID:         id,
		FullName:   name,
		JobTitle:   "Engineer",
		FullText:   name + "\nEngineer",
		Filename:   name + ".txt",
		LinesCount: 2,
		WordsCount: 3,
		Timestamp:  ts,
	}
}

func TestBadgerUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, record("a", "Alice", 1), []float32{1, 0, 0}))
	require.NoError(t, store.Upsert(ctx, record("b", "Bob", 2), []float32{0, 1, 0}))
	require.NoError(t, store.Upsert(ctx, record("c", "Carol", 3), []float32{0.9, 0.1, 0}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Record.ID)
	assert.Equal(t, "c", hits[1].Record.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	got := hits[0].Record
	assert.Equal(t, "Alice", got.FullName)
	assert.Equal(t, 2, got.LinesCount)
	assert.Equal(t, 3, got.WordsCount)
	assert.Equal(t, "Alice.txt", got.Filename)
}

func TestBadgerRejectsWrongDimensions(t *testing.T) {
	store := newTestStore(t)
	err := store.Upsert(context.Background(), record("a", "Alice", 1), []float32{1, 0})
	assert.Error(t, err)
}

func TestBadgerListDeleteCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Upsert(ctx, record(fmt.Sprintf("id-%d", i), "N", float64(i)), []float32{1, 1, 1}))
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	records, err := store.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	require.NoError(t, store.Delete(ctx, "id-0"))
	require.NoError(t, store.Delete(ctx, "missing"), "deleting an unknown id succeeds")

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestBadgerDeleteAllRecreatesCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, record("a", "Alice", 1), []float32{1, 0, 0}))
	require.NoError(t, store.DeleteAll(ctx))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The collection is usable straight away.
	require.NoError(t, store.Upsert(ctx, record("b", "Bob", 2), []float32{0, 1, 0}))
}

func TestBadgerEnsureCollectionDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.dims = 4
	assert.Error(t, store.EnsureCollection(ctx))
}

func TestDecodePayloadNumericTypes(t *testing.T) {
	rec, err := decodePayload(map[string]any{
		"id":          "x",
		"full_name":   "Jane",
		"lines_count": int64(4),
		"words_count": float64(12),
		"timestamp":   float64(1700000000.5),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, rec.LinesCount)
	assert.Equal(t, 12, rec.WordsCount)
	assert.Equal(t, 1700000000.5, rec.Timestamp)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

// flakyStore fails EnsureCollection until ready.
type flakyStore struct {
	Store
	failures int
	calls    int
	err      error
}

func (f *flakyStore) EnsureCollection(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("%w: connection refused", ErrUnavailable)
	}
	return nil
}

func (f *flakyStore) Delete(context.Context, string) error { return f.err }
func (f *flakyStore) Health(context.Context) error         { return f.err }

func TestEnsureWithRetry(t *testing.T) {
	flaky := &flakyStore{failures: 2}
	g := NewGuarded(flaky, testStoreConfig(), errors.Discard())
	require.NoError(t, g.EnsureWithRetry(context.Background()))
	assert.Equal(t, 3, flaky.calls)

	flaky = &flakyStore{failures: 10}
	g = NewGuarded(flaky, testStoreConfig(), errors.Discard())
	err := g.EnsureWithRetry(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeDependency))
	assert.Equal(t, 3, flaky.calls)
}

func TestGuardedClassifiesErrors(t *testing.T) {
	ctx := context.Background()

	flaky := &flakyStore{err: fmt.Errorf("%w: dial tcp", ErrUnavailable)}
	g := NewGuarded(flaky, testStoreConfig(), errors.Discard())
	assert.True(t, errors.IsType(g.Delete(ctx, "x"), errors.ErrorTypeDependency))
	assert.True(t, errors.IsType(g.Health(ctx), errors.ErrorTypeDependency))

	flaky.err = fmt.Errorf("syntax error")
	assert.True(t, errors.IsType(g.Delete(ctx, "x"), errors.ErrorTypeInternal))
}

func TestGuardedBreakerOpens(t *testing.T) {
	ctx := context.Background()
	cfg := testStoreConfig()
	cfg.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}
	flaky := &flakyStore{err: fmt.Errorf("%w: dial tcp", ErrUnavailable)}
	g := NewGuarded(flaky, cfg, errors.Discard())

	_ = g.Delete(ctx, "x")
	_ = g.Delete(ctx, "x")
	flaky.err = nil

	err := g.Delete(ctx, "x")
	assert.True(t, errors.IsType(err, errors.ErrorTypeDependency), "open breaker reports dependency error, got %v", err)
	assert.Equal(t, "open", g.Stats()["state"])
}

func TestGuardedBreakerIgnoresRejectedRequests(t *testing.T) {
	ctx := context.Background()
	cfg := testStoreConfig()
	cfg.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}
	flaky := &flakyStore{err: fmt.Errorf("vector dimension mismatch: got 5, want 3")}
	g := NewGuarded(flaky, cfg, errors.Discard())

	for i := 0; i < 4; i++ {
		err := g.Delete(ctx, "x")
		assert.True(t, errors.IsType(err, errors.ErrorTypeInternal), "call %d: %v", i, err)
	}
	assert.Equal(t, "closed", g.Stats()["state"])

	flaky.err = nil
	assert.NoError(t, g.Delete(ctx, "x"))
}

func TestGuardedSearchPassesResults(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	g := NewGuarded(store, testStoreConfig(), errors.Discard())

	require.NoError(t, g.Upsert(ctx, record("a", "Alice", 1), []float32{1, 0, 0}))
	hits, err := g.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Alice", hits[0].Record.FullName)

	n, err := g.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
