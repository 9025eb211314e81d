// Package vectorstore persists candidate records next to their embedding
// vectors and answers nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/types"
)

// ErrUnavailable marks failures caused by the database being unreachable.
var ErrUnavailable = stderrors.New("vector store unavailable")

// Hit is a record returned by Search together with its similarity score.
// Higher scores are more similar.
type Hit struct {
	Record types.CandidateRecord
	Score  float32
}

// Store is a collection of candidate records keyed by id, each carrying one
// vector of a fixed dimension.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, record types.CandidateRecord, vector []float32) error
	Search(ctx context.Context, vector []float32, limit int) ([]Hit, error)
	// List returns up to limit records in storage order.
	List(ctx context.Context, limit int) ([]types.CandidateRecord, error)
	// Delete removes id. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteAll drops the collection and creates it again empty.
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// Open connects to the backend named in cfg.
func Open(cfg config.VectorStoreConfig, logger *errors.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendQdrant:
		return NewQdrantStore(cfg, logger)
	case config.BackendPGVector:
		return NewPGVectorStore(cfg, logger)
	case config.BackendBadger:
		return NewBadgerStore(cfg, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported vector store backend: %s", cfg.Backend), nil)
	}
}

// recordPayload flattens record into the payload stored with each point.
func recordPayload(record types.CandidateRecord) map[string]any {
	return map[string]any{
		"id":          record.ID,
		"full_name":   record.FullName,
		"job_title":   record.JobTitle,
		"full_text":   record.FullText,
		"filename":    record.Filename,
		"lines_count": int64(record.LinesCount),
		"words_count": int64(record.WordsCount),
		"timestamp":   record.Timestamp,
	}
}

// decodePayload maps a stored payload back onto a record. Numbers may come
// back as any numeric type depending on the backend.
func decodePayload(payload map[string]any) (types.CandidateRecord, error) {
	var record types.CandidateRecord
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &record,
	})
	if err != nil {
		return record, err
	}
	if err := decoder.Decode(payload); err != nil {
		return record, fmt.Errorf("decode payload: %w", err)
	}
	return record, nil
}

func checkDimensions(vector []float32, want int) error {
	if want > 0 && len(vector) != want {
		return fmt.Errorf("vector has %d dimensions, collection expects %d", len(vector), want)
	}
	return nil
}
