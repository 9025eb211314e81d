package vectorstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/klauspost/compress/zstd"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/types"
)

// BadgerStore is an embedded single-process store. Records are kept as
// zstd-compressed JSON and searched with a linear cosine scan, which is
// adequate for a few thousand résumés.
type BadgerStore struct {
	db         *badger.DB
	collection string
	dims       int
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	logger     *errors.Logger
}

var _ Store = (*BadgerStore)(nil)

type storedPoint struct {
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

// badgerLogger routes badger's internal logging to the application logger.
type badgerLogger struct {
	logger *errors.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (bl *badgerLogger) Errorf(msg string, items ...any) {
	bl.logger.Slog().Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// NewBadgerStore opens the database at cfg.Badger.Path, creating the
// directory if needed, or an in-memory database.
func NewBadgerStore(cfg config.VectorStoreConfig, logger *errors.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.Badger.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Badger.Path, 0755); err != nil {
			return nil, fmt.Errorf("create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Badger.Path)
	}
	opts.Logger = &badgerLogger{logger: logger}
	// Values are compressed individually.
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		encoder.Close()
		return nil, err
	}

	return &BadgerStore{
		db:         db,
		collection: cfg.Collection,
		dims:       cfg.Dimensions,
		encoder:    encoder,
		decoder:    decoder,
		logger:     logger,
	}, nil
}

func (b *BadgerStore) metaKey() []byte {
	return []byte("meta:" + b.collection)
}

func (b *BadgerStore) pointPrefix() []byte {
	return []byte("point:" + b.collection + ":")
}

func (b *BadgerStore) pointKey(id string) []byte {
	return append(b.pointPrefix(), id...)
}

// EnsureCollection records the collection's dimension, or checks it
// against an existing one.
func (b *BadgerStore) EnsureCollection(ctx context.Context) error {
	return b.db.Update(func(tx *badger.Txn) error {
		item, err := tx.Get(b.metaKey())
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			b.logger.Info("Created vector collection", "collection", b.collection, "dimensions", b.dims)
			return tx.Set(b.metaKey(), []byte(strconv.Itoa(b.dims)))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			dims, err := strconv.Atoi(string(val))
			if err != nil {
				return fmt.Errorf("corrupt collection metadata: %w", err)
			}
			if dims != b.dims {
				return fmt.Errorf("collection %s has %d dimensions, configured %d", b.collection, dims, b.dims)
			}
			return nil
		})
	})
}

func (b *BadgerStore) Upsert(ctx context.Context, record types.CandidateRecord, vector []float32) error {
	if err := checkDimensions(vector, b.dims); err != nil {
		return err
	}
	raw, err := json.Marshal(storedPoint{Payload: recordPayload(record), Vector: vector})
	if err != nil {
		return err
	}
	value := b.encoder.EncodeAll(raw, nil)

	return b.db.Update(func(tx *badger.Txn) error {
		return tx.Set(b.pointKey(record.ID), value)
	})
}

// scan calls fn for each stored point until fn returns false.
func (b *BadgerStore) scan(ctx context.Context, fn func(storedPoint) (bool, error)) error {
	return b.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = b.pointPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var point storedPoint
			err := iter.Item().Value(func(val []byte) error {
				raw, err := b.decoder.DecodeAll(val, nil)
				if err != nil {
					return err
				}
				return json.Unmarshal(raw, &point)
			})
			if err != nil {
				return err
			}
			more, err := fn(point)
			if err != nil || !more {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if err := checkDimensions(vector, b.dims); err != nil {
		return nil, err
	}

	var hits []Hit
	err := b.scan(ctx, func(p storedPoint) (bool, error) {
		record, err := decodePayload(p.Payload)
		if err != nil {
			return false, err
		}
		hits = append(hits, Hit{Record: record, Score: cosineSimilarity(vector, p.Vector)})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(x, y Hit) int {
		switch {
		case x.Score > y.Score:
			return -1
		case x.Score < y.Score:
			return 1
		}
		return 0
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (b *BadgerStore) List(ctx context.Context, limit int) ([]types.CandidateRecord, error) {
	var records []types.CandidateRecord
	err := b.scan(ctx, func(p storedPoint) (bool, error) {
		if len(records) >= limit {
			return false, nil
		}
		record, err := decodePayload(p.Payload)
		if err != nil {
			return false, err
		}
		records = append(records, record)
		return len(records) < limit, nil
	})
	return records, err
}

func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	return b.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(b.pointKey(id))
	})
}

func (b *BadgerStore) DeleteAll(ctx context.Context) error {
	if err := b.db.DropPrefix(b.pointPrefix(), b.metaKey()); err != nil {
		return err
	}
	return b.EnsureCollection(ctx)
}

func (b *BadgerStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := b.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = b.pointPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (b *BadgerStore) Health(ctx context.Context) error {
	if b.db.IsClosed() {
		return fmt.Errorf("%w: database closed", ErrUnavailable)
	}
	return nil
}

func (b *BadgerStore) Close() error {
	b.encoder.Close()
	b.decoder.Close()
	return b.db.Close()
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
