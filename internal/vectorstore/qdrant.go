package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/types"
)

// QdrantStore keeps candidates in a Qdrant collection over gRPC.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dims       int
	distance   qdrant.Distance
	logger     *errors.Logger
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore creates a client. No request is made until the first call.
func NewQdrantStore(cfg config.VectorStoreConfig, logger *errors.Logger) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dimensions,
		distance:   qdrantDistance(cfg.Distance),
		logger:     logger,
	}, nil
}

func qdrantDistance(name string) qdrant.Distance {
	switch strings.ToLower(name) {
	case "dot":
		return qdrant.Distance_Dot
	case "euclid", "euclidean":
		return qdrant.Distance_Euclid
	case "manhattan":
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return q.wrap(err)
	}
	if exists {
		return nil
	}
	return q.create(ctx)
}

func (q *QdrantStore) create(ctx context.Context) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dims),
			Distance: q.distance,
		}),
	})
	if err != nil {
		return q.wrap(err)
	}
	q.logger.Info("Created vector collection", "collection", q.collection, "dimensions", q.dims)
	return nil
}

func (q *QdrantStore) Upsert(ctx context.Context, record types.CandidateRecord, vector []float32) error {
	if err := checkDimensions(vector, q.dims); err != nil {
		return err
	}
	payload, err := qdrant.TryValueMap(recordPayload(record))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	wait := true
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(record.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	return q.wrap(err)
}

func (q *QdrantStore) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if err := checkDimensions(vector, q.dims); err != nil {
		return nil, err
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, q.wrap(err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		record, err := decodePayload(payloadToMap(p.GetPayload()))
		if err != nil {
			return nil, err
		}
		if record.ID == "" {
			record.ID = pointID(p.GetId())
		}
		hits = append(hits, Hit{Record: record, Score: p.GetScore()})
	}
	return hits, nil
}

func (q *QdrantStore) List(ctx context.Context, limit int) ([]types.CandidateRecord, error) {
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, q.wrap(err)
	}

	records := make([]types.CandidateRecord, 0, len(points))
	for _, p := range points {
		record, err := decodePayload(payloadToMap(p.GetPayload()))
		if err != nil {
			return nil, err
		}
		if record.ID == "" {
			record.ID = pointID(p.GetId())
		}
		records = append(records, record)
	}
	return records, nil
}

func (q *QdrantStore) Delete(ctx context.Context, id string) error {
	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	return q.wrap(err)
}

func (q *QdrantStore) DeleteAll(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil && status.Code(err) != codes.NotFound {
		return q.wrap(err)
	}
	return q.create(ctx)
}

func (q *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, q.wrap(err)
	}
	return int(n), nil
}

func (q *QdrantStore) Health(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return q.wrap(err)
}

func (q *QdrantStore) Close() error {
	return q.client.Close()
}

// wrap marks connection-level gRPC failures as ErrUnavailable.
func (q *QdrantStore) wrap(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = valueToAny(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	default:
		return nil
	}
}
