package database

import (
	"context"
	"fmt"
	"time"

	"chatdigest/internal/cache"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantNamespace scopes point ids derived from cache keys
var qdrantNamespace = uuid.MustParse("1b4e28ba-2fa1-4d3b-a3f5-ef19b5a7633b")

// QdrantStore keeps embedding cache entries in a Qdrant collection. Qdrant
// point ids must be UUIDs or integers, so each key hash maps to a UUIDv5.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimensions int
}

// NewQdrantStore connects to Qdrant's gRPC endpoint and ensures the collection exists
func NewQdrantStore(ctx context.Context, host string, port int, collection string, dimensions int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, collection: collection, dimensions: dimensions}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant collection: %w", err)
	}
	return nil
}

// PointID maps a cache key to its Qdrant point id
func PointID(key string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(key)).String()
}

// Get loads the entry for key
func (s *QdrantStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(PointID(key))},
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("failed to load embedding from qdrant: %w", err)
	}
	if len(points) == 0 {
		return cache.Entry{}, false, nil
	}

	point := points[0]
	vector := point.GetVectors().GetVector().GetData()
	if len(vector) == 0 {
		return cache.Entry{}, false, nil
	}

	var createdAt time.Time
	if v, ok := point.GetPayload()["created_at"]; ok {
		createdAt = time.Unix(v.GetIntegerValue(), 0).UTC()
	}

	return cache.Entry{Key: key, Vector: vector, CreatedAt: createdAt}, true, nil
}

// Put upserts entry. Vectors for a key never change, so an upsert is idempotent.
func (s *QdrantStore) Put(ctx context.Context, entry cache.Entry) error {
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(PointID(entry.Key)),
				Vectors: qdrant.NewVectors(entry.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"key_hash":   entry.Key,
					"created_at": entry.CreatedAt.Unix(),
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store embedding in qdrant: %w", err)
	}
	return nil
}

// Prune deletes points created before cutoff. Qdrant does not report how many
// points a filtered delete removed, so the count is taken before and after.
func (s *QdrantStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	before, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}

	wait := true
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewRange("created_at", &qdrant.Range{Lt: qdrant.PtrOf(float64(cutoff.Unix()))}),
			},
		}),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune qdrant embeddings: %w", err)
	}

	after, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}

// Count returns the number of points in the collection
func (s *QdrantStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count qdrant embeddings: %w", err)
	}
	return int64(n), nil
}

// Close closes the gRPC connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
