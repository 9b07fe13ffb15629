// Package qdrant implements repository.VectorRepository as an alternate
// backend over github.com/qdrant/go-client, for deployments that want a
// dedicated vector database instead of pgvector. Grounded in the teacher's
// internal/persistence/databases/qdrant_vector.go: gRPC client
// construction from a DSN, collection bootstrap, and the
// deterministic-UUID-plus-original-id-in-payload workaround for Qdrant's
// UUID/integer-only point id restriction.
package qdrant

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"contextnexus/internal/repository"
)

// originalIDField is the payload key Upsert stores a non-UUID contentID
// under, mirroring the teacher's PAYLOAD_ID_FIELD convention.
const originalIDField = "_original_id"

// VectorStore is a Qdrant-backed repository.VectorRepository.
type VectorStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
	embed      repository.Embedder
}

// New connects to Qdrant at dsn (host[:port], gRPC port defaults to 6334;
// an "api_key" query parameter is honored) and ensures collection exists
// with the given vector dimension and distance metric ("cosine" (default),
// "l2"/"euclidean", "ip"/"dot", or "manhattan").
func New(ctx context.Context, dsn, collection string, dimensions int, metric string, embed repository.Embedder) (*VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &VectorStore{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
		embed:      embed,
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return s, nil
}

func (s *VectorStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}

	var distance qdrant.Distance
	switch s.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}

	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: distance,
		}),
	})
}

func pointIDFor(contentID string) (pointID *qdrant.PointId, originalID string) {
	if _, err := uuid.Parse(contentID); err == nil {
		return qdrant.NewIDUUID(contentID), ""
	}
	generated := uuid.NewSHA1(uuid.NameSpaceOID, []byte(contentID)).String()
	return qdrant.NewIDUUID(generated), contentID
}

// Upsert stores contentID's embedding.
func (s *VectorStore) Upsert(ctx context.Context, contentID string, vector []float32) error {
	pointID, originalID := pointIDFor(contentID)
	var payload map[string]*qdrant.Value
	if originalID != "" {
		payload = qdrant.NewValueMap(map[string]any{originalIDField: originalID})
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      pointID,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *VectorStore) FindEmbedding(ctx context.Context, contentID string) ([]float32, bool, error) {
	pointID, _ := pointIDFor(contentID)
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{pointID},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("qdrant get: %w", err)
	}
	if len(points) == 0 {
		return nil, false, nil
	}
	dense := points[0].GetVectors().GetVector().GetDense()
	if dense == nil {
		return nil, false, nil
	}
	return dense.GetData(), true, nil
}

// Similarity fetches contentID's stored embedding and computes cosine
// similarity against query's embedding directly, rather than running an
// ANN search restricted to one point: Qdrant's query API is built for
// nearest-neighbor search over the whole collection, not a single-id
// lookup, so the exact-vector comparison here is cheaper and simpler.
func (s *VectorStore) Similarity(ctx context.Context, contentID, query string) (float64, error) {
	stored, ok, err := s.FindEmbedding(ctx, contentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	qv, err := s.embed.Embed(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("embed query: %w", err)
	}
	return cosine(stored, qv), nil
}

func cosine(a, b []float32) float64 {
	an, bn := norm(a), norm(b)
	if an == 0 || bn == 0 {
		return 0
	}
	var dotProd float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dotProd += float64(a[i]) * float64(b[i])
	}
	return dotProd / (an * bn)
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// Close releases the underlying gRPC connection.
func (s *VectorStore) Close() error {
	return s.client.Close()
}
