// Package qdrant stores chunk vectors in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const (
	upsertBatch = 100
	scrollPage  = 256
)

// Config contains connection details for a Qdrant instance.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	UseTLS     bool
}

// Storage is a VectorStore backed by one Qdrant collection with cosine distance.
type Storage struct {
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	apiKey      string
	dimension   int
	conn        *grpc.ClientConn
}

// Dial connects to Qdrant and returns a store for cfg.Collection.
func Dial(cfg Config) (*Storage, error) {
	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", addr, err)
	}
	s := NewStorage(pb.NewCollectionsClient(conn), pb.NewPointsClient(conn), cfg.Collection, cfg.APIKey)
	s.conn = conn
	return s, nil
}

// NewStorage wraps existing gRPC clients.
func NewStorage(collections pb.CollectionsClient, points pb.PointsClient, collection, apiKey string) *Storage {
	return &Storage{
		collections: collections,
		points:      points,
		collection:  collection,
		apiKey:      apiKey,
	}
}

// Close releases the gRPC connection when the store owns it.
func (s *Storage) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Storage) withKey(ctx context.Context) context.Context {
	if s.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
}

func (s *Storage) exists(ctx context.Context) (bool, error) {
	resp, err := s.collections.List(s.withKey(ctx), &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, col := range resp.GetCollections() {
		if col.GetName() == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// Init recreates the collection with the given vector size.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}
	_, err := s.collections.Create(s.withKey(ctx), &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	s.dimension = dimension
	return nil
}

// Upsert writes points in batches. Point IDs are derived from chunk IDs,
// so re-ingesting a chunk replaces its point.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return vectorstore.ErrLength
	}
	wait := true
	batch := make([]*pb.PointStruct, 0, upsertBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := s.points.Upsert(s.withKey(ctx), &pb.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         batch,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for i, ch := range chunks {
		if s.dimension > 0 && len(vectors[i]) != s.dimension {
			return vectorstore.ErrDimension
		}
		batch = append(batch, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(ch.ChunkID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: payload(ch),
		})
		if len(batch) >= upsertBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Search returns the topK nearest points with their payloads.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	ok, err := s.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vectorstore.ErrIndexAbsent
	}
	resp, err := s.points.Search(s.withKey(ctx), &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		results = append(results, domain.SearchResult{
			Chunk: chunkFromPayload(p.GetPayload()),
			Score: float64(p.GetScore()),
		})
	}
	return results, nil
}

// Chunks scrolls through the whole collection.
func (s *Storage) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	ok, err := s.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vectorstore.ErrIndexAbsent
	}
	var (
		out    []domain.Chunk
		offset *pb.PointId
		limit  = uint32(scrollPage)
	)
	for {
		resp, err := s.points.Scroll(s.withKey(ctx), &pb.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			out = append(out, chunkFromPayload(p.GetPayload()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return out, nil
		}
	}
}

// Clear drops the collection if it exists.
func (s *Storage) Clear(ctx context.Context) error {
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return err
	}
	if _, err := s.collections.Delete(s.withKey(ctx), &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.collection, err)
	}
	return nil
}

// PointID maps a chunk ID to a stable UUID, since Qdrant only accepts
// unsigned integers or UUIDs as point IDs.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func payload(ch domain.Chunk) map[string]*pb.Value {
	str := func(v string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}} }
	return map[string]*pb.Value{
		"document_id": str(ch.DocumentID),
		"chunk_id":    str(ch.ChunkID),
		"source":      str(ch.Source),
		"text":        str(ch.Text),
		"index":       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(ch.Index)}},
	}
}

func chunkFromPayload(p map[string]*pb.Value) domain.Chunk {
	return domain.Chunk{
		DocumentID: p["document_id"].GetStringValue(),
		ChunkID:    p["chunk_id"].GetStringValue(),
		Source:     p["source"].GetStringValue(),
		Text:       p["text"].GetStringValue(),
		Index:      int(p["index"].GetIntegerValue()),
	}
}
