package vectormemory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
}

// QdrantStore is a Store backed by a Qdrant collection, for deployments
// that want memory to survive restarts. Semantics match InMemoryStore.
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	dimension   uint64
}

// NewQdrantStore dials the Qdrant gRPC endpoint and ensures the memory
// collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	if cfg.Collection == "" {
		cfg.Collection = "secgraph_memory"
	}
	s := &QdrantStore{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  cfg.Collection,
		dimension:   uint64(cfg.Dimension),
	}
	if err := s.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
	if err == nil {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// Add upserts one memory item with a sequence payload preserving insertion
// order for Texts.
func (s *QdrantStore) Add(ctx context.Context, item Item) error {
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.New().String()}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: item.Embedding}}},
				Payload: map[string]*pb.Value{
					"text": {Kind: &pb.Value_StringValue{StringValue: item.Text}},
					"seq":  {Kind: &pb.Value_StringValue{StringValue: strconv.FormatInt(time.Now().UnixNano(), 10)}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert memory item: %w", err)
	}
	return nil
}

// RetrieveSimilar performs a nearest-neighbor search and returns the top-k
// texts, most similar first.
func (s *QdrantStore) RetrieveSimilar(ctx context.Context, query []float32, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.collection, err)
	}
	texts := make([]string, 0, len(resp.Result))
	for _, r := range resp.Result {
		if v, ok := r.Payload["text"]; ok {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				texts = append(texts, sv.StringValue)
			}
		}
	}
	return texts, nil
}

// Texts scrolls the whole collection and returns texts in insertion order.
func (s *QdrantStore) Texts(ctx context.Context) ([]string, error) {
	limit := uint32(1024)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collection,
		Limit:          &limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("scroll %s: %w", s.collection, err)
	}

	type seqText struct {
		seq  int64
		text string
	}
	entries := make([]seqText, 0, len(resp.Result))
	for _, r := range resp.Result {
		var e seqText
		if v, ok := r.Payload["text"]; ok {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				e.text = sv.StringValue
			}
		}
		if v, ok := r.Payload["seq"]; ok {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				e.seq, _ = strconv.ParseInt(sv.StringValue, 10, 64)
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.text
	}
	return texts, nil
}

// Len counts the stored points.
func (s *QdrantStore) Len(ctx context.Context) (int, error) {
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.collection, err)
	}
	return int(resp.Result.Count), nil
}

// ReplaceAll drops the collection, recreates it, and inserts the single
// compacted item.
func (s *QdrantStore) ReplaceAll(ctx context.Context, item Item) error {
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		return fmt.Errorf("drop collection %s: %w", s.collection, err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	return s.Add(ctx, item)
}

// Close tears down the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}
