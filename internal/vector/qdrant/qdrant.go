// Package qdrant implements vector.Store on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/riskmap/internal/vector"
)

// pointNamespace derives stable point UUIDs from document ids, which Qdrant
// would otherwise reject.
var pointNamespace = uuid.MustParse("6f1d3c7e-4d0b-5a54-9b8e-2c1e7a9d0f41")

const (
	payloadID   = "doc_id"
	payloadName = "name"
	payloadSeq  = "seq"
)

// Store is a Qdrant-backed vector.Store.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New dials host:port. The connection is lazy; errors surface on first use.
func New(host string, port int, collection string) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

func (s *Store) Name() string { return "qdrant" }

func (s *Store) Close() error { return s.conn.Close() }

// PointID maps a document id to its Qdrant point UUID.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// ReplaceAll deletes the collection, recreates it with cosine distance at the
// batch dimension and upserts every record with wait=true.
func (s *Store) ReplaceAll(ctx context.Context, records []vector.Record) error {
	dim, err := vector.ValidateBatch(records)
	if err != nil {
		return err
	}
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("qdrant: delete collection %s: %w", s.collection, err)
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dim), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := map[string]*pb.Value{
			payloadID:  {Kind: &pb.Value_StringValue{StringValue: r.ID}},
			payloadSeq: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(i)}},
		}
		for k, v := range r.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Embedding}}},
			Payload: payload,
		}
	}

	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Query searches the collection. Qdrant's cosine score is already a
// similarity; it is clamped and re-sorted so equal scores keep insertion
// order.
func (s *Store) Query(ctx context.Context, embedding []float32, n int) ([]vector.Hit, error) {
	if n <= 0 {
		return []vector.Hit{}, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(n),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if status.Code(err) == codes.NotFound {
		return []vector.Hit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	return toHits(resp.GetResult()), nil
}

func toHits(points []*pb.ScoredPoint) []vector.Hit {
	type ranked struct {
		hit vector.Hit
		seq int64
	}
	rs := make([]ranked, len(points))
	for i, p := range points {
		payload := p.GetPayload()
		rs[i] = ranked{
			hit: vector.Hit{
				ID:         payload[payloadID].GetStringValue(),
				Name:       payload[payloadName].GetStringValue(),
				Similarity: vector.Clamp01(float64(p.GetScore())),
			},
			seq: payload[payloadSeq].GetIntegerValue(),
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].hit.Similarity != rs[j].hit.Similarity {
			return rs[i].hit.Similarity > rs[j].hit.Similarity
		}
		return rs[i].seq < rs[j].seq
	})
	out := make([]vector.Hit, len(rs))
	for i, r := range rs {
		out[i] = r.hit
	}
	return out
}

func (s *Store) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection, Exact: &exact})
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

var _ vector.Store = (*Store)(nil)
