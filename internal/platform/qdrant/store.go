package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pixelseek/pixelseek/internal/logger"
)

// ColorVectorDim is the dimension of the color collection: one normalized
// RGB triple per point.
const ColorVectorDim = 3

// ErrClosed is returned by every operation after Close has been called.
var ErrClosed = errors.New("qdrant: store is closed")

// ScoredPoint is a single similarity hit with its stored payload.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store owns all Qdrant operations for the three point spaces. It must be
// constructed with Connect and released with Close; operations on a closed
// store fail with ErrClosed.
type Store interface {
	EnsureCollections(ctx context.Context) error
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error
	Query(ctx context.Context, collection string, vector []float32, limit, offset int, tags []string) ([]ScoredPoint, error)
	ScrollByText(ctx context.Context, collection, text string, tags []string, limit int) ([]ScoredPoint, error)
	Close() error
}

type grpcStore struct {
	log         *logger.Logger
	cfg         Config
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient

	mu     sync.Mutex
	closed bool
}

func Connect(log *logger.Logger, cfg Config) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(cfg.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", cfg.Addr(), err)
	}
	return &grpcStore{
		log:         log.With("service", "QdrantStore"),
		cfg:         cfg,
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

func (s *grpcStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *grpcStore) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// EnsureCollections creates any of the three collections that do not exist
// yet. Asset and keyframe points share the embedding dimension; color points
// are normalized RGB triples.
func (s *grpcStore) EnsureCollections(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	existing := make(map[string]bool, len(list.GetCollections()))
	for _, c := range list.GetCollections() {
		existing[c.GetName()] = true
	}

	wanted := map[string]int{
		s.cfg.AssetCollection:    s.cfg.VectorDim,
		s.cfg.KeyframeCollection: s.cfg.VectorDim,
		s.cfg.ColorCollection:    ColorVectorDim,
	}
	for name, dim := range wanted {
		if existing[name] {
			continue
		}
		_, err := s.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(dim),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("qdrant: create collection %s: %w", name, err)
		}
		s.log.Info("created collection", "collection", name, "dim", dim)
	}
	return nil
}

func (s *grpcStore) Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error {
	if err := s.guard(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return fmt.Errorf("qdrant: collection and id required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("qdrant: empty vector for point %s", id)
	}
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}},
			},
			Payload: toPayload(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert point %s into %s: %w", id, collection, err)
	}
	return nil
}

// Query runs k-NN similarity search against a collection, optionally
// constrained to points whose payload tags intersect the given set.
func (s *grpcStore) Query(ctx context.Context, collection string, vector []float32, limit, offset int, tags []string) ([]ScoredPoint, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if offset > 0 {
		off := uint64(offset)
		req.Offset = &off
	}
	if f := tagFilter(tags); f != nil {
		req.Filter = &pb.Filter{Must: []*pb.Condition{f}}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %s: %w", collection, err)
	}

	out := make([]ScoredPoint, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		out = append(out, ScoredPoint{
			ID:      r.GetId().GetUuid(),
			Score:   r.GetScore(),
			Payload: fromPayload(r.GetPayload()),
		})
	}
	return out, nil
}

// ScrollByText fetches points whose title, description or tags payload
// fields contain the given text. Results carry no similarity score; the
// caller ranks them.
func (s *grpcStore) ScrollByText(ctx context.Context, collection, text string, tags []string, limit int) ([]ScoredPoint, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("qdrant: scroll text required")
	}
	if limit <= 0 {
		limit = 20
	}
	filter := &pb.Filter{
		Should: []*pb.Condition{
			textMatch("title", text),
			textMatch("description", text),
			textMatch("tags", text),
		},
	}
	if f := tagFilter(tags); f != nil {
		filter.Must = []*pb.Condition{f}
	}
	lim := uint32(limit)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: collection,
		Filter:         filter,
		Limit:          &lim,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll %s: %w", collection, err)
	}

	out := make([]ScoredPoint, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		out = append(out, ScoredPoint{
			ID:      r.GetId().GetUuid(),
			Payload: fromPayload(r.GetPayload()),
		})
	}
	return out, nil
}

func tagFilter(tags []string) *pb.Condition {
	if len(tags) == 0 {
		return nil
	}
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: "tags",
				Match: &pb.Match{
					MatchValue: &pb.Match_Keywords{
						Keywords: &pb.RepeatedStrings{Strings: tags},
					},
				},
			},
		},
	}
}

func textMatch(key, text string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Text{Text: text}},
			},
		},
	}
}

func toPayload(payload map[string]any) map[string]*pb.Value {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		out[k] = toValue(val)
	}
	return out
}

func toValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(tv)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case []string:
		values := make([]*pb.Value, len(tv))
		for i, s := range tv {
			values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromPayload(payload map[string]*pb.Value) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, val := range payload {
		out[k] = fromValue(val)
	}
	return out
}

func fromValue(val *pb.Value) any {
	switch kind := val.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, v := range kind.ListValue.GetValues() {
			items = append(items, fromValue(v))
		}
		return items
	default:
		return nil
	}
}
