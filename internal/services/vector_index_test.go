package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/platform/qdrant"
)

type fakeVectorizer struct {
	textErr  error
	imageErr error
	dim      int
}

func (f *fakeVectorizer) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.textErr != nil {
		return nil, f.textErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = 1
	}
	return out, nil
}

func (f *fakeVectorizer) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

type upsertCall struct {
	collection string
	id         string
	vector     []float32
	payload    map[string]any
}

type fakeStore struct {
	upserts    []upsertCall
	upsertErr  error
	queryHits  map[string][]qdrant.ScoredPoint
	queryErr   error
	scrollHits []qdrant.ScoredPoint
	scrollErr  error
}

func (f *fakeStore) EnsureCollections(ctx context.Context) error { return nil }

func (f *fakeStore) Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, upsertCall{collection, id, vector, payload})
	return nil
}

func (f *fakeStore) Query(ctx context.Context, collection string, vector []float32, limit, offset int, tags []string) ([]qdrant.ScoredPoint, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryHits[collection], nil
}

func (f *fakeStore) ScrollByText(ctx context.Context, collection, text string, tags []string, limit int) ([]qdrant.ScoredPoint, error) {
	if f.scrollErr != nil {
		return nil, f.scrollErr
	}
	return f.scrollHits, nil
}

func (f *fakeStore) Close() error { return nil }

func testIndexConfig() qdrant.Config {
	return qdrant.Config{
		Host:               "localhost",
		Port:               6334,
		AssetCollection:    "videos",
		KeyframeCollection: "keyframes",
		ColorCollection:    "colors",
		VectorDim:          4,
	}
}

func newIndexService(store *fakeStore, vec *fakeVectorizer) VideoIndexService {
	return NewVideoIndexService(logger.NewNop(), testIndexConfig(), store, vec)
}

func assetPoint(assetID uuid.UUID, score float32) qdrant.ScoredPoint {
	return qdrant.ScoredPoint{
		ID:      uuid.New().String(),
		Score:   score,
		Payload: map[string]any{"asset_id": assetID.String()},
	}
}

func TestHexToVector(t *testing.T) {
	v, err := hexToVector("#ff0080")
	if err != nil {
		t.Fatalf("hexToVector: %v", err)
	}
	if v[0] != 1 || v[1] != 0 {
		t.Fatalf("vector: %v", v)
	}
	if v[2] < 0.5 || v[2] > 0.51 {
		t.Fatalf("blue channel: %v", v[2])
	}

	for _, bad := range []string{"", "#fff", "red", "#gg0000"} {
		if _, err := hexToVector(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestIndexVideoWritesAssetPoint(t *testing.T) {
	store := &fakeStore{}
	svc := newIndexService(store, &fakeVectorizer{dim: 4})

	meta := AssetMeta{
		AssetID:     uuid.New(),
		OwnerID:     uuid.New(),
		Title:       "Beach sunset",
		Tags:        []string{"sunset"},
		IsPublic:    true,
		AccessLevel: "public",
	}
	id, err := svc.IndexVideo(context.Background(), meta, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("IndexVideo: %v", err)
	}
	if id == "" {
		t.Fatalf("expected external id")
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts: %d", len(store.upserts))
	}
	call := store.upserts[0]
	if call.collection != "videos" {
		t.Fatalf("collection: %s", call.collection)
	}
	if call.payload["asset_id"] != meta.AssetID.String() || call.payload["access_level"] != "public" {
		t.Fatalf("payload: %+v", call.payload)
	}
}

func TestIndexColorVectorIsNormalizedRGB(t *testing.T) {
	store := &fakeStore{}
	svc := newIndexService(store, &fakeVectorizer{dim: 4})

	if _, err := svc.IndexColor(context.Background(), AssetMeta{AssetID: uuid.New()}, "#000000", 40); err != nil {
		t.Fatalf("IndexColor: %v", err)
	}
	call := store.upserts[0]
	if call.collection != "colors" || len(call.vector) != 3 {
		t.Fatalf("call: %+v", call)
	}
	if call.payload["color"] != "#000000" || call.payload["percentage"] != 40.0 {
		t.Fatalf("payload: %+v", call.payload)
	}
}

func TestSearchByTextFusesDenseAndLexical(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	denseA, denseB := assetPoint(a, 0.9), assetPoint(b, 0.7)
	lexC := assetPoint(c, 0)

	store := &fakeStore{
		queryHits:  map[string][]qdrant.ScoredPoint{"videos": {denseA, denseB}},
		scrollHits: []qdrant.ScoredPoint{{ID: denseB.ID, Payload: denseB.Payload}, lexC},
	}
	svc := newIndexService(store, &fakeVectorizer{dim: 4})

	got, err := svc.SearchByText(context.Background(), "sunset", nil, 10, 0)
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len: %d", len(got))
	}
	// b appears in both lists, so fusion ranks it first.
	if got[0].AssetID != b {
		t.Fatalf("top result: want=%s got=%s", b, got[0].AssetID)
	}
}

func TestSearchByTextToleratesLexicalFailure(t *testing.T) {
	a := uuid.New()
	store := &fakeStore{
		queryHits: map[string][]qdrant.ScoredPoint{"videos": {assetPoint(a, 0.9)}},
		scrollErr: errors.New("scroll unavailable"),
	}
	svc := newIndexService(store, &fakeVectorizer{dim: 4})

	got, err := svc.SearchByText(context.Background(), "sunset", nil, 10, 0)
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if len(got) != 1 || got[0].AssetID != a {
		t.Fatalf("got: %+v", got)
	}
}

func TestSearchByTextSurfacesVectorFailure(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("store down")}
	svc := newIndexService(store, &fakeVectorizer{dim: 4})
	if _, err := svc.SearchByText(context.Background(), "sunset", nil, 10, 0); err == nil {
		t.Fatalf("expected error when dense query fails")
	}

	svc = newIndexService(&fakeStore{}, &fakeVectorizer{dim: 4, textErr: errors.New("clip down")})
	if _, err := svc.SearchByText(context.Background(), "sunset", nil, 10, 0); err == nil {
		t.Fatalf("expected error when embedding fails")
	}
}

func TestSearchByKeyframeGroupsByAsset(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	mk := func(assetID uuid.UUID, score float32, ts float64, idx int) qdrant.ScoredPoint {
		return qdrant.ScoredPoint{
			ID:    uuid.New().String(),
			Score: score,
			Payload: map[string]any{
				"asset_id":    assetID.String(),
				"timestamp":   ts,
				"frame_index": int64(idx),
			},
		}
	}
	store := &fakeStore{queryHits: map[string][]qdrant.ScoredPoint{
		"keyframes": {
			mk(a, 0.95, 1.5, 0),
			mk(b, 0.90, 7.0, 3),
			mk(a, 0.85, 12.0, 5),
		},
	}}
	svc := newIndexService(store, &fakeVectorizer{dim: 4})

	got, err := svc.SearchByKeyframe(context.Background(), []byte{0xff, 0xd8}, nil, 10)
	if err != nil {
		t.Fatalf("SearchByKeyframe: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: %d", len(got))
	}
	if got[0].AssetID != a || got[1].AssetID != b {
		t.Fatalf("order: %+v", got)
	}
	if len(got[0].Keyframes) != 2 {
		t.Fatalf("grouped frames: %+v", got[0].Keyframes)
	}
	if got[0].Keyframes[1].FrameIndex != 5 || got[0].Keyframes[1].Timestamp != 12.0 {
		t.Fatalf("frame detail: %+v", got[0].Keyframes[1])
	}
}

func TestSearchByColorRejectsBadHex(t *testing.T) {
	svc := newIndexService(&fakeStore{}, &fakeVectorizer{dim: 4})
	if _, err := svc.SearchByColor(context.Background(), "teal", 10, 0); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}

func TestPaginate(t *testing.T) {
	matches := make([]Match, 5)
	for i := range matches {
		matches[i].ExternalID = fmt.Sprintf("m%d", i)
	}
	got := paginate(matches, 2, 2)
	if len(got) != 2 || got[0].ExternalID != "m2" {
		t.Fatalf("page: %+v", got)
	}
	if got := paginate(matches, 2, 10); got != nil {
		t.Fatalf("past-end page: %+v", got)
	}
}
