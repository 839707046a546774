package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/platform/clip"
	"github.com/pixelseek/pixelseek/internal/platform/qdrant"
)

// rrfK dampens rank contributions when fusing dense and lexical result
// lists. The conventional constant from the reciprocal rank fusion paper.
const rrfK = 60

// AssetMeta is the slice of asset state that travels into vector payloads.
// Visibility fields are denormalized so search filtering can happen without
// a database round trip per hit.
type AssetMeta struct {
	AssetID     uuid.UUID
	OwnerID     uuid.UUID
	Title       string
	Description string
	Tags        []string
	IsPublic    bool
	AccessLevel string
}

// KeyframeHit is a single keyframe match inside a Match.
type KeyframeHit struct {
	ExternalID string
	Timestamp  float64
	FrameIndex int
	Score      float32
}

// Match is one search hit resolved to its owning asset.
type Match struct {
	ExternalID string
	AssetID    uuid.UUID
	Score      float32
	Keyframes  []KeyframeHit
}

// VideoIndexService owns every interaction with the vector store: writing
// asset, keyframe and color points during ingestion and running the four
// query modes. Search methods return an error only when the vector layer is
// unusable; callers decide whether to fall back.
type VideoIndexService interface {
	EnsureCollections(ctx context.Context) error

	IndexVideo(ctx context.Context, meta AssetMeta, thumbnail []byte) (string, error)
	IndexKeyframe(ctx context.Context, meta AssetMeta, frame []byte, timestamp float64, frameIndex int) (string, error)
	IndexColor(ctx context.Context, meta AssetMeta, hex string, percentage float64) (string, error)

	SearchByText(ctx context.Context, text string, tags []string, limit, offset int) ([]Match, error)
	SearchByImage(ctx context.Context, image []byte, tags []string, limit, offset int) ([]Match, error)
	SearchByColor(ctx context.Context, hex string, limit, offset int) ([]Match, error)
	SearchByKeyframe(ctx context.Context, image []byte, tags []string, limit int) ([]Match, error)
}

type videoIndexService struct {
	log   *logger.Logger
	cfg   qdrant.Config
	store qdrant.Store
	clip  clip.Vectorizer
}

func NewVideoIndexService(log *logger.Logger, cfg qdrant.Config, store qdrant.Store, vectorizer clip.Vectorizer) VideoIndexService {
	return &videoIndexService{
		log:   log.With("service", "VideoIndexService"),
		cfg:   cfg,
		store: store,
		clip:  vectorizer,
	}
}

func (s *videoIndexService) EnsureCollections(ctx context.Context) error {
	return s.store.EnsureCollections(ctx)
}

func assetPayload(meta AssetMeta) map[string]any {
	return map[string]any{
		"asset_id":     meta.AssetID.String(),
		"owner_id":     meta.OwnerID.String(),
		"title":        meta.Title,
		"description":  meta.Description,
		"tags":         meta.Tags,
		"is_public":    meta.IsPublic,
		"access_level": meta.AccessLevel,
	}
}

// IndexVideo embeds the asset thumbnail and upserts it into the asset
// collection. Returns the external point id.
func (s *videoIndexService) IndexVideo(ctx context.Context, meta AssetMeta, thumbnail []byte) (string, error) {
	vector, err := s.clip.EmbedImage(ctx, thumbnail)
	if err != nil {
		return "", fmt.Errorf("embed thumbnail for asset %s: %w", meta.AssetID, err)
	}
	id := uuid.New().String()
	if err := s.store.Upsert(ctx, s.cfg.AssetCollection, id, vector, assetPayload(meta)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *videoIndexService) IndexKeyframe(ctx context.Context, meta AssetMeta, frame []byte, timestamp float64, frameIndex int) (string, error) {
	vector, err := s.clip.EmbedImage(ctx, frame)
	if err != nil {
		return "", fmt.Errorf("embed keyframe %d for asset %s: %w", frameIndex, meta.AssetID, err)
	}
	payload := assetPayload(meta)
	payload["timestamp"] = timestamp
	payload["frame_index"] = frameIndex
	id := uuid.New().String()
	if err := s.store.Upsert(ctx, s.cfg.KeyframeCollection, id, vector, payload); err != nil {
		return "", err
	}
	return id, nil
}

// IndexColor stores one dominant color as a normalized RGB point so that
// color similarity search is a plain cosine query.
func (s *videoIndexService) IndexColor(ctx context.Context, meta AssetMeta, hex string, percentage float64) (string, error) {
	vector, err := hexToVector(hex)
	if err != nil {
		return "", err
	}
	payload := assetPayload(meta)
	payload["color"] = hex
	payload["percentage"] = percentage
	id := uuid.New().String()
	if err := s.store.Upsert(ctx, s.cfg.ColorCollection, id, vector, payload); err != nil {
		return "", err
	}
	return id, nil
}

// SearchByText fuses dense similarity over the query embedding with a
// lexical filter over stored titles, descriptions and tags. The two ranked
// lists are merged with reciprocal rank fusion; the lexical leg is
// best-effort and is skipped when it fails.
func (s *videoIndexService) SearchByText(ctx context.Context, text string, tags []string, limit, offset int) ([]Match, error) {
	limit = normalizeSearchLimit(limit)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("search text required")
	}

	vectors, err := s.clip.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query text: %w", err)
	}
	fetch := limit + offset
	dense, err := s.store.Query(ctx, s.cfg.AssetCollection, vectors[0], fetch*2, 0, tags)
	if err != nil {
		return nil, err
	}

	lexical, err := s.store.ScrollByText(ctx, s.cfg.AssetCollection, text, tags, fetch*2)
	if err != nil {
		s.log.Warn("lexical leg failed, using dense results only", "error", err)
		lexical = nil
	}

	fused := fuseRanked(dense, lexical)
	return paginate(fused, limit, offset), nil
}

func (s *videoIndexService) SearchByImage(ctx context.Context, image []byte, tags []string, limit, offset int) ([]Match, error) {
	limit = normalizeSearchLimit(limit)
	vector, err := s.clip.EmbedImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("embed query image: %w", err)
	}
	points, err := s.store.Query(ctx, s.cfg.AssetCollection, vector, limit, offset, tags)
	if err != nil {
		return nil, err
	}
	return pointsToMatches(points), nil
}

func (s *videoIndexService) SearchByColor(ctx context.Context, hex string, limit, offset int) ([]Match, error) {
	limit = normalizeSearchLimit(limit)
	vector, err := hexToVector(hex)
	if err != nil {
		return nil, err
	}
	points, err := s.store.Query(ctx, s.cfg.ColorCollection, vector, limit, offset, nil)
	if err != nil {
		return nil, err
	}
	return pointsToMatches(points), nil
}

// SearchByKeyframe queries the keyframe collection with an over-fetch of
// twice the requested limit, then groups hits by their parent asset so each
// asset appears once with its matching frames attached, best match first.
func (s *videoIndexService) SearchByKeyframe(ctx context.Context, image []byte, tags []string, limit int) ([]Match, error) {
	limit = normalizeSearchLimit(limit)
	vector, err := s.clip.EmbedImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("embed query image: %w", err)
	}
	points, err := s.store.Query(ctx, s.cfg.KeyframeCollection, vector, limit*2, 0, tags)
	if err != nil {
		return nil, err
	}

	order := []uuid.UUID{}
	grouped := map[uuid.UUID]*Match{}
	for _, p := range points {
		assetID, ok := payloadUUID(p.Payload, "asset_id")
		if !ok {
			continue
		}
		m, seen := grouped[assetID]
		if !seen {
			m = &Match{ExternalID: p.ID, AssetID: assetID, Score: p.Score}
			grouped[assetID] = m
			order = append(order, assetID)
		}
		m.Keyframes = append(m.Keyframes, KeyframeHit{
			ExternalID: p.ID,
			Timestamp:  payloadFloat(p.Payload, "timestamp"),
			FrameIndex: int(payloadInt(p.Payload, "frame_index")),
			Score:      p.Score,
		})
	}

	out := make([]Match, 0, len(order))
	for _, id := range order {
		out = append(out, *grouped[id])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fuseRanked merges the dense and lexical lists with reciprocal rank
// fusion. Fused order is deterministic: ties keep dense-list order.
func fuseRanked(dense, lexical []qdrant.ScoredPoint) []Match {
	type entry struct {
		point qdrant.ScoredPoint
		score float64
		seen  int
	}
	byID := map[string]*entry{}
	order := []string{}

	addList := func(points []qdrant.ScoredPoint) {
		for rank, p := range points {
			e, ok := byID[p.ID]
			if !ok {
				e = &entry{point: p, seen: len(order)}
				byID[p.ID] = e
				order = append(order, p.ID)
			}
			e.score += 1.0 / float64(rrfK+rank+1)
		}
	}
	addList(dense)
	addList(lexical)

	entries := make([]*entry, 0, len(order))
	for _, id := range order {
		entries = append(entries, byID[id])
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].score > entries[j].score })

	out := make([]Match, 0, len(entries))
	for _, e := range entries {
		m := pointToMatch(e.point)
		m.Score = float32(e.score)
		out = append(out, m)
	}
	return out
}

func paginate(matches []Match, limit, offset int) []Match {
	if offset >= len(matches) {
		return nil
	}
	matches = matches[offset:]
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func pointsToMatches(points []qdrant.ScoredPoint) []Match {
	out := make([]Match, 0, len(points))
	for _, p := range points {
		out = append(out, pointToMatch(p))
	}
	return out
}

func pointToMatch(p qdrant.ScoredPoint) Match {
	m := Match{ExternalID: p.ID, Score: p.Score}
	if assetID, ok := payloadUUID(p.Payload, "asset_id"); ok {
		m.AssetID = assetID
	}
	return m
}

func payloadUUID(payload map[string]any, key string) (uuid.UUID, bool) {
	raw, _ := payload[key].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func payloadFloat(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func payloadInt(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// hexToVector turns "#rrggbb" into a normalized RGB triple.
func hexToVector(hex string) ([]float32, error) {
	raw := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hex)), "#")
	if len(raw) != 6 {
		return nil, fmt.Errorf("invalid color %q: expected #rrggbb", hex)
	}
	out := make([]float32, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(raw[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid color %q: %w", hex, err)
		}
		out[i] = float32(v) / 255.0
	}
	return out, nil
}

func normalizeSearchLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
