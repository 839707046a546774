package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/repos"
	"github.com/pixelseek/pixelseek/internal/types"
)

var ErrInvalidColor = errors.New("invalid color: expected hex like #ff5733")

var hexColorRe = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// SearchIntent is one search request after transport decoding.
type SearchIntent struct {
	Kind      types.QueryKind
	Text      string
	ImageData []byte
	Color     string
	Tags      []string
	Limit     int
	Offset    int
	// UserID is nil for unauthenticated callers.
	UserID *uuid.UUID
}

// SearchResult is one asset hit with optional matching keyframes.
type SearchResult struct {
	Asset     *types.Asset  `json:"asset"`
	Keyframes []KeyframeHit `json:"keyframes,omitempty"`
	Score     float32       `json:"score"`
}

// SearchService dispatches search intents across the vector index and the
// metadata store. Text queries fall back to a lexical database scan when the
// vector layer fails or finds nothing; structured queries (image, color,
// keyframe) have no meaningful lexical equivalent and return empty instead.
type SearchService interface {
	Search(ctx context.Context, intent SearchIntent) ([]SearchResult, error)
	RecordSelection(ctx context.Context, queryID, assetID uuid.UUID) error
}

type searchService struct {
	log     *logger.Logger
	assets  repos.AssetRepo
	queries repos.QueryRecordRepo
	index   VideoIndexService
}

func NewSearchService(log *logger.Logger, assets repos.AssetRepo, queries repos.QueryRecordRepo, index VideoIndexService) SearchService {
	return &searchService{
		log:     log.With("service", "SearchService"),
		assets:  assets,
		queries: queries,
		index:   index,
	}
}

func (s *searchService) Search(ctx context.Context, intent SearchIntent) ([]SearchResult, error) {
	intent.Limit = normalizeSearchLimit(intent.Limit)
	if intent.Offset < 0 {
		intent.Offset = 0
	}

	var (
		results []SearchResult
		err     error
	)
	switch intent.Kind {
	case types.QueryText:
		results, err = s.searchText(ctx, intent)
	case types.QueryImage:
		results, err = s.searchImage(ctx, intent)
	case types.QueryColor:
		results, err = s.searchColor(ctx, intent)
	case types.QueryKeyframe:
		results, err = s.searchKeyframe(ctx, intent)
	case types.QueryTagOnly:
		results, err = s.searchTagOnly(ctx, intent)
	default:
		return nil, fmt.Errorf("unsupported query kind %q", intent.Kind)
	}
	if err != nil {
		return nil, err
	}

	s.record(ctx, intent, len(results))
	return results, nil
}

// searchText runs the hybrid vector query and falls back to a lexical
// database scan when the vector layer errors or returns nothing. The
// fallback is deterministic: newest ready assets matching the text.
func (s *searchService) searchText(ctx context.Context, intent SearchIntent) ([]SearchResult, error) {
	if strings.TrimSpace(intent.Text) == "" {
		return nil, fmt.Errorf("text query required")
	}

	matches, err := s.index.SearchByText(ctx, intent.Text, intent.Tags, intent.Limit, intent.Offset)
	if err != nil {
		s.log.Warn("vector text search failed, falling back to lexical", "error", err)
		return s.lexicalFallback(ctx, intent)
	}
	results, err := s.resolve(ctx, matches, intent.UserID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return s.lexicalFallback(ctx, intent)
	}
	return results, nil
}

func (s *searchService) lexicalFallback(ctx context.Context, intent SearchIntent) ([]SearchResult, error) {
	assets, err := s.assets.SearchLexical(ctx, nil, intent.Text, intent.Tags, intent.UserID, intent.Limit, intent.Offset)
	if err != nil {
		return nil, fmt.Errorf("lexical fallback: %w", err)
	}
	return assetsToResults(assets), nil
}

func (s *searchService) searchImage(ctx context.Context, intent SearchIntent) ([]SearchResult, error) {
	if len(intent.ImageData) == 0 {
		return nil, fmt.Errorf("image data required")
	}
	matches, err := s.index.SearchByImage(ctx, intent.ImageData, intent.Tags, intent.Limit, intent.Offset)
	if err != nil {
		s.log.Warn("image search degraded to empty", "error", err)
		return []SearchResult{}, nil
	}
	return s.resolve(ctx, matches, intent.UserID)
}

func (s *searchService) searchColor(ctx context.Context, intent SearchIntent) ([]SearchResult, error) {
	hex, err := NormalizeHexColor(intent.Color)
	if err != nil {
		return nil, err
	}
	matches, err := s.index.SearchByColor(ctx, hex, intent.Limit, intent.Offset)
	if err != nil {
		s.log.Warn("color search degraded to empty", "error", err)
		return []SearchResult{}, nil
	}
	return s.resolve(ctx, matches, intent.UserID)
}

func (s *searchService) searchKeyframe(ctx context.Context, intent SearchIntent) ([]SearchResult, error) {
	if len(intent.ImageData) == 0 {
		return nil, fmt.Errorf("image data required")
	}
	matches, err := s.index.SearchByKeyframe(ctx, intent.ImageData, intent.Tags, intent.Limit)
	if err != nil {
		s.log.Warn("keyframe search degraded to empty", "error", err)
		return []SearchResult{}, nil
	}
	return s.resolve(ctx, matches, intent.UserID)
}

// searchTagOnly bypasses the vector index entirely; it is a plain metadata
// listing of ready assets carrying all requested tags.
func (s *searchService) searchTagOnly(ctx context.Context, intent SearchIntent) ([]SearchResult, error) {
	if len(intent.Tags) == 0 {
		return nil, fmt.Errorf("at least one tag required")
	}
	assets, err := s.assets.ListReadyByTags(ctx, nil, intent.Tags, intent.UserID, intent.Limit, intent.Offset)
	if err != nil {
		return nil, err
	}
	return assetsToResults(assets), nil
}

// resolve loads the assets behind vector matches, preserving rank order.
// Matches whose asset rows have drifted away are dropped silently, and
// assets the caller may not see are filtered here since vector payloads are
// only a denormalized copy of visibility state.
func (s *searchService) resolve(ctx context.Context, matches []Match, userID *uuid.UUID) ([]SearchResult, error) {
	if len(matches) == 0 {
		return []SearchResult{}, nil
	}
	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		if m.AssetID != uuid.Nil {
			ids = append(ids, m.AssetID)
		}
	}
	assets, err := s.assets.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve matches: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	out := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		asset, ok := byID[m.AssetID]
		if !ok {
			continue
		}
		if !asset.VisibleTo(userID) {
			continue
		}
		out = append(out, SearchResult{Asset: asset, Keyframes: m.Keyframes, Score: m.Score})
	}
	return out, nil
}

// record writes the audit row for a dispatched query. Best-effort: a failed
// audit write never fails the search.
func (s *searchService) record(ctx context.Context, intent SearchIntent, resultCount int) {
	payload, err := json.Marshal(map[string]any{
		"text":  intent.Text,
		"color": intent.Color,
		"tags":  intent.Tags,
	})
	if err != nil {
		payload = []byte("{}")
	}
	if _, err := s.queries.Create(ctx, nil, &types.QueryRecord{
		UserID:      intent.UserID,
		QueryType:   intent.Kind,
		Query:       payload,
		ResultCount: resultCount,
	}); err != nil {
		s.log.Warn("query audit write failed", "error", err)
	}
}

func (s *searchService) RecordSelection(ctx context.Context, queryID, assetID uuid.UUID) error {
	return s.queries.SetSelectedAsset(ctx, nil, queryID, assetID)
}

func assetsToResults(assets []*types.Asset) []SearchResult {
	out := make([]SearchResult, 0, len(assets))
	for _, a := range assets {
		out = append(out, SearchResult{Asset: a})
	}
	return out
}

// NormalizeHexColor accepts "#ff5733" or "ff5733" and returns the canonical
// lowercase "#ff5733" form. Anything else is ErrInvalidColor.
func NormalizeHexColor(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !hexColorRe.MatchString(raw) {
		return "", fmt.Errorf("%w: got %q", ErrInvalidColor, raw)
	}
	return "#" + strings.ToLower(strings.TrimPrefix(raw, "#")), nil
}
