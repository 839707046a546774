package clip

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pixelseek/pixelseek/internal/logger"
)

const maxErrorBodyBytes = 1024

// Vectorizer turns text and image bytes into embeddings in a shared space.
// The production implementation talks to a CLIP inference service; tests
// substitute a fake.
type Vectorizer interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

type client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type vectorizeResponse struct {
	Vectors        [][]float32 `json:"vectors"`
	Dimensions     int         `json:"dimensions"`
	ProcessingTime float64     `json:"processing_time"`
}

func NewClient(log *logger.Logger, cfg Config) (Vectorizer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		log:     log.With("service", "ClipVectorizer"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("clip: at least one text required")
	}
	form := url.Values{}
	for _, t := range texts {
		form.Add("text", t)
	}
	vectors, err := c.postForm(ctx, "/vectorize/text", form)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("clip: vector count mismatch: sent=%d got=%d", len(texts), len(vectors))
	}
	return vectors, nil
}

func (c *client) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("clip: image bytes required")
	}
	form := url.Values{}
	form.Add("image_base64", base64.StdEncoding.EncodeToString(image))
	vectors, err := c.postForm(ctx, "/vectorize/base64", form)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("clip: vector count mismatch: sent=1 got=%d", len(vectors))
	}
	return vectors[0], nil
}

func (c *client) postForm(ctx context.Context, path string, form url.Values) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("clip: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clip: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("clip: http status=%d body=%q", resp.StatusCode, string(raw))
	}

	var parsed vectorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("clip: decode response: %w", err)
	}
	for i, v := range parsed.Vectors {
		if len(v) != c.cfg.VectorDim {
			return nil, fmt.Errorf("clip: vector %d dimension mismatch: expected=%d got=%d", i, c.cfg.VectorDim, len(v))
		}
	}
	return parsed.Vectors, nil
}
