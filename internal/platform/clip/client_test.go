package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/pixelseek/pixelseek/internal/logger"
)

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, dim int, handler roundTripFunc) Vectorizer {
	t.Helper()
	v, err := NewClient(logger.NewNop(), Config{URL: "http://clip.test:8000", VectorDim: dim})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	v.(*client).http = &http.Client{Transport: handler}
	return v
}

func okVectors(t *testing.T, vectors [][]float32) *http.Response {
	t.Helper()
	body, err := json.Marshal(vectorizeResponse{Vectors: vectors, Dimensions: len(vectors[0])})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestEmbedTextsRequestShape(t *testing.T) {
	v := newTestClient(t, 3, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=POST got=%s", r.Method)
		}
		if r.URL.Path != "/vectorize/text" {
			t.Fatalf("path: want=/vectorize/text got=%s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		got := r.PostForm["text"]
		if len(got) != 2 || got[0] != "sunset over water" || got[1] != "city at night" {
			t.Fatalf("form texts: %v", got)
		}
		return okVectors(t, [][]float32{{1, 0, 0}, {0, 1, 0}}), nil
	})

	vectors, err := v.EmbedTexts(context.Background(), []string{"sunset over water", "city at night"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 {
		t.Fatalf("vectors: %v", vectors)
	}
}

func TestEmbedImageEncodesBase64(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0x00, 0x11}
	v := newTestClient(t, 2, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/vectorize/base64" {
			t.Fatalf("path: want=/vectorize/base64 got=%s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		encoded := r.PostForm.Get("image_base64")
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			t.Fatalf("decode base64: %v", err)
		}
		if !bytes.Equal(decoded, raw) {
			t.Fatalf("image bytes mismatch: %v", decoded)
		}
		return okVectors(t, [][]float32{{0.5, 0.5}}), nil
	})

	vec, err := v.EmbedImage(context.Background(), raw)
	if err != nil {
		t.Fatalf("EmbedImage: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("vector: %v", vec)
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	v := newTestClient(t, 4, func(r *http.Request) (*http.Response, error) {
		return okVectors(t, [][]float32{{1, 2}}), nil
	})
	if _, err := v.EmbedTexts(context.Background(), []string{"x"}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestEmbedSurfacesTransportFailure(t *testing.T) {
	transportErr := errors.New("connection refused")
	v := newTestClient(t, 3, func(r *http.Request) (*http.Response, error) {
		return nil, transportErr
	})
	if _, err := v.EmbedImage(context.Background(), []byte{1}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestEmbedSurfacesHTTPError(t *testing.T) {
	v := newTestClient(t, 3, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"detail":"model not loaded"}`))),
		}, nil
	})
	_, err := v.EmbedTexts(context.Background(), []string{"x"})
	if err == nil {
		t.Fatalf("expected http error")
	}
	if want := fmt.Sprintf("status=%d", http.StatusInternalServerError); !bytes.Contains([]byte(err.Error()), []byte(want)) {
		t.Fatalf("error should carry status: %v", err)
	}
}

func TestResolveConfigFromEnvValidation(t *testing.T) {
	t.Setenv("CLIP_URL", "")
	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("missing url must fail")
	}

	t.Setenv("CLIP_URL", "http://clip:8000")
	t.Setenv("CLIP_VECTOR_DIM", "not-a-number")
	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("bad dim must fail")
	}

	t.Setenv("CLIP_VECTOR_DIM", "768")
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.VectorDim != 768 {
		t.Fatalf("dim: want=768 got=%d", cfg.VectorDim)
	}
}
