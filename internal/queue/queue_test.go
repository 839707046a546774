package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pixelseek/pixelseek/internal/logger"
)

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("missing addr must fail")
	}

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "oops")
	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("bad db must fail")
	}

	t.Setenv("REDIS_DB", "2")
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Addr != "localhost:6379" || cfg.DB != 2 {
		t.Fatalf("cfg: %+v", cfg)
	}
}

// Round-trip against a live redis; skipped unless REDIS_ADDR is set.
func TestQueueRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	q, err := New(logger.NewNop(), Config{Addr: addr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	want := uuid.New()
	if err := q.EnqueueAsset(ctx, want); err != nil {
		t.Fatalf("EnqueueAsset: %v", err)
	}
	got, err := q.DequeueAsset(ctx)
	if err != nil {
		t.Fatalf("DequeueAsset: %v", err)
	}
	if got != want {
		t.Fatalf("want=%s got=%s", want, got)
	}

	if _, err := q.DequeueAsset(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("want ErrEmpty on drained queue, got %v", err)
	}
}
