package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pixelseek/pixelseek/internal/logger"
)

// processQueueKey is the redis list holding asset ids awaiting pipeline
// processing. Producers LPUSH, workers BRPOP, so delivery is FIFO and
// at-least-once.
const processQueueKey = "pixelseek:process_video"

// ErrEmpty is returned by Dequeue when no task arrived within the poll
// window. Callers loop on it.
var ErrEmpty = errors.New("queue: no task available")

// TaskQueue hands asset ids from the upload path to pipeline workers.
type TaskQueue interface {
	EnqueueAsset(ctx context.Context, assetID uuid.UUID) error
	DequeueAsset(ctx context.Context) (uuid.UUID, error)
	Close() error
}

type redisQueue struct {
	log    *logger.Logger
	client *goredis.Client
	// pollTimeout bounds each BRPOP so worker shutdown is responsive.
	pollTimeout time.Duration
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	if cfg.Addr == "" {
		return Config{}, fmt.Errorf("REDIS_ADDR is required")
	}
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil || db < 0 {
			return Config{}, fmt.Errorf("invalid REDIS_DB=%q", raw)
		}
		cfg.DB = db
	}
	return cfg, nil
}

func New(log *logger.Logger, cfg Config) (TaskQueue, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("queue: ping redis %s: %w", cfg.Addr, err)
	}
	return &redisQueue{
		log:         log.With("service", "TaskQueue"),
		client:      client,
		pollTimeout: 5 * time.Second,
	}, nil
}

func (q *redisQueue) EnqueueAsset(ctx context.Context, assetID uuid.UUID) error {
	if assetID == uuid.Nil {
		return fmt.Errorf("queue: asset id required")
	}
	if err := q.client.LPush(ctx, processQueueKey, assetID.String()).Err(); err != nil {
		return fmt.Errorf("queue: enqueue asset %s: %w", assetID, err)
	}
	q.log.Debug("enqueued asset", "asset_id", assetID.String())
	return nil
}

func (q *redisQueue) DequeueAsset(ctx context.Context) (uuid.UUID, error) {
	res, err := q.client.BRPop(ctx, q.pollTimeout, processQueueKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return uuid.Nil, ErrEmpty
		}
		return uuid.Nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return uuid.Nil, fmt.Errorf("queue: unexpected BRPOP reply: %v", res)
	}
	id, err := uuid.Parse(res[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("queue: malformed task %q: %w", res[1], err)
	}
	return id, nil
}

func (q *redisQueue) Close() error {
	return q.client.Close()
}
