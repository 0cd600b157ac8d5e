package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Dial connects to redis and pings it.
func Dial(ctx context.Context, o Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		PoolSize:     50,
		MinIdleConns: 5,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}
	return rdb, nil
}

// kv is the subset of redis commands the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ExamCache stores exam definitions as JSON under exam:<id>.
type ExamCache struct {
	rdb kv
	ttl time.Duration
}

var _ exam.ExamCache = (*ExamCache)(nil)

func NewExamCache(rdb kv, ttl time.Duration) *ExamCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ExamCache{rdb: rdb, ttl: ttl}
}

func key(id string) string { return "exam:" + id }

func (c *ExamCache) Get(ctx context.Context, id string) (exam.Exam, bool, error) {
	b, err := c.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return exam.Exam{}, false, nil
	}
	if err != nil {
		return exam.Exam{}, false, err
	}
	var e exam.Exam
	if err := json.Unmarshal(b, &e); err != nil {
		return exam.Exam{}, false, fmt.Errorf("decode cached exam %q: %w", id, err)
	}
	return e, true, nil
}

func (c *ExamCache) Set(ctx context.Context, e exam.Exam) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(e.ID), b, c.ttl).Err()
}

func (c *ExamCache) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, key(id)).Err()
}
