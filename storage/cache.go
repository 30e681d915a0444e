package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/daveduya011/wph-task-manager/domain"
)

const (
	tasksListKey  = "tasks:all"
	taskKeyPrefix = "task:"
	generationKey = "tasks:gen"
)

// Cache wraps a TaskStore with Redis-backed caching for read operations.
// Every write bumps a generation counter and evicts the list and the touched
// task. A read only fills the cache when no write completed while it was
// reading the wrapped store. Redis failures fall back to the wrapped store
// without failing the call.
type Cache struct {
	base  TaskStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching TaskStore using the provided Redis client and TTL.
func NewCache(base TaskStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) List(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksListKey, &tasks) {
		return tasks, nil
	}
	gen, ok := c.generation(ctx)
	tasks, err := c.base.List(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, tasksListKey, tasks, gen)
	}
	return tasks, nil
}

func (c *Cache) Get(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	if c.load(ctx, taskKey(id), &t) {
		return t, nil
	}
	gen, ok := c.generation(ctx)
	t, err := c.base.Get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if ok {
		c.store(ctx, taskKey(id), t, gen)
	}
	return t, nil
}

func (c *Cache) Create(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	t, err := c.base.Create(ctx, f)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, t.ID)
	return t, nil
}

func (c *Cache) Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	t, err := c.base.Update(ctx, id, p)
	c.evict(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	err := c.base.Delete(ctx, id)
	c.evict(ctx, id)
	return err
}

// Ping forwards to the wrapped store when it can report health.
func (c *Cache) Ping(ctx context.Context) error {
	if p, ok := c.base.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// generation returns the current write generation. ok is false when Redis
// is unavailable, in which case nothing read now may be cached.
func (c *Cache) generation(ctx context.Context) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, generationKey).Result()
	if err == redis.Nil {
		return "", true
	}
	if err != nil {
		return "", false
	}
	return gen, true
}

// store caches v under key unless a write bumped the generation since gen
// was read.
func (c *Cache) store(ctx context.Context, key string, v any, gen string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, generationKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, generationKey)
}

func (c *Cache) evict(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, tasksListKey, taskKey(id))
		return nil
	})
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}
