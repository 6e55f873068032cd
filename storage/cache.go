package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

// backend is the store surface the decorators wrap.
type backend interface {
	FetchTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, boardID string, t domain.Task) (string, error)
	UpdateTaskFields(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, boardID, taskID string) error
}

// Cache wraps a backend with Redis-backed caching of the task snapshot.
// Every mutation evicts the board's cached snapshot so the next fetch
// reflects the write.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and
// TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	if tasks, ok := c.loadFromCache(ctx, boardID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, boardID, tasks)
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, boardID string, t domain.Task) (string, error) {
	id, err := c.base.CreateTask(ctx, boardID, t)
	if err != nil {
		return "", err
	}
	c.evict(ctx, boardID)
	return id, nil
}

func (c *Cache) UpdateTaskFields(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) error {
	if err := c.base.UpdateTaskFields(ctx, boardID, taskID, patch); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if err := c.base.DeleteTask(ctx, boardID, taskID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, boardID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(boardID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(boardID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, boardID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(boardID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(boardID)).Result()
}

func tasksCacheKey(boardID string) string {
	return "board:tasks:" + boardID
}
