package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"weather-tasks/domain"
)

// generationTTL bounds how long an idle owner's generation counter lives.
const generationTTL = 24 * time.Hour

// fillIfCurrent stores the list only while the owner's generation still
// matches the one read before the backend call.
var fillIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[2] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// Cache wraps a Backend with Redis-backed caching of per-owner task lists.
// Every write evicts the affected owner's list and bumps its generation, so a
// list read that raced the write cannot repopulate stale data.
type Cache struct {
	base   Backend
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration, logger *log.Logger) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{base: base, redis: client, ttl: ttl, logger: logger}
}

func (c *Cache) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, userID); ok {
		return tasks, nil
	}

	gen, genOK := c.generation(ctx, userID)
	tasks, err := c.base.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	if genOK {
		c.storeTasks(ctx, userID, gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) error {
	if err := c.base.CreateTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.UserID)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, t domain.Task) (int64, error) {
	owner := c.ownerOf(ctx, t.TaskID)
	n, err := c.base.UpdateTask(ctx, t)
	if err != nil {
		return n, err
	}
	if n > 0 {
		c.evict(ctx, owner)
	}
	return n, nil
}

func (c *Cache) DeleteTask(ctx context.Context, taskID int64) (int64, error) {
	owner := c.ownerOf(ctx, taskID)
	n, err := c.base.DeleteTask(ctx, taskID)
	if err != nil {
		return n, err
	}
	if n > 0 {
		c.evict(ctx, owner)
	}
	return n, nil
}

func (c *Cache) TaskOwner(ctx context.Context, taskID int64) (string, error) {
	return c.base.TaskOwner(ctx, taskID)
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.base.Ping(ctx)
}

// ownerOf resolves the owner before a bare-id mutation so the right list can
// be evicted afterwards. Lookup failures leave eviction to the TTL.
func (c *Cache) ownerOf(ctx context.Context, taskID int64) string {
	owner, err := c.base.TaskOwner(ctx, taskID)
	if err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
		c.logger.WithError(err).WithField("taskID", taskID).Warn("cache: owner lookup failed")
	}
	return owner
}

func (c *Cache) loadTasksFromCache(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, true
}

// generation reads the owner's write counter. A missing counter is "0"; a
// redis failure reports false so the caller skips the fill.
func (c *Cache) generation(ctx context.Context, userID string) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, generationKey(userID)).Result()
	if err == redis.Nil {
		return "0", true
	}
	if err != nil {
		return "", false
	}
	return gen, true
}

func (c *Cache) storeTasks(ctx context.Context, userID, gen string, tasks []domain.Task) {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	keys := []string{tasksCacheKey(userID), generationKey(userID)}
	if err := fillIfCurrent.Run(ctx, c.redis, keys, data, gen, c.ttl.Milliseconds()).Err(); err != nil {
		c.logger.WithError(err).WithField("userId", userID).Debug("cache: fill skipped")
	}
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil || userID == "" {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), generationTTL)
		pipe.Del(ctx, tasksCacheKey(userID))
		return nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("userId", userID).Warn("cache: evict failed")
	}
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func generationKey(userID string) string {
	return tasksCacheKey(userID) + ":gen"
}
