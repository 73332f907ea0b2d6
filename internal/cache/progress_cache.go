package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// ProgressCache is a write-through snapshot of the latest progress row per
// course, so the polling status endpoint does not hammer the database. It is
// advisory: a miss or a redis outage falls back to the DB read.
type ProgressCache interface {
	Set(ctx context.Context, p *types.ProcessingProgress) error
	Get(ctx context.Context, courseID uuid.UUID) (*types.ProcessingProgress, error)
}

type progressCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressCache(client *redis.Client) ProgressCache {
	return &progressCache{client: client, ttl: 10 * time.Minute}
}

func key(courseID uuid.UUID) string {
	return "progress:" + courseID.String()
}

func (c *progressCache) Set(ctx context.Context, p *types.ProcessingProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(p.CourseID), data, c.ttl).Err()
}

func (c *progressCache) Get(ctx context.Context, courseID uuid.UUID) (*types.ProcessingProgress, error) {
	data, err := c.client.Get(ctx, key(courseID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p types.ProcessingProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
