package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"questhunt/internal/models"
)

// RedisCache holds published catalog data. Steps are immutable once a quest
// is published, so entries never need invalidation, only expiry.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

const catalogTTL = 24 * time.Hour

func NewRedisCache(addr string) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{
		client: client,
		ctx:    context.Background(),
	}
}

func (c *RedisCache) SetQuest(quest *models.Quest) error {
	data, err := json.Marshal(quest)
	if err != nil {
		return err
	}

	key := "quest:" + quest.ID
	return c.client.Set(c.ctx, key, data, catalogTTL).Err()
}

func (c *RedisCache) GetQuest(questID string) (*models.Quest, error) {
	key := "quest:" + questID
	data, err := c.client.Get(c.ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var quest models.Quest
	err = json.Unmarshal(data, &quest)
	return &quest, err
}

func (c *RedisCache) DeleteQuest(questID string) error {
	return c.client.Del(c.ctx, "quest:"+questID).Err()
}

func (c *RedisCache) SetSteps(questID string, steps []models.Step) error {
	data, err := json.Marshal(steps)
	if err != nil {
		return err
	}

	key := "steps:" + questID
	return c.client.Set(c.ctx, key, data, catalogTTL).Err()
}

func (c *RedisCache) GetSteps(questID string) ([]models.Step, error) {
	key := "steps:" + questID
	data, err := c.client.Get(c.ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var steps []models.Step
	err = json.Unmarshal(data, &steps)
	return steps, err
}

func (c *RedisCache) DeleteSteps(questID string) error {
	return c.client.Del(c.ctx, "steps:"+questID).Err()
}
