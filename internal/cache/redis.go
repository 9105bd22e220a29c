package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/simulacroapp/simulacro/internal/models"
	"github.com/simulacroapp/simulacro/internal/services"
)

const scenarioTTL = 12 * time.Hour

// ScenarioCache decorates a ScenarioCatalog with a Redis read-through
// cache. The catalog is read-only, so entries only ever expire.
type ScenarioCache struct {
	client *redis.Client
	next   services.ScenarioCatalog
}

func NewScenarioCache(redisURL string, next services.ScenarioCatalog) (*ScenarioCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &ScenarioCache{client: client, next: next}, nil
}

func cacheKey(id string) string { return "scenario:" + id }

func (c *ScenarioCache) ReadScenario(ctx context.Context, id string) (*models.Scenario, error) {
	if data, err := c.client.Get(ctx, cacheKey(id)).Bytes(); err == nil {
		var sc models.Scenario
		if err := json.Unmarshal(data, &sc); err == nil {
			return &sc, nil
		}
		// Undecodable entry: drop it and fall through to the catalog.
		_ = c.client.Del(ctx, cacheKey(id)).Err()
	} else if !errors.Is(err, redis.Nil) {
		// Redis down degrades to catalog reads, never to an error.
		return c.next.ReadScenario(ctx, id)
	}

	sc, err := c.next.ReadScenario(ctx, id)
	if err != nil || sc == nil {
		return sc, err
	}
	if data, err := json.Marshal(sc); err == nil {
		_ = c.client.Set(ctx, cacheKey(id), data, scenarioTTL).Err()
	}
	return sc, nil
}

func (c *ScenarioCache) Close() error {
	return c.client.Close()
}
