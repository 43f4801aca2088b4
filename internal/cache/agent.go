// Package cache wraps the Redis-backed agent-config cache: agent lookups
// happen on every chat turn, so the owner/config row is cached for a day
// rather than hit on Postgres each time.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlas-ai/knowledge-core/internal/model"
)

const agentTTL = 24 * time.Hour

// AgentCache caches model.Agent rows under key "agent_{agentID}_data".
type AgentCache struct {
	client *redis.Client
}

func NewAgentCache(client *redis.Client) *AgentCache {
	return &AgentCache{client: client}
}

func agentKey(agentID string) string {
	return fmt.Sprintf("agent_%s_data", agentID)
}

// Get returns the cached agent, or (nil, nil) on a cache miss.
func (c *AgentCache) Get(ctx context.Context, agentID string) (*model.Agent, error) {
	raw, err := c.client.Get(ctx, agentKey(agentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache.AgentCache.Get: %w", err)
	}
	var a model.Agent
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("cache.AgentCache.Get: unmarshal: %w", err)
	}
	return &a, nil
}

// Set caches an agent with the standard 24h TTL.
func (c *AgentCache) Set(ctx context.Context, a *model.Agent) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("cache.AgentCache.Set: marshal: %w", err)
	}
	if err := c.client.Set(ctx, agentKey(a.AgentID), raw, agentTTL).Err(); err != nil {
		return fmt.Errorf("cache.AgentCache.Set: %w", err)
	}
	return nil
}

// GetOrLoad returns the cached agent, loading and caching it via load on a
// miss. load is typically the store-backed lookup.
func (c *AgentCache) GetOrLoad(ctx context.Context, agentID string, load func(ctx context.Context) (*model.Agent, error)) (*model.Agent, error) {
	if a, err := c.Get(ctx, agentID); err != nil {
		return nil, err
	} else if a != nil {
		return a, nil
	}

	a, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Invalidate drops the cached row so the next read loads fresh config. No
// handler in this service calls it; cached rows otherwise expire by TTL.
func (c *AgentCache) Invalidate(ctx context.Context, agentID string) error {
	if err := c.client.Del(ctx, agentKey(agentID)).Err(); err != nil {
		return fmt.Errorf("cache.AgentCache.Invalidate: %w", err)
	}
	return nil
}
