package llm

import (
	"context"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mpataki/awinspect/internal/models"
)

const modelsKey = "models"

// ModelCache holds the last successful model listing. Entries never expire;
// callers refresh explicitly with force.
type ModelCache struct {
	provider Provider
	cache    *gocache.Cache

	// refresh serializes provider calls.
	refresh sync.Mutex
}

func NewModelCache(provider Provider) *ModelCache {
	return &ModelCache{
		provider: provider,
		cache:    gocache.New(gocache.NoExpiration, 0),
	}
}

// Get returns the cached models, asking the provider when the cache is
// empty or force is set. A failed listing leaves the cache untouched.
func (c *ModelCache) Get(ctx context.Context, force bool) ([]models.ChatModel, error) {
	c.refresh.Lock()
	defer c.refresh.Unlock()

	if !force {
		if cached := c.Cached(); len(cached) > 0 {
			return cached, nil
		}
	}

	list, err := c.provider.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	if len(list) > 0 {
		stored := make([]models.ChatModel, len(list))
		copy(stored, list)
		c.cache.Set(modelsKey, stored, gocache.NoExpiration)
	}
	return list, nil
}

// Cached returns the cached models without contacting the provider.
func (c *ModelCache) Cached() []models.ChatModel {
	v, ok := c.cache.Get(modelsKey)
	if !ok {
		return nil
	}
	stored := v.([]models.ChatModel)
	out := make([]models.ChatModel, len(stored))
	copy(out, stored)
	return out
}

// Lookup finds a cached model by id.
func (c *ModelCache) Lookup(id string) (models.ChatModel, bool) {
	for _, m := range c.Cached() {
		if m.ID == id {
			return m, true
		}
	}
	return models.ChatModel{}, false
}
