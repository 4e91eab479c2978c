package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
)

// MemorySessionCache is the in-process store used when Redis is disabled.
// Values are copied in and out so callers never share slices.
type MemorySessionCache struct {
	items *gocache.Cache
	ttl   time.Duration
}

func NewMemorySessionCache(ttl time.Duration) *MemorySessionCache {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &MemorySessionCache{
		items: gocache.New(ttl, ttl/2),
		ttl:   ttl,
	}
}

func (c *MemorySessionCache) Get(_ context.Context, id string) (*app.SessionState, error) {
	v, ok := c.items.Get("session:" + id)
	if !ok {
		return nil, nil
	}
	state := v.(app.SessionState).Clone()
	c.items.Set("session:"+id, state.Clone(), c.ttl)
	return &state, nil
}

func (c *MemorySessionCache) Save(_ context.Context, state app.SessionState) error {
	c.items.Set("session:"+state.ID, state.Clone(), c.ttl)
	return nil
}

func (c *MemorySessionCache) Delete(_ context.Context, id string) error {
	c.items.Delete("session:" + id)
	return nil
}

func (c *MemorySessionCache) SaveJob(_ context.Context, status app.JobStatus) error {
	c.items.Set("job:"+status.ID, status, c.ttl)
	return nil
}

func (c *MemorySessionCache) GetJob(_ context.Context, id string) (*app.JobStatus, error) {
	v, ok := c.items.Get("job:" + id)
	if !ok {
		return nil, nil
	}
	status := v.(app.JobStatus)
	return &status, nil
}
