package gateway

import (
	"sync"

	"github.com/practice-sem-2/dm-service/internal/models"
)

// ProfileCache is a process-wide uid to profile map. Entries are never
// invalidated for the lifetime of the process.
type ProfileCache struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

func NewProfileCache() *ProfileCache {
	return &ProfileCache{
		profiles: make(map[string]models.Profile),
	}
}

func (c *ProfileCache) Get(uid string) (*models.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[uid]
	if !ok {
		return nil, false
	}
	return &p, true
}

func (c *ProfileCache) Put(profile *models.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.profiles[profile.UID]; ok {
		return
	}
	c.profiles[profile.UID] = *profile
}

func (c *ProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}
