package recipients

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// poolCache memoizes user pool fetches per cache key with a TTL. Concurrent
// misses for the same key are coalesced through singleflight so a burst of
// notifications for one tenant triggers a single upstream fetch.
type poolCache struct {
	ttl    time.Duration
	mu     sync.Mutex
	data   map[string]poolEntry
	flight singleflight.Group
	now    func() time.Time
}

type poolEntry struct {
	users   []User
	expires time.Time
}

func newPoolCache(ttl time.Duration) *poolCache {
	return &poolCache{
		ttl:  ttl,
		data: map[string]poolEntry{},
		now:  time.Now,
	}
}

func (c *poolCache) get(key string, fetch func() ([]User, error)) ([]User, error) {
	c.mu.Lock()
	entry, ok := c.data[key]
	if ok && c.now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.users, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Another flight member may have filled the entry while this caller
		// was queued behind the first.
		c.mu.Lock()
		entry, ok := c.data[key]
		if ok && c.now().Before(entry.expires) {
			c.mu.Unlock()
			return entry.users, nil
		}
		c.mu.Unlock()

		users, err := fetch()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.data[key] = poolEntry{users: users, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]User), nil
}
