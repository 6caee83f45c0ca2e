package auth

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// UserCache keeps recently loaded users with their membership graphs
// so repeated permission checks skip the database. It implements
// Invalidator; the store calls back into it on every mutation that
// changes what a user may do.
type UserCache struct {
	store *Store
	cache *lru.Cache[int64, *User]
}

// NewUserCache creates a bounded user cache backed by the store.
func NewUserCache(store *Store, size int) (*UserCache, error) {
	cache, err := lru.New[int64, *User](size)
	if err != nil {
		return nil, err
	}
	return &UserCache{store: store, cache: cache}, nil
}

// Get returns the cached user or loads it. A nil result means the user
// does not exist.
func (c *UserCache) Get(ctx context.Context, userID int64) (*User, error) {
	if user, ok := c.cache.Get(userID); ok {
		return user, nil
	}
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		c.cache.Add(userID, user)
	}
	return user, nil
}

// InvalidateUser drops a user from the cache. The next Get reloads the
// membership graph from the database.
func (c *UserCache) InvalidateUser(userID int64) {
	c.cache.Remove(userID)
}
