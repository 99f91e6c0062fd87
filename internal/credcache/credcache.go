// Package credcache remembers, per username, a bcrypt hash of the last
// password that was successfully used to log in. It lets a caller check
// "would this Login almost certainly fail?" before spending a
// round-trip on a password that's already known to be stale -- without
// ever holding the plaintext password in memory any longer than the one
// comparison that needs it.
package credcache

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	mu     sync.Mutex
	hashes map[string][]byte // username -> bcrypt hash of last accepted password
}

func New() *Cache {
	return &Cache{hashes: make(map[string][]byte)}
}

// Remember records that password was just accepted by the server for
// username. Call this after a Login or Register command succeeds.
func (c *Cache) Remember(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[username] = hash

	return nil
}

// Forget removes any cached credential for username, e.g. after a
// Logout.
func (c *Cache) Forget(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hashes, username)
}

// LikelyStale reports whether password very likely differs from the one
// last remembered for username. It returns false (not stale) when
// nothing is cached yet for username -- absence of information is not
// evidence of staleness, and the caller should attempt the Login
// regardless and call Remember on success.
func (c *Cache) LikelyStale(username, password string) bool {
	c.mu.Lock()
	hash, ok := c.hashes[username]
	c.mu.Unlock()

	if !ok {
		return false
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil
}
