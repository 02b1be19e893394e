package session

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Credentials caches at most one secret for the lifetime of the process.
//
// The secret is sealed in a memguard enclave: it is encrypted while at rest
// in memory and only decrypted into locked, non-swappable pages when read.
// Nothing here ever writes the secret to disk or to a log.
type Credentials struct {
	mu       sync.Mutex
	enclave  *memguard.Enclave
	remember bool
}

// New returns an empty credential cache.
func New() *Credentials {
	return &Credentials{}
}

// Get returns a copy of the cached secret, or nil when nothing is cached.
// The caller should ClearBytes the result when done.
func (c *Credentials) Get() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enclave == nil {
		return nil
	}
	buf, err := c.enclave.Open()
	if err != nil {
		// The enclave key was purged; behave as if nothing was cached.
		c.enclave = nil
		c.remember = false
		return nil
	}
	defer buf.Destroy()
	return Clone(buf.Bytes())
}

// Set caches secret when remember is true. When remember is false any
// previously cached secret is dropped instead, so the cache never holds a
// secret the user did not ask to keep. secret is copied, not retained.
func (c *Credentials) Set(secret []byte, remember bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enclave = nil
	c.remember = false
	if !remember || len(secret) == 0 {
		return
	}
	// NewEnclave wipes its argument.
	c.enclave = memguard.NewEnclave(Clone(secret))
	c.remember = c.enclave != nil
}

// Clear drops the cached secret.
func (c *Credentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enclave = nil
	c.remember = false
}

// Cached reports whether a secret is currently cached.
func (c *Credentials) Cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enclave != nil && c.remember
}

// Purge wipes all locked memory held by the process. Call it on exit.
func Purge() {
	memguard.Purge()
}
