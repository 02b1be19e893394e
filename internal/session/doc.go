// Package session holds the process-wide credential cache.
//
// Memory safety:
//   - The cached secret lives in a memguard enclave, never on disk
//   - Get returns a copy; callers clear it with ClearBytes after use
//   - Purge wipes every locked buffer on shutdown
package session
