// Package storage persists volume profiles in a BBolt database.
//
// Two buckets are used:
//   - meta: schema version, timestamps, the current profile and user settings
//   - profiles: one JSON document per profile, keyed by name
//
// Load and Save always move the whole profile set, so callers never see a
// partially written document. BBolt's file lock keeps two mithril processes
// from writing at the same time.
package storage
