// Package cache defines the response store the upstream fetcher consults
// before going to the network. Entries are keyed by the canonical upstream
// URL and carry an absolute expiry so every backend applies the same TTL.
// Two backends exist: a disk store under StoragePath (body file + JSON
// metadata sidecar, temp file + rename writes) and a redis store that relies
// on native key expiry. Callers receive the Store interface and never know
// which one is active.
package cache
