// Package ratelimit implements per-identity fixed-window request quotas.
//
// A Limiter owns the window arithmetic and the eviction schedule; counters
// live behind the Store interface so a single instance can use MemoryStore
// while a multi-instance deployment swaps in the Redis or PostgreSQL store
// without touching callers.
package ratelimit
