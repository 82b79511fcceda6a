// Package postgres provides a PostgreSQL-backed ratelimit.Store together with
// the connection and migration helpers it needs. Counters live in the
// rate_limit_buckets table, created by the embedded goose migrations.
package postgres
