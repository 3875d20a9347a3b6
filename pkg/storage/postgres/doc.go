// Package postgres provides the PostgreSQL connection layer: a connection
// manager with an optional pool of read replicas, a Redis client wrapper
// for the caching and rate-limiting layers, and the versioned schema
// migrations applied at startup.
package postgres
