// Package auth implements API token authentication. Tokens are opaque
// random strings handed to the client once; only their SHA-256 hash is
// stored. Validation looks the hash up in Postgres and rejects expired
// tokens.
package auth
