// Package communities holds the community domain model: organizations,
// communities, memberships, and posts, backed by Postgres. Membership
// reads used by notification fan-out go through read replicas.
package communities
