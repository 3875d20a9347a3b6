// Package cache provides the two-tier role-set cache: an in-process LRU
// in front of Redis. Role sets are invalidated per user whenever a
// membership or role changes.
package cache
