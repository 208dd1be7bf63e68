// Package store persists session snapshots so shards can resume after a
// process restart.
//
// Snapshots are keyed by shard index and tagged with the shard count they
// were taken under. A snapshot from a different shard count is never
// returned, because the peer binds sessions to the [index, count] pair.
package store
