// Package shard runs a set of gateway shards against one shared identify
// budget.
//
// A Coordinator serializes identify admission: at most MaxConcurrency
// grants are held at once, each slot waits IdentifySpacing between grants,
// and waiting shards are served lowest index first. A Manager discovers the
// recommended shard count and limits, builds one connection.Shard per
// index, and owns their lifetime. A Refresher re-runs discovery so limit
// changes reach the Coordinator without a restart.
package shard
