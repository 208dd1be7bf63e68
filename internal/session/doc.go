// Package session holds the per-shard facts that survive a reconnect.
//
// A State is created empty when a shard is constructed, populated when the
// peer accepts an identify (READY), advanced by every dispatched event and
// invalidated when the peer declares the session unresumable.
package session
