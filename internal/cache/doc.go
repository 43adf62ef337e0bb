// Package cache provides the two caching primitives the gateway builds on.
//
// Snapshot holds one value rebuilt on demand once it is older than its TTL.
// Concurrent callers that find the value stale share a single rebuild, and a
// caller abandoning its wait does not cancel the rebuild for the others.
// A failed rebuild falls back to the previous value when there is one.
//
// TTLMap is a keyed store whose entries expire a fixed duration after they
// were last written. Expired entries are invisible to readers and are
// reclaimed by Sweep or by a janitor started with Run.
//
// Both accept an injectable clock so expiry can be tested without sleeping.
package cache
