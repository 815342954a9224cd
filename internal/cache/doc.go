// Package cache implements the two-tier asset cache that sits in front of the
// upstream asset store. Assets live in a sharded, expiring in-memory tier and in
// a disk tier rooted at CacheDirectory/<tier>/.../<key>. Disk publication uses
// temp file + rename so readers never observe partial files, and a
// WriteCoordinator guarantees at most one in-flight write per path.
//
// The RetentionSweeper periodically removes disk entries whose modification time
// (used as last-access time) is older than FileExpiration. When deep scanning is
// enabled it first walks every live scene, touching or fetching the assets they
// reference so in-use content survives the purge.
//
// None of the public operations return errors for cache failures: every I/O or
// decode problem degrades to a miss, because the upstream store remains the
// source of truth.
package cache
