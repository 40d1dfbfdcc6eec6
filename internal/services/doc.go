// Package services implements the remote sources the sync engine reads from.
//
// Both clients are stateless and cache nothing themselves; response caching happens in the
// shared HTTP client's transport and persistence happens in the caller.
//
//   - [ItunesService] implements [Directory] against the iTunes search API
//   - [FeedService] implements [FeedSource] by downloading RSS/Atom feeds and parsing them on a bounded worker pool
//
// Failures are logged where they happen and returned wrapped with [shared.ErrTransport] or
// [shared.ErrParse]. Nothing here retries.
package services
