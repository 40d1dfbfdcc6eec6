// Package repositories implements SQLite persistence for podcasts, episodes and cached searches.
//
// A [Store] bundles one repository per table over either the database or an open transaction.
// Writes made through a Store notify subscribers of the touched tables once they are committed,
// which is what powers live reads: [Watch] re-runs a query after every such notification.
//
// Key Implementations:
//   - [PodcastRepository] : Podcast rows, including the upsert policy that keeps the user's subscription flag
//   - [EpisodeRepository] : Episode rows replaced wholesale by guid on every feed sync
//   - [SearchResultRepository] : Ordered collection ids cached per normalized search term
//   - [Notifier] : Per-table change fan-out used by [Watch]
package repositories
