// Package models defines the domain entities for the podx podcast client.
//
// The package contains two categories of types:
//
// 1. Persistent Entities: rows owned by the local store
//   - [Podcast] : A directory or feed podcast with the user-owned subscription flag
//   - [Episode] : A single feed item keyed by guid, owned by a podcast
//   - [SearchResult] : The cached outcome of a directory search for a normalized term
//
// 2. Views: compositions read from the store in one go
//   - [PodcastFeed] : A podcast together with its stored episodes
//
// Server-owned fields are overwritten on every sync. [Podcast.Subscribed] is the only
// user-owned field and is never sourced from remote data.
package models
