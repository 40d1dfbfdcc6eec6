// Package tasks serves podcast data from local storage while revalidating it against the
// directory and feed services.
//
// # Resources
//
// A [Resource] pairs a live local read with a remote fetch. [Resource.Stream] emits the local
// data as a [Snapshot]:
//
//  1. The first local value is read once and passed to ShouldFetch.
//  2. Fresh data is emitted as [Success] for as long as the stream lives; nothing is fetched.
//  3. Stale data is emitted as [Loading], then the remote result is fetched and saved.
//     - On success the local data continues as [Success], now including the save.
//     - On failure it continues as [Error] with the cause attached. There is no retry.
//
// Loading always precedes the first Success or Error of a stream. Cancelling the context stops
// any in-flight fetch and releases the store subscription.
//
// # Engine
//
// [PodcastEngine] builds resources over the store:
//   - [PodcastEngine.SearchPodcasts] always revalidates against the directory
//   - [PodcastEngine.PodcastFeed] revalidates when a feed has no episodes or its last sync
//     is older than the feed TTL
//   - [PodcastEngine.Subscribed] and [PodcastEngine.RequirePodcast] are local only
//
// Every remote write goes through the podcast upsert, so syncing never changes whether a
// podcast is subscribed.
//
// # Paging
//
// [EpisodePager] reads stored episodes in pages and drives an [EpisodesFeedMediator], which
// fetches the whole feed on the first load. Because a feed arrives in one piece, a successful
// load always ends pagination.
//
// # Progress Reporting
//
// [PodcastEngine.SyncSubscribed] sends [ProgressUpdate] values on an optional channel. Updates
// use select with default to prevent blocking.
package tasks
