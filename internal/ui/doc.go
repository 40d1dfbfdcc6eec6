// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [SearchView] : Search the directory or browse subscriptions (tab switches between them)
//  2. [FeedView] : A podcast's description and its episodes, read a page at a time; the next page
//     loads when the cursor reaches the last episode
//
// Both views render streams from [tasks.PodcastEngine]. Each stream is read one value at a time by a
// command that returns the value as a [Msg]; the next read is scheduled when the message is handled.
// Messages from a stream that has since been replaced are dropped, so a superseded search never
// overwrites the current one.
//
// A spinner is shown while a snapshot is [tasks.Loading]. Error snapshots keep the cached data on screen
// with the error in the status line.
package ui
