package tasks

import (
	"fmt"

	"github.com/desertthunder/podx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ListSubscribed Phase = iota
	SyncFeeds
	SyncComplete
)

func (p Phase) String() string {
	switch p {
	case ListSubscribed:
		return "list_subscribed"
	case SyncFeeds:
		return "sync_feeds"
	case SyncComplete:
		return "sync_complete"
	default:
		return ""
	}
}

func listSubscribedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListSubscribed,
		Total:   total,
		Message: fmt.Sprintf("Found %d subscribed podcasts", total),
	}
}

func feedSyncedUpdate(step, total int, p models.Podcast) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncFeeds,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, p.FeedTitle),
		Data:    p,
	}
}

func feedFailedUpdate(step, total int, p models.Podcast, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncFeeds,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, p.FeedTitle, err),
		Data:    p,
	}
}

func syncCompleteUpdate(result *SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncComplete,
		Step:    result.Synced,
		Total:   result.Total,
		Message: fmt.Sprintf("Synced %d of %d feeds", result.Synced, result.Total),
		Data:    result,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
