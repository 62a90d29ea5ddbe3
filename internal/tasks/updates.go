package tasks

import (
	"fmt"
	"strings"

	"github.com/desertthunder/crawlmix/internal/discovery"
	"github.com/desertthunder/crawlmix/internal/models"
)

// ProgressUpdate represents a progress event during a discovery session.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase     Phase  // Operation phase
	Step      int    // Current step number within phase
	Total     int    // Total steps in this phase
	Collected int    // Tracks collected so far
	Message   string // Human-readable message for display
	Data      any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Authenticate Phase = iota
	SeedChosen
	BranchExplored
	TracksCollected
	PassComplete
	CreatePlaylist
	AppendTracks
	Complete
)

func (p Phase) String() string {
	switch p {
	case Authenticate:
		return "authenticate"
	case SeedChosen:
		return "seed_chosen"
	case BranchExplored:
		return "branch_explored"
	case TracksCollected:
		return "tracks_collected"
	case PassComplete:
		return "pass_complete"
	case CreatePlaylist:
		return "create_playlist"
	case AppendTracks:
		return "append_tracks"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func authenticatedUpdate(user *models.User) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Authenticate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Signed in as %s", displayName(user)),
		Data:    user,
	}
}

func seedChosenUpdate(iteration, maxIterations, pass int, seed string, collected, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:     SeedChosen,
		Step:      iteration,
		Total:     maxIterations,
		Collected: collected,
		Message:   fmt.Sprintf("Pass %d: crawling from %s (%d/%d tracks)", pass, seed, collected, size),
		Data:      seed,
	}
}

func branchExploredUpdate(hop discovery.Hop, collected int) ProgressUpdate {
	names := make([]string, len(hop.Sampled))
	for i, a := range hop.Sampled {
		names[i] = a.Name
	}
	return ProgressUpdate{
		Phase:     BranchExplored,
		Step:      hop.Number,
		Collected: collected,
		Message:   fmt.Sprintf("Hop %d from %s: %s (+%d)", hop.Number, hop.From.Name, strings.Join(names, ", "), len(hop.Accepted)),
		Data:      hop,
	}
}

func tracksCollectedUpdate(res *discovery.CrawlResult, seed string, collected, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:     TracksCollected,
		Step:      collected,
		Total:     size,
		Collected: collected,
		Message:   fmt.Sprintf("%s yielded %d tracks (%s after %d hops), %d/%d collected", seed, len(res.Tracks), res.State, res.Hops, collected, size),
		Data:      res,
	}
}

func passCompleteUpdate(pass, collected, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:     PassComplete,
		Step:      pass,
		Collected: collected,
		Message:   fmt.Sprintf("Pass %d complete with %d/%d tracks, reshuffling seeds", pass, collected, size),
	}
}

func creatingPlaylistUpdate(name string, collected int) ProgressUpdate {
	return ProgressUpdate{
		Phase:     CreatePlaylist,
		Step:      0,
		Total:     1,
		Collected: collected,
		Message:   fmt.Sprintf("Creating playlist %q with %d tracks...", name, collected),
	}
}

func playlistCreatedUpdate(pl *models.PlaylistRef, collected int) ProgressUpdate {
	return ProgressUpdate{
		Phase:     CreatePlaylist,
		Step:      1,
		Total:     1,
		Collected: collected,
		Message:   fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Name, pl.ID),
		Data:      pl,
	}
}

func appendTracksUpdate(batch, batches, appended, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:     AppendTracks,
		Step:      batch,
		Total:     batches,
		Collected: total,
		Message:   fmt.Sprintf("[%d/%d] Added %d/%d tracks", batch, batches, appended, total),
	}
}

func completeUpdate(result *Result) ProgressUpdate {
	msg := fmt.Sprintf("Collected %d/%d tracks", len(result.Tracks), result.Requested)
	if result.Playlist != nil {
		msg = fmt.Sprintf("✓ %s (%d tracks)", result.Playlist.Name, len(result.Tracks))
	}
	return ProgressUpdate{
		Phase:     Complete,
		Step:      1,
		Total:     1,
		Collected: len(result.Tracks),
		Message:   msg,
		Data:      result,
	}
}

func displayName(user *models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.ID
}
