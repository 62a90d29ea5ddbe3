package tasks

import (
	"fmt"

	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
)

// TrackAppendError reports a playlist that was created but only partly filled.
//
// It matches [shared.ErrTrackAppend] and the underlying cause with errors.Is.
type TrackAppendError struct {
	Playlist *models.PlaylistRef
	Appended int // Tracks added before the failing batch
	Total    int
	Err      error
}

func (e *TrackAppendError) Error() string {
	return fmt.Sprintf("playlist %s created but only %d of %d tracks were added: %v", e.Playlist.ID, e.Appended, e.Total, e.Err)
}

func (e *TrackAppendError) Unwrap() []error {
	return []error{shared.ErrTrackAppend, e.Err}
}
