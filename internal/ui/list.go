package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/crawlmix/internal/models"
)

var (
	_ list.Item = trackItem{}
)

// trackItem wraps [models.TrackCandidate] to implement [list.Item].
type trackItem struct {
	index int
	track models.TrackCandidate
}

func (i trackItem) FilterValue() string { return i.track.Name + " " + i.track.Artist }
func (i trackItem) Title() string       { return fmt.Sprintf("%d. %s", i.index+1, i.track.Name) }
func (i trackItem) Description() string {
	year := "unknown year"
	if i.track.YearKnown() {
		year = fmt.Sprint(i.track.ReleaseYear)
	}
	desc := fmt.Sprintf("%s • %s • popularity %d", i.track.Artist, year, i.track.Popularity)
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	return desc
}

func trackItems(tracks []models.TrackCandidate) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{index: i, track: t}
	}
	return items
}
