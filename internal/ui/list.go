package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/playback"
)

var _ list.Item = queueItem{}

// queueItem wraps a queued track and its latest event to implement [list.Item].
type queueItem struct {
	index   int
	id      models.TrackID
	last    *playback.Event
	current bool
}

func (i queueItem) FilterValue() string { return string(i.id) }
func (i queueItem) Title() string {
	marker := " "
	if i.current {
		marker = "▶"
	}
	return fmt.Sprintf("%s %d. %s", marker, i.index+1, i.id)
}

func (i queueItem) Description() string {
	if i.last == nil {
		return styles.help.Render("queued")
	}

	desc := i.last.Kind.String()
	if i.last.Category != nil {
		desc = fmt.Sprintf("%s • %s (attempt %d)", desc, *i.last.Category, i.last.Attempt)
	}
	return EventStyle(i.last.Kind).Render(desc)
}
