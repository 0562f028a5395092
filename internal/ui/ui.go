package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/playback"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlayingView ViewState = iota
	FinishedView
)

const recentLimit = 5

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	pipeline playback.Pipeline
	events   <-chan playback.Event
	done     <-chan struct{}
	width    int
	height   int
	queue    []models.TrackID
	last     map[models.TrackID]playback.Event
	recent   []playback.Event
	current  models.TrackID
	paused   bool
	busy     bool
	played   int
	failed   int
	err      error
	list     list.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap
}

// NewModel creates a now-playing model over a queue. events is the session
// event stream and done closes when the queue finishes.
func NewModel(ctx context.Context, queue []models.TrackID, pipeline playback.Pipeline, events <-chan playback.Event, done <-chan struct{}) *Model {
	m := &Model{
		ctx:      ctx,
		view:     PlayingView,
		pipeline: pipeline,
		events:   events,
		done:     done,
		queue:    append([]models.TrackID(nil), queue...),
		last:     make(map[models.TrackID]playback.Event, len(queue)),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:     help.New(),
		keys:     newKeyMap(),
		busy:     true,
	}
	if len(queue) > 0 {
		m.current = queue[0]
	}
	m.list = list.New(m.items(), list.NewDefaultDelegate(), 0, 0)
	m.list.Title = "Queue"
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(false)
	return m
}

// Init starts the spinner and the event and queue watchers.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.waitForDone())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, max(msg.Height-12, 4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSessionEvent:
		m.apply(msg.data.(playback.Event))
		return m, m.waitForEvent()

	case MsgSessionClosed, MsgQueueFinished:
		m.view = FinishedView
		m.busy = false
		return m, nil

	case MsgControlDone:
		res := msg.data.(struct {
			action string
			err    error
		})
		if res.err != nil {
			m.err = fmt.Errorf("%s: %w", res.action, res.err)
		}
		return m, nil
	}
	return m, nil
}

// apply folds one session event into the model.
func (m *Model) apply(e playback.Event) {
	m.last[e.TrackID] = e
	m.recent = append(m.recent, e)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}

	switch e.Kind {
	case playback.EventResolving:
		m.current = e.TrackID
		m.busy = true
	case playback.EventPlaying:
		m.current = e.TrackID
		m.busy = false
		m.paused = false
		m.played++
	case playback.EventRetrying:
		m.busy = true
	case playback.EventFailed:
		m.failed++
	case playback.EventPaused:
		m.busy = false
		m.paused = true
	}
	m.list.SetItems(m.items())
}

func (m *Model) items() []list.Item {
	items := make([]list.Item, len(m.queue))
	for i, id := range m.queue {
		item := queueItem{index: i, id: id, current: id == m.current}
		if e, ok := m.last[id]; ok {
			item.last = &e
		}
		items[i] = item
	}
	return items
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	if m.view != PlayingView {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.pause):
		if m.paused {
			m.paused = false
			return m, m.control("resume", m.pipeline.Play)
		}
		m.paused = true
		return m, m.control("pause", m.pipeline.Pause)
	case key.Matches(msg, m.keys.next):
		m.busy = true
		return m, m.control("next", func(ctx context.Context) error {
			if err := m.pipeline.SkipToNext(ctx); err != nil {
				return err
			}
			if err := m.pipeline.Prepare(ctx); err != nil {
				return err
			}
			return m.pipeline.Play(ctx)
		})
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) control(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return controlDoneMsg(action, fn(m.ctx))
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return sessionClosedMsg()
		}
		return sessionEventMsg(e)
	}
}

func (m *Model) waitForDone() tea.Cmd {
	if m.done == nil {
		return nil
	}
	return func() tea.Msg {
		<-m.done
		return queueFinishedMsg()
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case FinishedView:
		return m.renderFinished()
	default:
		return m.renderPlaying()
	}
}

func (m *Model) renderPlaying() string {
	var status string
	switch {
	case m.paused:
		status = styles.warn.Render("⏸ Paused")
	case m.busy:
		status = fmt.Sprintf("%s %s", m.spinner.View(), m.statusLine())
	default:
		status = styles.ok.Render("♪ Playing " + string(m.current))
	}

	var b strings.Builder
	b.WriteString(styles.title.Render("ytplay"))
	b.WriteString("\n" + status)
	if m.pipeline != nil && !m.busy {
		b.WriteString(styles.help.Render(fmt.Sprintf("  %s", m.pipeline.Position().Truncate(time.Second))))
	}
	b.WriteString("\n\n" + m.list.View())

	if len(m.recent) > 0 {
		b.WriteString("\n")
		for _, e := range m.recent {
			b.WriteString("\n" + m.renderEvent(e))
		}
	}
	if m.err != nil {
		b.WriteString("\n\n" + styles.err.Render(m.err.Error()))
	}

	b.WriteString("\n\n" + m.help.View(m.keys))
	return b.String()
}

func (m *Model) statusLine() string {
	e, ok := m.last[m.current]
	if ok && e.Kind == playback.EventRetrying {
		return fmt.Sprintf("Retrying %s (attempt %d)", m.current, e.Attempt)
	}
	return fmt.Sprintf("Resolving %s", m.current)
}

func (m *Model) renderEvent(e playback.Event) string {
	line := fmt.Sprintf("%s %s %s", e.At.Format(time.TimeOnly), e.Kind, e.TrackID)
	if e.Category != nil {
		line += fmt.Sprintf(" (%s)", *e.Category)
	}
	if e.Err != nil {
		line += ": " + e.Err.Error()
	}
	return EventStyle(e.Kind).Render(line)
}

func (m *Model) renderFinished() string {
	title := styles.ok.Render("✓ Queue finished")
	if m.failed > 0 {
		title = styles.warn.Render("Queue finished with failures")
	}

	info := fmt.Sprintf("\nTracks: %d\nStarted: %d\nFailed: %d", len(m.queue), m.played, m.failed)
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
