package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crawlmix/internal/shared"
	"github.com/desertthunder/crawlmix/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	CrawlView
	ResultView
)

const logLines = 8

// Generator runs a discovery session. [tasks.DiscoveryEngine] implements it.
type Generator interface {
	Generate(ctx context.Context, req tasks.Request, progress chan<- tasks.ProgressUpdate) (*tasks.Result, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	engine    Generator
	request   tasks.Request
	width     int
	height    int
	spinner   spinner.Model
	trackList list.Model
	progress  chan tasks.ProgressUpdate
	done      chan sessionOutcome
	cancel    context.CancelFunc
	quitting  bool
	latest    tasks.ProgressUpdate
	log       []string
	result    *tasks.Result
	err       error
	notice    string
	help      help.Model
	keys      keyMap
	openURL   func(string) error
}

// NewModel creates a new TUI model that will run req on engine once confirmed.
func NewModel(ctx context.Context, engine Generator, req tasks.Request) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.bar

	return &Model{
		ctx:     ctx,
		view:    ConfirmView,
		engine:  engine,
		request: req,
		spinner: sp,
		help:    help.New(),
		keys:    newKeyMap(),
		openURL: shared.OpenBrowser,
	}
}

// Init starts the spinner; the crawl waits for confirmation.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.hasTracks() {
			m.trackList.SetSize(msg.Width-4, msg.Height-10)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case CrawlView:
			if key.Matches(msg, m.keys.quit) {
				m.stopSession()
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	if m.hasTracks() {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) hasTracks() bool {
	return m.view == ResultView && m.result != nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.latest = update
		m.log = append(m.log, update.Message)
		if len(m.log) > logLines {
			m.log = m.log[len(m.log)-logLines:]
		}
		return m, m.waitForProgress()

	case MsgSessionComplete:
		outcome := msg.data.(sessionOutcome)
		m.result, m.err = outcome.result, outcome.err
		m.progress, m.done = nil, nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		if m.quitting {
			return m, tea.Quit
		}
		m.view = ResultView

		if m.result != nil {
			m.trackList = list.New(trackItems(m.result.Tracks), list.NewDefaultDelegate(), 0, 0)
			m.trackList.Title = fmt.Sprintf("%d/%d tracks", len(m.result.Tracks), m.result.Requested)
			m.trackList.SetSize(m.width-4, m.height-10)
		}
		return m, nil

	case MsgBrowserOpened:
		if err, _ := msg.data.(error); err != nil {
			m.notice = fmt.Sprintf("could not open browser: %v", err)
		} else {
			m.notice = "opened in browser"
		}
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	case CrawlView:
		return m.renderCrawl()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.cancel):
		return m, tea.Quit
	case key.Matches(msg, m.keys.start):
		m.view = CrawlView
		m.log = nil
		m.latest = tasks.ProgressUpdate{}
		return m, tea.Batch(m.startSession(), m.spinner.Tick)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.hasTracks() && m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = ConfirmView
		m.result, m.err, m.notice = nil, nil, ""
		return m, nil
	case key.Matches(msg, m.keys.open):
		if url := m.playlistURL(); url != "" {
			return m, m.openPlaylist(url)
		}
		return m, nil
	}

	if !m.hasTracks() {
		return m, nil
	}
	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) playlistURL() string {
	if m.result == nil || m.result.Playlist == nil {
		return ""
	}
	return m.result.Playlist.URL
}

func (m *Model) openPlaylist(url string) tea.Cmd {
	return func() tea.Msg {
		return browserOpenedMsg(m.openURL(url))
	}
}

// Err returns the error of the last session, nil when it succeeded or never ran.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) startSession() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan sessionOutcome, 1)
	ctx, cancel := context.WithCancel(m.ctx)
	m.progress, m.done, m.cancel = progress, done, cancel

	engine, req := m.engine, m.request
	go func() {
		result, err := engine.Generate(ctx, req, progress)
		done <- sessionOutcome{result, err}
		close(progress)
	}()

	return m.waitForProgress()
}

// stopSession cancels the running session. The program quits once its outcome arrives,
// so a partly written playlist is still reported.
func (m *Model) stopSession() {
	m.quitting = true
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progress, m.done
	return func() tea.Msg {
		if progress == nil {
			return sessionCompleteMsg(nil, errors.New("no session running"))
		}

		update, ok := <-progress
		if !ok {
			outcome := <-done
			return sessionCompleteMsg(outcome.result, outcome.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderConfirm() string {
	req := m.request
	title := styles.title.Render("Start a discovery crawl?")
	info := fmt.Sprintf(
		"Playlist: %s\nSeeds: %s\nTracks: %d\nFilter: %s\nVisibility: %s",
		req.PlaylistSpec().Name,
		strings.Join(req.Seeds, ", "),
		req.Size,
		req.Filter(),
		shared.VisibilityString(req.Public),
	)
	if req.DryRun {
		info += "\n" + styles.warn.Render("Dry run: no playlist will be created")
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.start, m.keys.cancel, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}

func (m *Model) renderCrawl() string {
	title := styles.title.Render("Crawling related artists")

	collected := m.latest.Collected
	bar := progressBar(collected, m.request.Size, 40)
	status := fmt.Sprintf("%s %s %d/%d", m.spinner.View(), bar, collected, m.request.Size)

	var phase string
	switch m.latest.Phase {
	case tasks.Authenticate:
		phase = "Authenticated"
	case tasks.SeedChosen, tasks.BranchExplored, tasks.TracksCollected, tasks.PassComplete:
		phase = "Collecting tracks..."
	case tasks.CreatePlaylist:
		phase = "Creating playlist..."
	case tasks.AppendTracks:
		phase = fmt.Sprintf("Adding tracks (batch %d/%d)", m.latest.Step, m.latest.Total)
	default:
		phase = "Signing in..."
	}
	if m.quitting {
		phase = styles.warn.Render("Stopping...")
	}

	lines := make([]string, len(m.log))
	for i, l := range m.log {
		lines[i] = styles.help.Render("  " + l)
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s\n\n%s\n\n%s", title, status, phase, strings.Join(lines, "\n"), helpView)
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}

	var header string
	switch {
	case m.result == nil && m.err != nil:
		msg := fmt.Sprintf("Crawl failed: %v", m.err)
		if errors.Is(m.err, shared.ErrNoResults) {
			msg += "\nTry widening the year or popularity range, or adding seeds."
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), m.help.ShortHelpView(helpKeys))
	case m.result == nil:
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), m.help.ShortHelpView(helpKeys))
	case m.err != nil:
		header = styles.warn.Render(fmt.Sprintf("Playlist created but incomplete: %v", m.err))
	case m.result.DryRun:
		header = styles.ok.Render("✓ Dry run complete")
	default:
		header = styles.ok.Render(fmt.Sprintf("✓ %s", m.result.Playlist.Name))
	}

	if m.result.Short() {
		header += "\n" + styles.warn.Render(fmt.Sprintf("Only %d of %d tracks matched the filter", len(m.result.Tracks), m.result.Requested))
	}
	if url := m.playlistURL(); url != "" {
		header += "\n" + url
		helpKeys = append([]key.Binding{m.keys.open}, helpKeys...)
	}
	if m.notice != "" {
		header += "\n" + styles.help.Render(m.notice)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", header, m.trackList.View(), m.help.ShortHelpView(helpKeys))
}
