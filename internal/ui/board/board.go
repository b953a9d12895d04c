// Package board implements the soundboard TUI: a grid of sound buttons that
// play through the playback controller.
package board

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/playback"
	"github.com/zjrosen/creek-soundboard/internal/ui/nosounds"
	"github.com/zjrosen/creek-soundboard/internal/ui/styles"
)

// Messages shown by the board.
const (
	LoadingMessage    = "Loading sounds..."
	LoadFailedMessage = "Failed to load sounds. Please refresh the page."
)

const (
	title         = "Creek Soundboard"
	minCellWidth  = 14
	buttonHeight  = 3
	defaultToast  = 5 * time.Second
	defaultColumn = 4
)

// Player is the subset of playback.Controller the board drives.
type Player interface {
	Play(ctx context.Context, s catalog.Sound, h playback.Handle)
	Preload(ctx context.Context, sounds []catalog.Sound) <-chan struct{}
}

// Config wires the board to its collaborators.
type Config struct {
	Player     Player
	Client     *http.Client
	CatalogURL string
	// Resolve maps catalog references to absolute URLs.
	Resolve       func(ref string) (string, error)
	Columns       int
	ToastDuration time.Duration
	ShowHelp      bool
	// Context bounds background work. Defaults to context.Background().
	Context context.Context
}

// PlayingMsg marks a trigger as playing.
type PlayingMsg struct{ Handle playback.Handle }

// StoppedMsg marks a trigger as stopped.
type StoppedMsg struct{ Handle playback.Handle }

// ToastMsg shows a transient notification.
type ToastMsg struct {
	Text  string
	Error bool
}

// ThemeMsg applies a theme.mode setting, e.g. after the config file changed.
type ThemeMsg struct{ Mode string }

type catalogLoadedMsg struct {
	catalog catalog.Catalog
	err     error
}

type buttonsBuiltMsg struct{ buttons []Button }

type preloadedMsg struct{}

type toastExpiredMsg struct{ seq int }

type state int

const (
	stateLoading state = iota
	stateReady
	stateEmpty
	stateFailed
)

type toast struct {
	text  string
	error bool
	seq   int
}

// Model is the soundboard view.
type Model struct {
	cfg     Config
	keys    keyMap
	help    help.Model
	zones   string // bubblezone id prefix
	empty   nosounds.Model
	state   state
	buttons []Button
	focus   int
	playing map[playback.Handle]bool
	toast   toast
	width   int
	height  int
}

// New creates a board in the loading state.
func New(cfg Config) Model {
	if cfg.Columns < 1 {
		cfg.Columns = defaultColumn
	}
	if cfg.ToastDuration <= 0 {
		cfg.ToastDuration = defaultToast
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Resolve == nil {
		cfg.Resolve = func(ref string) (string, error) { return ref, nil }
	}
	zone.NewGlobal()
	return Model{
		cfg:     cfg,
		keys:    defaultKeyMap(),
		help:    help.New(),
		zones:   zone.NewPrefix(),
		empty:   nosounds.New(cfg.CatalogURL),
		playing: make(map[playback.Handle]bool),
	}
}

// Init starts loading the catalog.
func (m Model) Init() tea.Cmd {
	return m.loadCatalog()
}

func (m Model) loadCatalog() tea.Cmd {
	ctx, client, url := m.cfg.Context, m.cfg.Client, m.cfg.CatalogURL
	return func() tea.Msg {
		c, err := catalog.Load(ctx, client, url)
		return catalogLoadedMsg{catalog: c, err: err}
	}
}

func (m Model) buildButtons(sounds []catalog.Sound) tea.Cmd {
	ctx, client, resolve := m.cfg.Context, m.cfg.Client, m.cfg.Resolve
	return func() tea.Msg {
		return buttonsBuiltMsg{buttons: BuildButtons(ctx, client, resolve, sounds)}
	}
}

func (m Model) preload() tea.Cmd {
	sounds := make([]catalog.Sound, len(m.buttons))
	for i, b := range m.buttons {
		sounds[i] = b.Sound
	}
	ctx, player := m.cfg.Context, m.cfg.Player
	return func() tea.Msg {
		<-player.Preload(ctx, sounds)
		return preloadedMsg{}
	}
}

func (m Model) play(b Button) tea.Cmd {
	ctx, player := m.cfg.Context, m.cfg.Player
	return func() tea.Msg {
		player.Play(ctx, b.Sound, b.Handle)
		return nil
	}
}

func (m Model) showToast(t ToastMsg) (Model, tea.Cmd) {
	m.toast = toast{text: t.Text, error: t.Error, seq: m.toast.seq + 1}
	seq := m.toast.seq
	return m, tea.Tick(m.cfg.ToastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{seq: seq}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.SetSize(msg.Width, msg.Height)
		return m, nil

	case catalogLoadedMsg:
		if msg.err != nil {
			log.ErrorErr(log.CatCatalog, "Failed to load catalog", msg.err, "url", m.cfg.CatalogURL)
			m.state = stateFailed
			m.empty = m.empty.SetLoadFailed(true)
			return m.showToast(ToastMsg{Text: LoadFailedMessage, Error: true})
		}
		if msg.catalog.Len() == 0 {
			m.state = stateEmpty
			m.empty = m.empty.SetLoadFailed(false)
			return m, nil
		}
		log.Debug(log.CatUI, "Catalog loaded", "sounds", msg.catalog.Len())
		return m, m.buildButtons(msg.catalog.Sounds)

	case buttonsBuiltMsg:
		m.buttons = msg.buttons
		m.focus = 0
		if len(m.buttons) == 0 {
			m.state = stateEmpty
			return m, nil
		}
		m.state = stateReady
		return m, m.preload()

	case preloadedMsg:
		log.Debug(log.CatUI, "Preload complete")
		return m, nil

	case PlayingMsg:
		m.playing[msg.Handle] = true
		return m, nil

	case StoppedMsg:
		delete(m.playing, msg.Handle)
		return m, nil

	case ToastMsg:
		return m.showToast(msg)

	case ThemeMsg:
		mode, err := styles.Apply(msg.Mode)
		if err != nil {
			log.ErrorErr(log.CatConfig, "Ignoring theme change", err)
			return m, nil
		}
		log.Debug(log.CatUI, "Theme applied", "mode", string(mode))
		return m, nil

	case toastExpiredMsg:
		if msg.seq == m.toast.seq {
			m.toast = toast{seq: m.toast.seq}
		}
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Theme):
		mode := styles.Toggle()
		log.Debug(log.CatUI, "Theme toggled", "mode", string(mode))
		return m, nil
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		if m.state != stateFailed {
			return m, nil
		}
		m.state = stateLoading
		m.toast = toast{seq: m.toast.seq}
		return m, m.loadCatalog()
	}

	if m.state != stateReady {
		return m, nil
	}
	cols := m.columns()
	switch {
	case key.Matches(msg, m.keys.Left):
		m.focus = max(m.focus-1, 0)
	case key.Matches(msg, m.keys.Right):
		m.focus = min(m.focus+1, len(m.buttons)-1)
	case key.Matches(msg, m.keys.Up):
		if m.focus-cols >= 0 {
			m.focus -= cols
		}
	case key.Matches(msg, m.keys.Down):
		if m.focus+cols < len(m.buttons) {
			m.focus += cols
		}
	case key.Matches(msg, m.keys.Play):
		return m, m.play(m.buttons[m.focus])
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (Model, tea.Cmd) {
	if m.state != stateReady || msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}
	for i, b := range m.buttons {
		if zone.Get(m.zoneID(i)).InBounds(msg) {
			m.focus = i
			return m, m.play(b)
		}
	}
	return m, nil
}

func (m Model) zoneID(i int) string {
	return m.zones + "button-" + strconv.Itoa(i)
}

// SetSize updates the view dimensions.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	m.empty = m.empty.SetSize(width, max(height-2, 0))
	m.help.Width = width
	return m
}

// Buttons returns the rendered buttons in catalog order.
func (m Model) Buttons() []Button { return m.buttons }

// Playing reports whether the trigger h is marked playing.
func (m Model) Playing(h playback.Handle) bool { return m.playing[h] }

// Toast returns the visible toast text, if any.
func (m Model) Toast() (string, bool) { return m.toast.text, m.toast.text != "" }

// columns is the number of buttons per row that fit the width.
func (m Model) columns() int {
	inner := max(m.width-2, minCellWidth)
	cols := min(m.cfg.Columns, inner/minCellWidth)
	return max(min(cols, len(m.buttons)), 1)
}

// View renders the board.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var body string
	switch m.state {
	case stateLoading:
		body = lipgloss.NewStyle().
			Width(m.width).
			Height(max(m.height-2, 1)).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(styles.TextDescriptionColor).
			Render(LoadingMessage)
	case stateEmpty, stateFailed:
		body = m.empty.View()
	case stateReady:
		body = m.renderGrid()
	}

	parts := []string{body}
	if t := m.renderToast(); t != "" {
		parts = append(parts, t)
	}
	if m.cfg.ShowHelp && m.state == stateReady {
		parts = append(parts, m.help.View(m.keys))
	}
	return zone.Scan(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderGrid() string {
	cols := m.columns()
	inner := max(m.width-2, minCellWidth)
	cell := max(inner/cols, minCellWidth)

	var rows []string
	for start := 0; start < len(m.buttons); start += cols {
		end := min(start+cols, len(m.buttons))
		row := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			row = append(row, zone.Mark(m.zoneID(i), m.renderButton(i, cell)))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	grid := lipgloss.JoinVertical(lipgloss.Left, rows...)

	right := ""
	for _, b := range m.buttons {
		if m.playing[b.Handle] {
			right = "▶ " + b.Sound.Name
			break
		}
	}
	height := len(rows)*buttonHeight + 2
	return styles.RenderWithTitleBorder(grid, title, right, m.width, height, true, styles.TextPrimaryColor)
}

func (m Model) renderButton(i, width int) string {
	b := m.buttons[i]
	playing := m.playing[b.Handle]

	borderColor := lipgloss.TerminalColor(styles.BorderDefaultColor)
	switch {
	case playing:
		borderColor = styles.PlayingColor
	case i == m.focus:
		borderColor = styles.BorderFocusColor
	}

	glyph := b.Glyph
	if playing {
		glyph = "▶"
	}
	labelWidth := max(width-4-runewidth.StringWidth(glyph)-1, 1)
	label := glyph + " " + runewidth.Truncate(b.Sound.Name, labelWidth, "…")

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Foreground(styles.TextPrimaryColor).
		Width(width - 2).
		Padding(0, 1)
	if playing {
		style = style.Bold(true).Foreground(styles.PlayingColor)
	}
	return style.Render(label)
}

func (m Model) renderToast() string {
	if m.toast.text == "" {
		return ""
	}
	color := styles.ToastInfoColor
	if m.toast.error {
		color = styles.ToastErrorColor
	}
	width := max(m.width-4, 10)
	return lipgloss.NewStyle().
		Foreground(color).
		Padding(0, 1).
		Render(wordwrap.String(m.toast.text, width))
}

// teaModel adapts Model to tea.Model.
type teaModel struct{ Model }

func (t teaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := t.Model.Update(msg)
	return teaModel{m}, cmd
}

// TeaModel returns m in the form tea.NewProgram expects.
func (m Model) TeaModel() tea.Model { return teaModel{m} }
