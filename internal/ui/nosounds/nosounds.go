// Package nosounds provides the empty state view shown when the catalog has
// no sounds or could not be loaded.
package nosounds

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/creek-soundboard/internal/ui/styles"
)

// EmptyMessage is shown whenever there is nothing to play.
const EmptyMessage = "No sounds configured. Please add sounds to sounds.json"

const speakerArt = `  ▗▄▖
▗▄█  ▌  ▐ ▐
▐██  ▌   ▐ ▐
▝▀█  ▌  ▐ ▐
  ▝▀▘`

// Model holds the empty state view.
type Model struct {
	width      int
	height     int
	catalogURL string
	loadFailed bool
}

// New creates the view. catalogURL is shown as the place to add sounds.
func New(catalogURL string) Model {
	return Model{catalogURL: catalogURL}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the empty state.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	artStyle := lipgloss.NewStyle().Foreground(styles.TextMutedColor)
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.TextPrimaryColor).
		MarginTop(1)
	messageStyle := lipgloss.NewStyle().Foreground(styles.TextDescriptionColor)
	hintStyle := lipgloss.NewStyle().
		Foreground(styles.TextMutedColor).
		Italic(true).
		MarginTop(2)

	var content strings.Builder
	content.WriteString(artStyle.Render(speakerArt))
	content.WriteString("\n\n")
	content.WriteString(titleStyle.Render(EmptyMessage))
	content.WriteString("\n\n")
	if m.catalogURL != "" {
		content.WriteString(messageStyle.Render("Catalog: " + m.catalogURL))
		content.WriteString("\n")
	}
	if m.loadFailed {
		content.WriteString(messageStyle.Render("The catalog could not be loaded. Check the origin in your config."))
		content.WriteString("\n")
		content.WriteString(hintStyle.Render("Press r to reload, q to quit"))
	} else {
		content.WriteString(hintStyle.Render("Press q to quit"))
	}

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content.String())
}

// SetSize updates the view dimensions.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	return m
}

// SetLoadFailed switches the hint to offer a reload.
func (m Model) SetLoadFailed(failed bool) Model {
	m.loadFailed = failed
	return m
}
