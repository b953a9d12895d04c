// Package styles contains Lip Gloss style definitions.
package styles

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Adaptive colors. Light is used on light backgrounds, Dark on dark ones.
var (
	TextPrimaryColor     = lipgloss.AdaptiveColor{Light: "#1F2328", Dark: "#E6EDF3"}
	TextDescriptionColor = lipgloss.AdaptiveColor{Light: "#57606A", Dark: "#9DA7B3"}
	TextMutedColor       = lipgloss.AdaptiveColor{Light: "#8C959F", Dark: "#6E7681"}

	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#30363D"}
	BorderFocusColor   = lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#58A6FF"}

	// PlayingColor marks the trigger of the sound currently playing.
	PlayingColor = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}

	ToastErrorColor = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	ToastInfoColor  = lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#58A6FF"}
)

// Mode is a color scheme.
type Mode string

const (
	Light Mode = "light"
	Dark  Mode = "dark"
)

var (
	mu      sync.Mutex
	current = Dark
)

// ParseMode validates a theme.mode setting. Empty means detect.
func ParseMode(s string) (Mode, bool, error) {
	switch s {
	case "":
		return "", false, nil
	case string(Light), string(Dark):
		return Mode(s), true, nil
	default:
		return "", false, fmt.Errorf("theme mode %q: must be light, dark or empty", s)
	}
}

// Apply selects the color scheme. An empty setting follows the terminal
// background as reported by termenv.
func Apply(setting string) (Mode, error) {
	m, forced, err := ParseMode(setting)
	if err != nil {
		return Current(), err
	}
	if !forced {
		m = Light
		if termenv.HasDarkBackground() {
			m = Dark
		}
	}
	set(m)
	return m, nil
}

// Toggle flips between light and dark and returns the new mode.
func Toggle() Mode {
	next := Dark
	if Current() == Dark {
		next = Light
	}
	set(next)
	return next
}

// Current returns the active mode.
func Current() Mode {
	mu.Lock()
	defer mu.Unlock()
	return current
}

func set(m Mode) {
	mu.Lock()
	current = m
	mu.Unlock()
	lipgloss.SetHasDarkBackground(m == Dark)
}
