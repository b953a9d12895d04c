package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	cornerTopLeft     = "╭"
	cornerTopRight    = "╮"
	cornerBottomLeft  = "╰"
	cornerBottomRight = "╯"
	lineHorizontal    = "─"
	lineVertical      = "│"
)

// RenderWithTitleBorder draws a rounded box of the given outer size around
// content with titles set into the top edge. Either title may be empty.
func RenderWithTitleBorder(content, leftTitle, rightTitle string, width, height int, focused bool, titleColor lipgloss.TerminalColor) string {
	var borderColor lipgloss.TerminalColor = BorderDefaultColor
	if focused {
		borderColor = BorderFocusColor
	}
	border := lipgloss.NewStyle().Foreground(borderColor)
	title := lipgloss.NewStyle().Foreground(titleColor)

	inner := max(width-2, 1)
	rows := max(height-2, 1)

	body := lipgloss.NewStyle().Width(inner).Height(rows).Render(content)
	lines := strings.Split(body, "\n")

	var b strings.Builder
	b.WriteString(topEdge(leftTitle, rightTitle, inner, border, title))
	for i := range rows {
		var line string
		if i < len(lines) {
			line = ansi.Truncate(lines[i], inner, "")
		}
		if pad := inner - lipgloss.Width(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		b.WriteString("\n" + border.Render(lineVertical) + line + border.Render(lineVertical))
	}
	b.WriteString("\n" + border.Render(cornerBottomLeft+strings.Repeat(lineHorizontal, inner)+cornerBottomRight))
	return b.String()
}

// topEdge renders ╭─ Left ───── Right ─╮, dropping the right title and then
// truncating the left one when inner is too narrow.
func topEdge(left, right string, inner int, border, title lipgloss.Style) string {
	plain := border.Render(cornerTopLeft + strings.Repeat(lineHorizontal, inner) + cornerTopRight)
	if left == "" && right == "" {
		return plain
	}

	lw, rw := lipgloss.Width(left), lipgloss.Width(right)
	need := func(lw, rw int) int {
		n := 1 // at least one dash between the titles
		if lw > 0 {
			n += lw + 3
		}
		if rw > 0 {
			n += rw + 3
		}
		return n
	}
	if need(lw, rw) > inner {
		right, rw = "", 0
	}
	if need(lw, rw) > inner && left != "" {
		left = Truncate(left, inner-4)
		lw = lipgloss.Width(left)
	}
	if left == "" && right == "" || need(lw, rw) > inner {
		return plain
	}

	var b strings.Builder
	b.WriteString(border.Render(cornerTopLeft))
	if left != "" {
		b.WriteString(border.Render(lineHorizontal+" ") + title.Render(left) + border.Render(" "))
	}
	dashes := inner - need(lw, rw) + 1
	b.WriteString(border.Render(strings.Repeat(lineHorizontal, dashes)))
	if right != "" {
		b.WriteString(border.Render(" ") + title.Render(right) + border.Render(" "+lineHorizontal))
	}
	b.WriteString(border.Render(cornerTopRight))
	return b.String()
}

// Truncate shortens s to at most width cells, ending in "..." when cut.
func Truncate(s string, width int) string {
	if width < 1 {
		return ""
	}
	if ansi.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return strings.Repeat(".", width)
	}
	return ansi.Truncate(s, width, "...")
}
