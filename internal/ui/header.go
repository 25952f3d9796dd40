package ui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header is the banner printed before a command runs: a title, the command
// path, and the parameters the command will use.
type Header struct {
	Title   string            // e.g., "Gateway discovery" (rendered upper-case)
	Command string            // e.g., "lettin scan"
	Params  map[string]string // e.g., {"Broadcast": "255.255.255.255:7000", "Window": "2s"}
	Width   int
}

// HeaderConfig is a convenience type for creating headers
type HeaderConfig struct {
	Title   string
	Command string
	Params  map[string]string
}

// NewHeader creates a header sized to the terminal
func NewHeader(title, command string, params map[string]string) *Header {
	return &Header{Title: title, Command: command, Params: params, Width: GetTerminalWidth()}
}

// RenderCommandHeader renders a header directly
func RenderCommandHeader(config HeaderConfig) string {
	return NewHeader(config.Title, config.Command, config.Params).Render()
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the bordered header. Parameter keys are sorted and
// padded so the values line up.
func (h *Header) Render() string {
	width := max(h.Width, MinTerminalWidth)

	sections := []string{
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command),
	}

	if len(h.Params) > 0 {
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", max(width-6, 10)))
		sections = append(sections, divider)

		keys := sortedKeys(h.Params)
		keyWidth := 0
		for _, k := range keys {
			keyWidth = max(keyWidth, lipgloss.Width(k)+1)
		}
		for _, k := range keys {
			label := k + ":" + strings.Repeat(" ", keyWidth-lipgloss.Width(k)-1)
			sections = append(sections, HeaderParamKeyStyle.Render(label)+" "+HeaderParamValueStyle.Render(h.Params[k]))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

// sortedKeys returns map keys in a stable order for rendering
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
