package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lettin/lettin/internal/discovery"
)

// Scanner runs one discovery cycle; *discovery.Session satisfies it
type Scanner interface {
	Discover(ctx context.Context) []*discovery.Gateway
	Config() discovery.Config
}

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	gateways []*discovery.Gateway
	finished time.Time
}
type autoScanMsg struct{}

// watchKeyMap defines key bindings for the results screen
type watchKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Filter key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Filter, k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Filter},
		{k.Rescan, k.Quit},
	}
}

// scanningKeyMap defines key bindings while a cycle is running
type scanningKeyMap struct {
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (s scanningKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{s.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (s scanningKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{s.Quit}}
}

// gatewayItem wraps a Gateway for use with bubbles/list
type gatewayItem struct {
	gateway  *discovery.Gateway
	nickname string
}

// FilterValue matches on name, nickname, MAC, and address
func (g gatewayItem) FilterValue() string {
	return strings.Join([]string{g.gateway.Name, g.nickname, g.gateway.MAC, g.gateway.Addr}, " ")
}

// Title returns the display name for list display
func (g gatewayItem) Title() string {
	name := g.gateway.Name
	if name == "" {
		name = "(unnamed)"
	}
	if g.nickname != "" && g.nickname != g.gateway.Name {
		return fmt.Sprintf("%s (%s)", g.nickname, name)
	}
	return name
}

// Description returns gateway details for list display
func (g gatewayItem) Description() string {
	return fmt.Sprintf("%s • %s", g.gateway.MAC, g.gateway.Addr)
}

// gatewayDelegate renders gateway cards
type gatewayDelegate struct {
	width int
}

func (d gatewayDelegate) Height() int { return 6 }

func (d gatewayDelegate) Spacing() int { return 0 }

func (d gatewayDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d gatewayDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	gi, ok := item.(gatewayItem)
	if !ok {
		return
	}
	selected := index == m.Index()

	var content strings.Builder
	if selected {
		content.WriteString(SelectedItemStyle.Render("→ " + gi.Title()))
	} else {
		content.WriteString("  " + gi.Title())
	}
	content.WriteString("\n")
	content.WriteString(LabelStyle.Render("  MAC:     ") + gi.gateway.MAC + "\n")
	content.WriteString(LabelStyle.Render("  Address: ") + gi.gateway.Addr + "\n")
	content.WriteString(LabelStyle.Render("  Seen:    ") + gi.gateway.DiscoveredAt.Local().Format("15:04:05"))

	// Leave room for the container border, card border and margin
	cardWidth := min(max(d.width, MinTerminalWidth), MaxContentWidth) - 10

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2).
		MarginLeft(2).
		Width(cardWidth)
	if selected {
		cardStyle = cardStyle.BorderForeground(HighlightColor)
	}

	fmt.Fprint(w, cardStyle.Render(content.String()))
}

// WatchOptions configures the watch screen
type WatchOptions struct {
	// Interval re-runs discovery after each result; zero disables auto-rescan
	Interval time.Duration

	// Nicknames maps lowercase MAC to a user label
	Nicknames map[string]string
}

// WatchModel is the live discovery screen
type WatchModel struct {
	scanner   Scanner
	window    time.Duration
	interval  time.Duration
	nicknames map[string]string

	// Discovery state
	Scanning  bool
	ScanStart time.Time
	LastScan  time.Time
	Scans     int
	Gateways  []*discovery.Gateway
	List      list.Model

	// UI state
	Width        int
	Height       int
	Spinner      spinner.Model
	ProgressBar  progress.Model
	Help         help.Model
	Keys         watchKeyMap
	ScanningKeys scanningKeyMap
}

// NewWatchModel creates the watch screen bound to a scanner
func NewWatchModel(scanner Scanner, opts WatchOptions) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	progressBar := progress.New(progress.WithDefaultGradient())
	progressBar.Width = 40

	gatewayList := list.New([]list.Item{}, gatewayDelegate{width: MinTerminalWidth}, 0, 0)
	gatewayList.Title = "Gateways"
	gatewayList.SetShowStatusBar(false)
	gatewayList.SetShowHelp(false)
	gatewayList.SetFilteringEnabled(true)
	gatewayList.Styles.Title = TitleStyle

	keys := watchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}

	return WatchModel{
		scanner:     scanner,
		window:      scanner.Config().Window,
		interval:    opts.Interval,
		nicknames:   opts.Nicknames,
		List:        gatewayList,
		Spinner:     s,
		ProgressBar: progressBar,
		Help:        help.New(),
		Keys:        keys,
		ScanningKeys: scanningKeyMap{
			Quit: keys.Quit,
		},
	}
}

// Init starts the first scan immediately
func (m WatchModel) Init() tea.Cmd {
	return func() tea.Msg { return scanStartMsg{} }
}

// Update handles messages and updates the model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.List.SetDelegate(gatewayDelegate{width: msg.Width})
		m.List.SetWidth(msg.Width - 4)
		m.List.SetHeight(msg.Height - 8)
		return m, nil

	case scanStartMsg, autoScanMsg:
		if m.Scanning {
			return m, nil
		}
		return m.startScan()

	case scanCompleteMsg:
		m.Scanning = false
		m.LastScan = msg.finished
		m.Scans++
		m.Gateways = msg.gateways
		items := make([]list.Item, len(msg.gateways))
		for i, g := range msg.gateways {
			items[i] = gatewayItem{gateway: g, nickname: m.nicknames[strings.ToLower(g.MAC)]}
		}
		cmd = m.List.SetItems(items)
		if m.interval > 0 {
			return m, tea.Batch(cmd, tea.Tick(m.interval, func(time.Time) tea.Msg { return autoScanMsg{} }))
		}
		return m, cmd

	case spinner.TickMsg:
		if !m.Scanning {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.Scanning {
		m.List, cmd = m.List.Update(msg)
	}
	return m, cmd
}

// updateKeys handles keyboard input
func (m WatchModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Typed characters belong to the filter while it is open
	if m.List.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.List, cmd = m.List.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.Keys.Rescan):
		if m.Scanning {
			return m, nil
		}
		return m.startScan()
	}

	if m.Scanning {
		return m, nil
	}
	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

// startScan marks a cycle as running and launches it
func (m WatchModel) startScan() (WatchModel, tea.Cmd) {
	m.Scanning = true
	m.ScanStart = time.Now()
	return m, tea.Batch(m.scan(), m.Spinner.Tick)
}

// scan runs one discovery cycle off the update loop
func (m WatchModel) scan() tea.Cmd {
	scanner := m.scanner
	return func() tea.Msg {
		gateways := scanner.Discover(context.Background())
		return scanCompleteMsg{gateways: gateways, finished: time.Now()}
	}
}

// View renders the watch screen
func (m WatchModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content, helpText string
	if m.Scanning {
		content = m.renderScanning(width)
		helpText = m.Help.View(m.ScanningKeys)
	} else {
		content = m.renderResults()
		helpText = m.Help.View(m.Keys)
	}

	return RenderApplicationContainer(content, helpText, m.Width, m.Height)
}

// progress reports how much of the collection window has elapsed
func (m WatchModel) progress() float64 {
	if m.window <= 0 {
		return 0
	}
	p := float64(time.Since(m.ScanStart)) / float64(m.window)
	if p > 1 {
		return 1
	}
	return p
}

func (m WatchModel) renderScanning(width int) string {
	title := fmt.Sprintf("%s SEARCHING FOR GATEWAYS", m.Spinner.View())
	subtitle := fmt.Sprintf("Broadcasting to %s:%d, listening for %s",
		m.scanner.Config().BroadcastAddr, m.scanner.Config().RemotePort, m.window)

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(title),
		RenderSubtitle(subtitle),
		"",
		m.ProgressBar.ViewAs(m.progress()),
		"",
	)
	return lipgloss.Place(width, 0, lipgloss.Center, lipgloss.Top, content)
}

func (m WatchModel) renderResults() string {
	var b strings.Builder
	b.WriteString("\n")

	if len(m.Gateways) == 0 {
		b.WriteString("  ")
		b.WriteString(WarningStyle.Render("⚠ No gateways answered"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		b.WriteString("    • Ensure the gateway is powered on\n")
		b.WriteString("    • Check you are on the same subnet as the gateway\n")
		b.WriteString("    • Make sure local UDP port 6000 is free\n")
		b.WriteString("    • Press 'r' to rescan\n")
	} else {
		b.WriteString(m.List.View())
	}

	b.WriteString("\n")
	b.WriteString(StatusStyle.Render(m.status()))
	return b.String()
}

// status summarises the last cycle
func (m WatchModel) status() string {
	parts := []string{fmt.Sprintf("%d found", len(m.Gateways))}
	if !m.LastScan.IsZero() {
		parts = append(parts, "last scan "+m.LastScan.Local().Format("15:04:05"))
	}
	parts = append(parts, fmt.Sprintf("scan #%d", m.Scans))
	if m.interval > 0 {
		parts = append(parts, "auto-rescan every "+m.interval.String())
	}
	return strings.Join(parts, " · ")
}

// Run starts the watch screen on the alternate screen and blocks until quit
func Run(scanner Scanner, opts WatchOptions) error {
	p := tea.NewProgram(NewWatchModel(scanner, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
