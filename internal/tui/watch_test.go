package tui

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lettin/lettin/internal/discovery"
)

type fakeScanner struct {
	gateways []*discovery.Gateway
	calls    atomic.Int32
}

func (f *fakeScanner) Discover(ctx context.Context) []*discovery.Gateway {
	f.calls.Add(1)
	return f.gateways
}

func (f *fakeScanner) Config() discovery.Config {
	return discovery.DefaultConfig()
}

func testGateways() []*discovery.Gateway {
	now := time.Now()
	return []*discovery.Gateway{
		{Name: "Hall", MAC: "0102030405060708", Addr: "192.168.1.20:7000", DiscoveredAt: now},
		{Name: "Garage", MAC: "a1b2c3d4e5f60708", Addr: "192.168.1.21:7000", DiscoveredAt: now},
	}
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (WatchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(WatchModel)
	require.True(t, ok, "Update returned %T", next)
	return wm, cmd
}

func TestWatchInitStartsScan(t *testing.T) {
	scanner := &fakeScanner{gateways: testGateways()}
	m := NewWatchModel(scanner, WatchOptions{})

	cmd := m.Init()
	require.NotNil(t, cmd)
	_, ok := cmd().(scanStartMsg)
	require.True(t, ok)

	m, cmd = update(t, m, scanStartMsg{})
	assert.True(t, m.Scanning)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "SEARCHING FOR GATEWAYS")
}

func TestWatchScanRunsDiscover(t *testing.T) {
	scanner := &fakeScanner{gateways: testGateways()}
	m := NewWatchModel(scanner, WatchOptions{})

	msg, ok := m.scan()().(scanCompleteMsg)
	require.True(t, ok)
	assert.Len(t, msg.gateways, 2)
	assert.Equal(t, int32(1), scanner.calls.Load())
}

func TestWatchShowsResults(t *testing.T) {
	scanner := &fakeScanner{}
	m := NewWatchModel(scanner, WatchOptions{Nicknames: map[string]string{"0102030405060708": "Front"}})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, scanStartMsg{})
	m, _ = update(t, m, scanCompleteMsg{gateways: testGateways(), finished: time.Now()})

	assert.False(t, m.Scanning)
	assert.Equal(t, 1, m.Scans)
	assert.Len(t, m.List.Items(), 2)

	view := m.View()
	assert.Contains(t, view, "Front (Hall)")
	assert.Contains(t, view, "a1b2c3d4e5f60708")
	assert.Contains(t, view, "2 found")
}

func TestWatchEmptyResult(t *testing.T) {
	m := NewWatchModel(&fakeScanner{}, WatchOptions{})
	m, _ = update(t, m, scanCompleteMsg{finished: time.Now()})

	assert.Contains(t, m.View(), "No gateways answered")
}

func TestWatchRescanKey(t *testing.T) {
	m := NewWatchModel(&fakeScanner{}, WatchOptions{})
	m, _ = update(t, m, scanCompleteMsg{finished: time.Now()})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.True(t, m.Scanning)
	assert.NotNil(t, cmd)

	// A second press while scanning is ignored
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Nil(t, cmd)
}

func TestWatchQuitKey(t *testing.T) {
	m := NewWatchModel(&fakeScanner{}, WatchOptions{})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestWatchAutoRescan(t *testing.T) {
	m := NewWatchModel(&fakeScanner{}, WatchOptions{Interval: 30 * time.Second})
	m, cmd := update(t, m, scanCompleteMsg{finished: time.Now()})
	assert.NotNil(t, cmd)
	assert.True(t, strings.Contains(m.status(), "auto-rescan every 30s"))

	m, _ = update(t, m, autoScanMsg{})
	assert.True(t, m.Scanning)
}

func TestWatchProgress(t *testing.T) {
	m := NewWatchModel(&fakeScanner{}, WatchOptions{})
	m.ScanStart = time.Now().Add(-time.Hour)
	assert.Equal(t, 1.0, m.progress())

	m.window = 0
	assert.Equal(t, 0.0, m.progress())
}

func TestGatewayItem(t *testing.T) {
	item := gatewayItem{gateway: &discovery.Gateway{MAC: "0102030405060708", Addr: "10.0.0.2:7000"}}
	assert.Equal(t, "(unnamed)", item.Title())
	assert.Contains(t, item.FilterValue(), "10.0.0.2:7000")
	assert.Equal(t, "0102030405060708 • 10.0.0.2:7000", item.Description())
}
