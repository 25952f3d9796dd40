// Package ui provides terminal output components for the lettin CLI.
//
// These components follow a "run once and exit" pattern: they render a
// discovery result and return, without user interaction. The interactive
// screen lives in package tui.
//
//   - Header: command banner showing operation name and parameters
//   - Result: success/failure/warning boxes
//   - Table: column-aligned gateway listing
//
// Output is plain when stdout is not a terminal; lipgloss drops colour
// automatically in that case.
package ui
