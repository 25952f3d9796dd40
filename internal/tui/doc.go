// Package tui implements the interactive "lettin watch" screen.
//
// The screen runs a discovery cycle on start, shows a progress bar for
// the collection window, then lists every gateway that answered as a
// card. Press r to rescan, / to filter, q to quit. With an interval set
// the screen rescans on its own after each result.
//
// Every screen is wrapped by RenderApplicationContainer, which draws
// the header, the footer with context help, and the outer border.
package tui
