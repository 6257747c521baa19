// Package tui provides interactive BubbleTea components for conflict
// resolution.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run drives a BubbleTea model to completion and returns its final state.
func Run(model tea.Model) (tea.Model, error) {
	p := tea.NewProgram(model)
	return p.Run()
}
