package view

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hexprov/hexprov/internal/index"
	"github.com/hexprov/hexprov/internal/trace"
)

// Run builds the byte-range index for the trace and drives the interactive
// session until the user quits. Loading and indexing happen before the loop
// starts; the loop itself never blocks on anything but input.
func Run(t *trace.Trace, opts Options) error {
	idx, err := index.Build(t)
	if err != nil {
		return fmt.Errorf("build byte-range index: %w", err)
	}

	program := tea.NewProgram(NewModel(t, idx, opts), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run visualizer: %w", err)
	}
	return nil
}
