package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"graphir/internal/pipeline"
	"graphir/internal/ui"
)

// runProgram shows the progress view until events is closed or the user
// quits. Quitting early cancels the pipeline.
func runProgram(title string, files []string, events <-chan pipeline.Event, outcomeCh <-chan lowerOutcome, cancel func()) ([]pipeline.Result, error) {
	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()

	var outcome lowerOutcome
	select {
	case outcome = <-outcomeCh:
	default:
		cancel()
		go func() {
			for range events {
			}
		}()
		outcome = <-outcomeCh
	}
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
