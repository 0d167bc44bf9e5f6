package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"tapgen/internal/ast"
	"tapgen/internal/config"
	"tapgen/internal/driver"
	"tapgen/internal/ui"
)

type translateOutcome struct {
	result *driver.Result
	err    error
}

func runTranslateWithUI(ctx context.Context, title string, units []string, prog *ast.Program, opts config.Options, dopts []driver.Option) (*driver.Result, error) {
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan translateOutcome, 1)

	go func() {
		all := append(dopts[:len(dopts):len(dopts)], driver.WithProgress(driver.ChannelSink{Ch: events}))
		res, err := driver.Translate(ctx, prog, opts, all...)
		outcomeCh <- translateOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, units, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
