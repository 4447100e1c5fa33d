package tui

import (
	"errors"

	"auditor-cli/internal/analyze"
	"auditor-cli/internal/transcript"

	tea "github.com/charmbracelet/bubbletea"
)

// Result 返回 TUI 运行后的必要信息。
type Result struct {
	Lines      []transcript.Line
	LastStatus analyze.Status
	Questions  []string
}

// Run 封装 Bubble Tea 入口，返回最终的 UI 结果。
func Run(opts Options) (Result, error) {
	programOptions := []tea.ProgramOption{}
	if !opts.CopyableOutput {
		programOptions = append(programOptions, tea.WithAltScreen(), tea.WithMouseCellMotion())
	}
	program := tea.NewProgram(New(opts), programOptions...)
	m, err := program.Run()
	if err != nil {
		return Result{}, err
	}
	tuiModel, ok := m.(*Model)
	if !ok {
		return Result{}, errors.New("unexpected tui model")
	}
	res := Result{
		Lines:     tuiModel.Lines(),
		Questions: tuiModel.Questions(),
	}
	if opts.Backend != nil {
		res.LastStatus = opts.Backend.Status()
	}
	return res, nil
}
