package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/idilsaglam/board/internal/board"
	"github.com/idilsaglam/board/internal/model"
)

// Watcher follows remote changes. It calls fn for each pushed document and
// fn reports whether the document was adopted.
type Watcher func(ctx context.Context, fn func(model.Document) bool) error

// Run shows the board until the user quits. When watch is set, documents
// pushed by the server replace the visible one while nothing is pending.
func Run(ctx context.Context, ctl *board.Controller, opts Options, watch Watcher, progOpts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progOpts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, progOpts...)
	p := tea.NewProgram(New(ctx, ctl, opts), progOpts...)

	if watch != nil {
		go func() {
			_ = watch(ctx, func(doc model.Document) bool {
				if !ctl.Replace(doc) {
					return false
				}
				p.Send(AdoptedMsg{})
				return true
			})
		}()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
