// Package tui is the interactive board. Every key press goes through the
// controller's two-phase API: the change is shown at once and the save runs
// as a Bubble Tea command whose result settles the mutation.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/idilsaglam/board/internal/board"
	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/ui"
)

type mode int

const (
	browsing mode = iota
	addingItem
	editingItem
	renamingSection
)

// row is one line of the board: a section header (item < 0) or an item.
type row struct {
	section, item int
}

func (r row) isHeader() bool { return r.item < 0 }

type (
	loadedMsg struct{ err error }
	savedMsg  struct {
		p   *board.Pending
		err error
	}
	// AdoptedMsg reports that the controller adopted a pushed document.
	AdoptedMsg struct{}
)

type Options struct {
	Title string
	// NotifyFailures shows rolled back changes on the status line. Failures
	// are always logged by the controller.
	NotifyFailures bool
	Styles         ui.Styles
}

type Model struct {
	ctx    context.Context
	ctl    *board.Controller
	opts   Options
	keys   keyMap
	help   help.Model
	styles ui.Styles

	doc    model.Document
	rows   []row
	cursor int

	mode   mode
	input  textinput.Model
	target row

	status    string
	statusErr bool
	loading   bool
	quitting  bool

	width, height int
}

func New(ctx context.Context, ctl *board.Controller, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "Board"
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 500

	m := Model{
		ctx:     ctx,
		ctl:     ctl,
		opts:    opts,
		keys:    defaultKeys(),
		help:    help.New(),
		styles:  opts.Styles,
		input:   ti,
		loading: true,
		width:   80,
		height:  24,
	}
	m.help.Styles.ShortKey = m.styles.Help
	m.help.Styles.ShortDesc = m.styles.Help
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg { return loadedMsg{err: ctl.Load(ctx)} }
}

// refresh rebuilds the rows from the controller's visible document.
func (m *Model) refresh() {
	m.doc = m.ctl.Document()
	m.rows = nil
	for si, s := range m.doc.Sections {
		m.rows = append(m.rows, row{section: si, item: -1})
		for ii := range s.Items {
			m.rows = append(m.rows, row{section: si, item: ii})
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) current() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

func (m *Model) moveTo(r row) {
	for i, x := range m.rows {
		if x == r {
			m.cursor = i
			return
		}
	}
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.status, m.statusErr = msg, isErr
}

// apply shows op and returns the command that saves it.
func (m *Model) apply(op board.Op) tea.Cmd {
	p, err := m.ctl.Apply(op)
	if err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	m.refresh()
	return m.persist(p)
}

func (m *Model) persist(p *board.Pending) tea.Cmd {
	if p == nil || p.Queued() {
		return nil
	}
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg { return savedMsg{p: p, err: ctl.Persist(ctx, p)} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case loadedMsg:
		m.loading = false
		m.refresh()
		if msg.err != nil {
			m.setStatus("load failed: "+msg.err.Error(), true)
		} else {
			m.setStatus("", false)
		}
		return m, nil

	case savedMsg:
		ready := m.ctl.Settle(msg.p, msg.err)
		m.refresh()
		if msg.err != nil && m.opts.NotifyFailures {
			m.setStatus(fmt.Sprintf("%s failed, change undone: %v", msg.p.Op().Name(), msg.err), true)
		}
		cmds := make([]tea.Cmd, 0, len(ready)+1)
		for _, p := range ready {
			cmds = append(cmds, m.persist(p))
		}
		if m.quitting && m.ctl.State() == board.Idle {
			cmds = append(cmds, tea.Quit)
		}
		return m, tea.Batch(cmds...)

	case AdoptedMsg:
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.mode != browsing {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.setStatus("", false)
	r, ok := m.current()

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.ctl.State() == board.Applied {
			m.quitting = true
			m.setStatus("saving…", false)
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Reload):
		if m.ctl.State() != board.Idle {
			m.setStatus("wait for pending saves before reloading", true)
			return m, nil
		}
		m.loading = true
		return m, m.Init()

	case key.Matches(msg, m.keys.Toggle):
		if ok && !r.isHeader() {
			return m, m.apply(board.ToggleItem{Section: r.section, Item: r.item})
		}

	case key.Matches(msg, m.keys.AddItem):
		if !ok {
			m.setStatus("add a section first (A)", true)
			return m, nil
		}
		m.target = row{section: r.section, item: -1}
		return m, m.startInput(addingItem, "", "New item…")

	case key.Matches(msg, m.keys.AddSection):
		n := len(m.doc.Sections)
		cmd := m.apply(m.ctl.NewSection())
		m.moveTo(row{section: n, item: -1})
		return m, cmd

	case key.Matches(msg, m.keys.Edit):
		if !ok {
			return m, nil
		}
		if r.isHeader() {
			m.target = r
			return m, m.startInput(renamingSection, m.doc.Sections[r.section].Title, "Section title…")
		}
		if err := m.ctl.BeginEdit(r.section, r.item); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.target = r
		return m, m.startInput(editingItem, m.doc.Sections[r.section].Items[r.item].Text, "Item text…")

	case key.Matches(msg, m.keys.Rename):
		if !ok {
			return m, nil
		}
		m.target = row{section: r.section, item: -1}
		return m, m.startInput(renamingSection, m.doc.Sections[r.section].Title, "Section title…")

	case key.Matches(msg, m.keys.DeleteItem):
		if ok && !r.isHeader() {
			return m, m.apply(board.DeleteItem{Section: r.section, Item: r.item})
		}

	case key.Matches(msg, m.keys.DeleteSection):
		if ok {
			return m, m.apply(board.DeleteSection{Index: r.section})
		}
	}
	return m, nil
}

func (m *Model) startInput(md mode, value, placeholder string) tea.Cmd {
	m.mode = md
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Placeholder = placeholder
	return m.input.Focus()
}

func (m *Model) stopInput() {
	m.mode = browsing
	m.input.SetValue("")
	m.input.Blur()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	confirm := key.Matches(msg, m.keys.Confirm)
	cancel := key.Matches(msg, m.keys.Cancel)

	switch m.mode {
	case editingItem:
		// Leaving the field either way ends the session and saves.
		if confirm || cancel {
			m.stopInput()
			if _, _, ok := m.ctl.Editing(); !ok {
				m.ctl.EndEdit()
				m.setStatus("the item was removed while you were editing it", true)
				return m, nil
			}
			return m, m.apply(m.ctl.EndEdit())
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		err := m.ctl.EditItemText(m.target.section, m.target.item, m.input.Value())
		if errors.Is(err, board.ErrEditClosed) {
			m.stopInput()
			m.ctl.EndEdit()
			m.refresh()
			m.setStatus("the item was removed while you were editing it", true)
			return m, nil
		}
		if err != nil {
			m.setStatus(err.Error(), true)
		}
		m.refresh()
		if s, i, ok := m.ctl.Editing(); ok {
			m.moveTo(row{section: s, item: i})
		}
		return m, cmd

	case addingItem:
		if cancel {
			m.stopInput()
			return m, nil
		}
		if confirm {
			text := m.input.Value()
			m.stopInput()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			cmd := m.apply(board.AddItem{Section: m.target.section, Text: text})
			if s := m.target.section; s < len(m.doc.Sections) {
				m.moveTo(row{section: s, item: len(m.doc.Sections[s].Items) - 1})
			}
			return m, cmd
		}

	case renamingSection:
		if cancel {
			m.stopInput()
			return m, nil
		}
		if confirm {
			title := m.input.Value()
			m.stopInput()
			return m, m.apply(board.RenameSection{Index: m.target.section, Title: title})
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}
