package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down                  key.Binding
	Toggle                    key.Binding
	AddItem, AddSection       key.Binding
	Edit, Rename              key.Binding
	DeleteItem, DeleteSection key.Binding
	Reload, Help, Quit        key.Binding
	Confirm, Cancel           key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:            key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:          key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:        key.NewBinding(key.WithKeys(" ", "space", "x"), key.WithHelp("space", "toggle")),
		AddItem:       key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add item")),
		AddSection:    key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "add section")),
		Edit:          key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		Rename:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename section")),
		DeleteItem:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete item")),
		DeleteSection: key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete section")),
		Reload:        key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload")),
		Help:          key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Confirm:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "done")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.AddItem, k.AddSection, k.Edit, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.AddItem, k.Edit, k.DeleteItem},
		{k.AddSection, k.Rename, k.DeleteSection},
		{k.Reload, k.Help, k.Quit},
	}
}
