package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	Up           key.Binding
	Down         key.Binding
	NextPane     key.Binding
	Enter        key.Binding
	Back         key.Binding
	Kind         key.Binding
	Add          key.Binding
	Remove       key.Binding
	Edit         key.Binding
	Apply        key.Binding
	Comment      key.Binding
	Private      key.Binding
	Submit       key.Binding
	Reload       key.Binding
	Reset        key.Binding
	VoteUp       key.Binding
	VoteDown     key.Binding
	VoteStrength key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:           key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:         key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		NextPane:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next panel")),
		Enter:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit / accept")),
		Back:         key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "discard / dismiss")),
		Kind:         key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "factor type")),
		Add:          key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add draft / apply")),
		Remove:       key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove / reject")),
		Edit:         key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit suggestion")),
		Apply:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply edits")),
		Comment:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "comment text")),
		Private:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "private")),
		Submit:       key.NewBinding(key.WithKeys("s", "ctrl+s"), key.WithHelp("s", "submit")),
		Reload:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload suggestions")),
		Reset:        key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "clear drafts")),
		VoteUp:       key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "agree")),
		VoteDown:     key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "disagree")),
		VoteStrength: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "rate strength")),
		Help:         key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:         key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPane, k.Kind, k.Enter, k.Submit, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextPane, k.Kind},
		{k.Enter, k.Add, k.Remove, k.Comment, k.Private},
		{k.Edit, k.Back, k.Reload, k.Reset},
		{k.VoteUp, k.VoteDown, k.VoteStrength, k.Submit, k.Quit},
	}
}

func matches(msg tea.KeyMsg, b key.Binding) bool {
	return key.Matches(msg, b)
}
