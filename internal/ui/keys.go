package ui

import tea "github.com/charmbracelet/bubbletea"

func isQuit(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "esc", "ctrl+c":
		return true
	}
	return false
}

func isSave(msg tea.KeyMsg) bool {
	return msg.String() == "ctrl+s"
}

func helpText(canSave bool) string {
	s := "q/a w/s e/d low ±1  Q/A W/S E/D high ±1  r reset"
	if canSave {
		s += "  ctrl+s save"
	}
	s += "  esc quit"
	return s
}
