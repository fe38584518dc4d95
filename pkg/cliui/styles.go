// Package cliui holds the terminal styles, spinner and markdown renderer
// shared by the relay commands.
package cliui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	StepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	ValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// DisableColor switches the default renderer to plain ASCII output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// SuccessMark renders ✓ with the current color profile.
func SuccessMark() string {
	return successStyle.Render("✓")
}

// FailMark renders ✗ with the current color profile.
func FailMark() string {
	return failStyle.Render("✗")
}

// Mark returns SuccessMark for a nil error and FailMark otherwise.
func Mark(err error) string {
	if err != nil {
		return FailMark()
	}
	return SuccessMark()
}
