package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for terminal output.
var (
	// User message styles.
	userPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue

	// Character reply styles.
	answerPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	answerBlockStyle  = lipgloss.NewStyle().PaddingLeft(1)

	// Headings for selection and summaries.
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")) // magenta

	// General utility styles.
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // gray/dim
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow

	// Error block style.
	errorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("1"))
)
