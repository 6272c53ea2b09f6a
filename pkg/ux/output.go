// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides rich terminal output styling for the Kubera CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Kubera color palette - brushed gold over graphite
var (
	ColorGoldBright  = lipgloss.Color("#F2C94C") // Bright gold - highlights
	ColorGoldPrimary = lipgloss.Color("#D4A017") // Primary gold - main brand color
	ColorGraphite    = lipgloss.Color("#3A3F47") // Graphite - muted text, borders
	ColorInk         = lipgloss.Color("#14171C") // Ink - deep backgrounds

	ColorSuccess = lipgloss.Color("#27AE60") // Market green
	ColorWarning = lipgloss.Color("#F2C94C") // Gold for warnings
	ColorError   = lipgloss.Color("#EB5757") // Market red
	ColorMuted   = lipgloss.Color("#3A3F47")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style

	StatusOK      lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorGoldBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorGoldBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorGoldBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorGraphite).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),

	StatusOK:      lipgloss.NewStyle().SetString("✓").Foreground(ColorSuccess),
	StatusWarning: lipgloss.NewStyle().SetString("⚠").Foreground(ColorWarning),
	StatusError:   lipgloss.NewStyle().SetString("✗").Foreground(ColorError),
}

// Title prints a bold gold heading.
func Title(format string, args ...any) {
	fmt.Fprintln(os.Stdout, Styles.Title.Render(fmt.Sprintf(format, args...)))
}

// Info prints a plain informational line.
func Info(format string, args ...any) {
	fmt.Fprintln(os.Stdout, fmt.Sprintf(format, args...))
}

// Success prints a green check line.
func Success(format string, args ...any) {
	fmt.Fprintf(os.Stdout, "%s %s\n", Styles.StatusOK.String(), Styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a gold warning line.
func Warn(format string, args ...any) {
	fmt.Fprintf(os.Stdout, "%s %s\n", Styles.StatusWarning.String(), Styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Error prints a red error line to stderr.
func Error(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", Styles.StatusError.String(), Styles.Error.Render(fmt.Sprintf(format, args...)))
}
