// Package ui prints human-facing terminal output: banners, status lines and
// the end-of-crawl summary. Structured logs go through pkg/logger instead.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonRed     = lipgloss.Color("#FF3131")
	dimWhite    = lipgloss.Color("#B0B0B0")

	titleStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(neonCyan)

	valueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	successStyle = lipgloss.NewStyle().Foreground(neonGreen)
	warningStyle = lipgloss.NewStyle().Foreground(neonYellow)
	errorStyle   = lipgloss.NewStyle().Foreground(neonRed).Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Padding(0, 2)
)

var (
	mu    sync.Mutex
	out   io.Writer = os.Stdout
	quiet bool
)

// SetOutput redirects terminal output
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetQuiet suppresses everything but errors
func SetQuiet(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

func IsQuietMode() bool {
	mu.Lock()
	defer mu.Unlock()
	return quiet
}

func write(always bool, s string) {
	mu.Lock()
	defer mu.Unlock()
	if quiet && !always {
		return
	}
	fmt.Fprintln(out, s)
}

// PrintBanner prints the application name and version
func PrintBanner(name, version string) {
	write(false, titleStyle.Render(name)+" "+dimStyle.Render(version))
}

// PrintError prints an error message
func PrintError(msg string, err error) {
	if err != nil {
		msg += ": " + err.Error()
	}
	write(true, errorStyle.Render(msg))
}

func PrintSuccess(msg string) {
	write(false, successStyle.Render(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label, value string) {
	write(false, labelStyle.Render(label+":")+" "+valueStyle.Render(value))
}

func PrintWarning(msg string) {
	write(false, warningStyle.Render(msg))
}
