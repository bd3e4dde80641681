// Package ui prints colored progress output for the CLI.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	stepColor    = color.New(color.FgBlue)
)

// Header prints a section title with an underline.
func Header(text string) {
	headerColor.Fprintln(os.Stderr, text)
	headerColor.Fprintln(os.Stderr, strings.Repeat("=", len(text)))
}

// Step prints a numbered progress step.
func Step(current, total int, text string) {
	stepColor.Fprintf(os.Stderr, "[%d/%d] %s\n", current, total, text)
}

// Success prints a green confirmation line.
func Success(text string) {
	successColor.Fprintf(os.Stderr, "✓ %s\n", text)
}

// Info prints a neutral information line.
func Info(text string) {
	fmt.Fprintf(os.Stderr, "  %s\n", text)
}

// Warning prints a yellow warning line.
func Warning(text string) {
	warningColor.Fprintf(os.Stderr, "⚠ %s\n", text)
}

// Error prints a red error line.
func Error(text string) {
	errorColor.Fprintf(os.Stderr, "✗ %s\n", text)
}
