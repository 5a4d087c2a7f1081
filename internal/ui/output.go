// Package ui prints human-facing CLI progress. Everything goes to stderr so
// JSON reports on stdout stay machine readable.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)

	out io.Writer = color.Error
)

// SetOutput redirects UI output and returns the previous writer
func SetOutput(w io.Writer) io.Writer {
	prev := out
	out = w
	return prev
}

// Header prints a formatted header
func Header(text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(out, "\n%s\n", line)
	green.Fprintf(out, "%-60s\n", center(text, 60))
	green.Fprintf(out, "%s\n\n", line)
}

// Step prints a step indicator
func Step(stepNum, totalSteps int, text string) {
	yellow.Fprintf(out, "[%d/%d] %s\n", stepNum, totalSteps, text)
}

// Success prints a success message
func Success(text string) {
	green.Fprintf(out, "  → %s\n", text)
}

// Info prints an info message
func Info(text string) {
	fmt.Fprintf(out, "  → %s\n", text)
}

// Warning prints a warning message
func Warning(text string) {
	yellow.Fprintf(out, "  ⚠ %s\n", text)
}

// Error prints an error message
func Error(text string) {
	red.Fprintf(out, "Error: %s\n", text)
}

// BlueText prints blue text
func BlueText(text string) {
	blue.Fprintln(out, text)
}

// YellowText prints yellow text
func YellowText(text string) {
	yellow.Fprintln(out, text)
}

// Progress rewrites a single "n/total files" line; call Done when finished
func Progress(n, total int) {
	if total == 0 {
		return
	}
	fmt.Fprintf(out, "\r  Progress: %d/%d files (%.0f%%)...", n, total, float64(n)/float64(total)*100)
}

// Done terminates a Progress line
func Done(total int) {
	fmt.Fprintf(out, "\r  Progress: %d/%d files (100%%) - Complete!\n", total, total)
}

// Row prints an aligned label/value pair
func Row(label string, value string) {
	fmt.Fprintf(out, "  %-28s %s\n", label+":", value)
}

// Money formats a dollar amount with thousands separators, e.g. -$1,234.50
func Money(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	whole, frac := s[:len(s)-3], s[len(s)-3:]
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + frac
}

// center centers text within a given width
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
