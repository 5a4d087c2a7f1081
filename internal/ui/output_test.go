package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestCenter(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"padded", "Summary", 15, "    Summary"},
		{"exact fit", "Summary", 7, "Summary"},
		{"too long", "Importing Exports", 10, "Importing Exports"},
		{"odd remainder", "ROI", 8, "  ROI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := center(tt.text, tt.width); got != tt.want {
				t.Errorf("center(%q, %d) = %q; want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func capture(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	noColor := color.NoColor
	color.NoColor = true
	defer func() {
		SetOutput(prev)
		color.NoColor = noColor
	}()
	fn()
	return buf.String()
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
		want string
	}{
		{"step", func() { Step(2, 5, "relay.csv") }, "[2/5] relay.csv\n"},
		{"success", func() { Success("Report appended") }, "  → Report appended\n"},
		{"info", func() { Info("Dry run") }, "  → Dry run\n"},
		{"warning", func() { Warning("row 4 skipped") }, "  ⚠ row 4 skipped\n"},
		{"error", func() { Error("no export files found") }, "Error: no export files found\n"},
		{"row", func() { Row("YTD income", "$10.00") }, "  YTD income:" + strings.Repeat(" ", 18) + "$10.00\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := capture(t, tt.fn); got != tt.want {
				t.Errorf("got %q; want %q", got, tt.want)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	got := capture(t, func() { Header("Importing Exports") })
	if !strings.Contains(got, center("Importing Exports", 60)) {
		t.Errorf("header not centered:\n%s", got)
	}
	if strings.Count(got, strings.Repeat("=", 60)) != 2 {
		t.Errorf("header should be framed by two rules:\n%s", got)
	}
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{12.5, "$12.50"},
		{1234.5, "$1,234.50"},
		{489000.79, "$489,000.79"},
		{1000000, "$1,000,000.00"},
		{-250, "-$250.00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Money(tt.in); got != tt.want {
				t.Errorf("Money(%v) = %q; want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	Info("imported 3 files")
	Row("Net profit", Money(1500))
	Progress(1, 2)
	Done(2)

	got := buf.String()
	for _, want := range []string{"imported 3 files", "Net profit:", "$1,500.00", "1/2 files (50%)", "Complete!"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
