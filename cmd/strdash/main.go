package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rumor-ml/commons.systems/strdash/internal/ui"
)

const version = "0.1.0"

// errUsage asks main to print usage; the command already said what is wrong
var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdout io.Writer) error
}

var commands = []command{
	{"import", "Import an export file or directory into the record store", runImport},
	{"replace-window", "Replace one source's revenue for a year or month with a file's records", runReplaceWindow},
	{"dedup", "Remove monthly aggregates shadowed by transaction records", runDedup},
	{"sweep", "Delete records older than the retention period", runSweep},
	{"sync-qb", "Pull purchases and deposits from QuickBooks", runSyncQuickBooks},
	{"sync-hostaway", "Pull reservations from Hostaway", runSyncHostaway},
	{"summary", "Print the dashboard summary", runSummary},
	{"serve", "Run the HTTP API", runServe},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		usage(os.Stderr)
		os.Exit(2)
	default:
		ui.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: a command is required")
		return errUsage
	}

	name := args[0]
	switch name {
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "strdash version %s\n", version)
		return nil
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return nil
	}

	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, args[1:], stdout)
		}
	}
	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", name)
	return errUsage
}

func usage(w io.Writer) {
	fmt.Fprint(w, `strdash - short-term rental financial pipeline

Usage:
  strdash <command> [flags] [args]

Commands:
`)
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.name
	}
	sort.Strings(names)
	for _, n := range names {
		for _, c := range commands {
			if c.name == n {
				fmt.Fprintf(w, "  %-16s %s\n", c.name, c.summary)
			}
		}
	}
	fmt.Fprint(w, `
Run "strdash <command> -h" for command flags.

Examples:
  # Import a directory of exports, archiving the raw files
  strdash import -archive ~/exports

  # Replace Airbnb revenue for June 2024 with a corrected export
  strdash replace-window -source Airbnb -year 2024 -month 6 -file payouts.json

  # Summary for one property as JSON
  strdash summary -property cochran -json
`)
}

// newFlagSet creates a command's flag set with the shared flags bound
func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	common := &commonFlags{}
	fs.StringVar(&common.store, "store", "", "Store backend: memory, sqlite or firestore (default from STORE_BACKEND)")
	fs.StringVar(&common.sqlite, "sqlite", "", "SQLite database path (default from SQLITE_PATH)")
	fs.StringVar(&common.project, "project", "", "GCP project for the firestore backend (default from GCP_PROJECT_ID)")
	fs.BoolVar(&common.verbose, "verbose", false, "Show debug logs")
	return fs, common
}

// parseArgs parses flags, allowing them before or after positional arguments
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func requirePositional(fs *flag.FlagSet, args []string, what string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%s requires exactly one %s argument", fs.Name(), what)
	}
	return args[0], nil
}
