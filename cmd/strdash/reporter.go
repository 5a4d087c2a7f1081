package main

import (
	"fmt"
	"path/filepath"

	"github.com/rumor-ml/commons.systems/strdash/internal/pipeline"
	"github.com/rumor-ml/commons.systems/strdash/internal/ui"
)

// cliReporter prints import progress. Verbose mode prints a line per file,
// otherwise a single progress line is rewritten.
type cliReporter struct {
	verbose bool
}

func newCLIReporter(verbose bool) *cliReporter {
	return &cliReporter{verbose: verbose}
}

func (r *cliReporter) FileStarted(index, total int, path string) {
	if r.verbose {
		ui.Step(index+1, total, filepath.Base(path))
		return
	}
	ui.Progress(index, total)
}

func (r *cliReporter) FileDone(index, total int, file pipeline.FileReport) {
	if r.verbose {
		ui.Info(fmt.Sprintf("%s: %d revenue, %d expenses, %d written", file.Parser, file.Revenues, file.Expenses, file.Written))
	} else {
		ui.Progress(index+1, total)
	}
	r.finish(index, total)
}

func (r *cliReporter) FileFailed(index, total int, path string, err error) {
	if r.verbose {
		ui.Warning(fmt.Sprintf("%s: %v", filepath.Base(path), err))
	} else {
		ui.Progress(index+1, total)
	}
	r.finish(index, total)
}

func (r *cliReporter) finish(index, total int) {
	if !r.verbose && index+1 == total {
		ui.Done(total)
	}
}

var _ pipeline.Reporter = (*cliReporter)(nil)
