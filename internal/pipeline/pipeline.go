// Package pipeline imports export files into the record store: it picks a
// parser per file, assigns deterministic ids, validates the batch and writes
// it in bounded chunks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/dedup"
	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
	"github.com/rumor-ml/commons.systems/strdash/internal/property"
	"github.com/rumor-ml/commons.systems/strdash/internal/registry"
	"github.com/rumor-ml/commons.systems/strdash/internal/scanner"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
	"github.com/rumor-ml/commons.systems/strdash/internal/transform"
	"github.com/rumor-ml/commons.systems/strdash/internal/validate"
)

// ErrNoFiles is returned when a directory holds no recognizable exports
var ErrNoFiles = errors.New("no export files found")

// Archiver keeps a copy of a raw export before it is imported. It returns
// the location the file was stored under.
type Archiver interface {
	Archive(ctx context.Context, path string) (string, error)
}

// Reporter receives per-file progress. Implementations must be safe to call
// from the goroutine running Import.
type Reporter interface {
	FileStarted(index, total int, path string)
	FileDone(index, total int, file FileReport)
	FileFailed(index, total int, path string, err error)
}

// Options override what the scanner infers from file locations
type Options struct {
	Source     domain.Source
	PropertyID string
	Year       int
	Fallback   domain.Category
	// DryRun parses and validates without writing records or state
	DryRun bool
	// StatePath is the fingerprint history file; empty disables it
	StatePath string
	Now       func() time.Time
}

// Deps are the collaborators an import needs. Archiver and Reporter may be nil.
type Deps struct {
	Registry *registry.Registry
	Store    store.Store
	Catalog  *property.Catalog
	Calendar *domain.Calendar
	Archiver Archiver
	Reporter Reporter
}

// FileReport summarizes the import of one file
type FileReport struct {
	Path       string   `json:"path"`
	Parser     string   `json:"parser"`
	ArchivedAs string   `json:"archivedAs,omitempty"`
	Revenues   int      `json:"revenues"`
	Expenses   int      `json:"expenses"`
	Guests     int      `json:"guests"`
	Skipped    int      `json:"skipped"`
	Ignored    int      `json:"ignored"`
	Rejected   int      `json:"rejected"`
	Duplicates int      `json:"duplicates"`
	Written    int      `json:"written"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Report summarizes an Import run
type Report struct {
	Command    string       `json:"command"`
	StartedAt  time.Time    `json:"startedAt"`
	DryRun     bool         `json:"dryRun"`
	Files      []FileReport `json:"files"`
	Revenues   int          `json:"revenues"`
	Expenses   int          `json:"expenses"`
	Rejected   int          `json:"rejected"`
	Duplicates int          `json:"duplicates"`
	Failed     int          `json:"failed"`
}

// Pipeline orchestrates parsing files and writing to the record store
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates an import pipeline
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("pipeline requires a parser registry")
	}
	if deps.Store == nil && !opts.DryRun {
		return nil, fmt.Errorf("pipeline requires a record store")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{deps: deps, opts: opts}, nil
}

// Import imports path, which may be a single export file or a directory of
// exports. A file that fails to parse or write is reported and skipped;
// the error return is reserved for failures that stop the whole run.
func (p *Pipeline) Import(ctx context.Context, path string) (*Report, error) {
	files, err := p.discover(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, path)
	}

	var state *dedup.State
	if p.opts.StatePath != "" {
		state, err = dedup.LoadOrNewState(p.opts.StatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load dedup state %s: %w", p.opts.StatePath, err)
		}
	}

	report := &Report{Command: "import", StartedAt: p.opts.Now().UTC(), DryRun: p.opts.DryRun}
	log := logger.FromContext(ctx)

	for i, f := range files {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		p.started(i, len(files), f.Path)
		file, err := p.importFile(ctx, f, state)
		if err != nil {
			log.Error().Err(err).Str("file", f.Path).Msg("import failed")
			p.failed(i, len(files), f.Path, err)
			report.Failed++
			report.Files = append(report.Files, FileReport{Path: f.Path, Error: err.Error()})
			continue
		}
		log.Info().
			Str("file", f.Path).
			Str("parser", file.Parser).
			Int("revenues", file.Revenues).
			Int("expenses", file.Expenses).
			Int("written", file.Written).
			Msg("imported")
		p.done(i, len(files), *file)

		report.Files = append(report.Files, *file)
		report.Revenues += file.Revenues
		report.Expenses += file.Expenses
		report.Rejected += file.Rejected
		report.Duplicates += file.Duplicates
	}

	if state != nil && !p.opts.DryRun {
		if err := state.Save(p.opts.StatePath); err != nil {
			return report, fmt.Errorf("failed to save dedup state: %w", err)
		}
	}
	return report, nil
}

// Load parses path like Import but writes nothing; it returns the records
// that pass validation. Unlike Import, any file that cannot be parsed fails
// the whole call, since callers replace stored data with the result.
func (p *Pipeline) Load(ctx context.Context, path string) (*parser.Result, error) {
	files, err := p.discover(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, path)
	}

	combined := parser.NewResult()
	for _, f := range files {
		if err := parser.CheckContext(ctx); err != nil {
			return nil, err
		}
		p.applyOverrides(f.Metadata)
		prs, err := p.deps.Registry.FindParser(f.Path)
		if err != nil {
			return nil, err
		}
		result, err := parse(ctx, prs, f.Path, f.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(f.Path), err)
		}
		combined.Merge(result)
	}

	batch, err := transform.Prepare(combined, p.opts.Now().UTC())
	if err != nil {
		return nil, err
	}
	rejected := validate.ValidateBatch(batch, validate.Options{
		KnownProperties: p.propertyIDs(),
		Now:             p.opts.Now(),
	}).Rejected()

	out := parser.NewResult()
	out.Skipped = combined.Skipped
	out.Ignored = combined.Ignored
	out.Guests = combined.Guests
	for _, r := range batch.Revenues {
		if !rejected[r.ID] {
			out.Revenues = append(out.Revenues, r)
		}
	}
	for _, e := range batch.Expenses {
		if !rejected[e.ID] {
			out.Expenses = append(out.Expenses, e)
		}
	}
	return out, nil
}

func (p *Pipeline) discover(path string) ([]scanner.ScanResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	root := path
	if !info.IsDir() {
		root = filepath.Dir(path)
	}
	sc := scanner.New(root, scanner.Options{
		Properties: p.propertyIDs(),
		Calendar:   p.deps.Calendar,
		Now:        p.opts.Now,
	})
	if info.IsDir() {
		return sc.Scan()
	}
	meta, err := sc.Describe(path)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata for %s: %w", path, err)
	}
	return []scanner.ScanResult{{Path: path, Metadata: meta}}, nil
}

// importFile parses a single file and writes its accepted records
func (p *Pipeline) importFile(ctx context.Context, f scanner.ScanResult, state *dedup.State) (*FileReport, error) {
	meta := f.Metadata
	p.applyOverrides(meta)

	prs, err := p.deps.Registry.FindParser(f.Path)
	if err != nil {
		return nil, err
	}
	file := &FileReport{Path: f.Path, Parser: prs.Name()}

	if p.deps.Archiver != nil && !p.opts.DryRun {
		loc, err := p.deps.Archiver.Archive(ctx, f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to archive %s: %w", filepath.Base(f.Path), err)
		}
		file.ArchivedAs = loc
	}

	result, err := parse(ctx, prs, f.Path, meta)
	if err != nil {
		return nil, err
	}
	file.Skipped = result.SkipCount()
	file.Ignored = result.Ignored
	file.Guests = len(result.Guests)

	batch, err := transform.Prepare(result, p.opts.Now().UTC())
	if err != nil {
		return nil, err
	}

	validation := validate.ValidateBatch(batch, validate.Options{
		KnownProperties: p.propertyIDs(),
		Now:             p.opts.Now(),
	})
	for _, w := range validation.Warnings {
		file.Warnings = append(file.Warnings, fmt.Sprintf("%s %s: %s: %s", w.Entity, w.ID, w.Field, w.Message))
	}
	rejected := validation.Rejected()
	file.Rejected = len(rejected)

	revenueOps, expenseOps := p.ops(batch, rejected, state, file)
	file.Revenues = len(revenueOps)
	file.Expenses = len(expenseOps)
	if len(revenueOps) > 0 {
		file.Warnings = append(file.Warnings, p.storedGranularity(ctx, batch.Revenues, rejected)...)
	}
	if p.opts.DryRun {
		return file, nil
	}

	n, err := store.WriteChunked(ctx, p.deps.Store, domain.CollectionRevenue, revenueOps)
	file.Written += n
	if err != nil {
		return nil, fmt.Errorf("failed to write revenue (%d of %d written): %w", n, len(revenueOps), err)
	}
	n, err = store.WriteChunked(ctx, p.deps.Store, domain.CollectionExpenses, expenseOps)
	file.Written += n
	if err != nil {
		return nil, fmt.Errorf("failed to write expenses (%d of %d written): %w", n, len(expenseOps), err)
	}

	if state != nil {
		if err := recordFingerprints(state, batch, rejected, p.opts.Now()); err != nil {
			return nil, err
		}
	}
	return file, nil
}

// ops turns the accepted records of batch into store writes. Records whose
// fingerprint the state has already seen are counted and left out.
func (p *Pipeline) ops(batch *transform.Batch, rejected map[string]bool, state *dedup.State, file *FileReport) (revenue, expenses []store.Op) {
	seen := func(id string) bool {
		if state == nil {
			return false
		}
		if state.Has(batch.Fingerprints[id]) {
			file.Duplicates++
			return true
		}
		return false
	}

	for _, r := range batch.Revenues {
		if rejected[r.ID] || seen(r.ID) {
			continue
		}
		revenue = append(revenue, store.Set(r.ID, r.ToFields()))
	}
	for _, e := range batch.Expenses {
		if rejected[e.ID] || seen(e.ID) {
			continue
		}
		expenses = append(expenses, store.Set(e.ID, e.ToFields()))
	}
	return revenue, expenses
}

func recordFingerprints(state *dedup.State, batch *transform.Batch, rejected map[string]bool, now time.Time) error {
	for id, fp := range batch.Fingerprints {
		if rejected[id] {
			continue
		}
		if err := state.Record(fp, id, now); err != nil {
			return fmt.Errorf("failed to record fingerprint for %s: %w", id, err)
		}
	}
	return nil
}

func (p *Pipeline) applyOverrides(meta *parser.Metadata) {
	if p.opts.PropertyID != "" {
		meta.SetPropertyID(p.opts.PropertyID)
	}
	if p.opts.Source != "" {
		meta.SetSource(p.opts.Source)
	}
	if p.opts.Year != 0 {
		meta.SetYear(p.opts.Year)
	}
	if p.opts.Fallback != "" {
		meta.SetFallback(p.opts.Fallback)
	}
	if p.deps.Calendar != nil {
		meta.SetCalendar(p.deps.Calendar)
	}
}

func (p *Pipeline) propertyIDs() []string {
	if p.deps.Catalog == nil {
		return nil
	}
	all := p.deps.Catalog.All()
	ids := make([]string, len(all))
	for i, prop := range all {
		ids[i] = prop.ID
	}
	return ids
}

func parse(ctx context.Context, prs parser.Parser, path string, meta *parser.Metadata) (result *parser.Result, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	result, err = prs.Parse(ctx, f, meta)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}
	return result, nil
}

func (p *Pipeline) started(i, total int, path string) {
	if p.deps.Reporter != nil {
		p.deps.Reporter.FileStarted(i, total, path)
	}
}

func (p *Pipeline) done(i, total int, file FileReport) {
	if p.deps.Reporter != nil {
		p.deps.Reporter.FileDone(i, total, file)
	}
}

func (p *Pipeline) failed(i, total int, path string, err error) {
	if p.deps.Reporter != nil {
		p.deps.Reporter.FileFailed(i, total, path, err)
	}
}
