package registry

import (
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
	"github.com/rumor-ml/commons.systems/strdash/internal/parsers/airbnb"
	"github.com/rumor-ml/commons.systems/strdash/internal/parsers/bank"
	"github.com/rumor-ml/commons.systems/strdash/internal/parsers/ofx"
	"github.com/rumor-ml/commons.systems/strdash/internal/parsers/sheet"
)

// Deps carries the collaborators the built-in parsers share. Both fields may
// be nil: expenses then take the metadata fallback category and Airbnb
// listings map to the unknown property.
type Deps struct {
	Categorizer parser.Categorizer
	Listings    airbnb.ListingMapper
}

// Registry holds all registered parsers
type Registry struct {
	parsers []parser.Parser
}

// New creates a registry with all built-in parsers.
//
// Order matters: the first parser whose CanParse accepts a file wins, so the
// narrow formats (Airbnb JSON, OFX, known spreadsheet layouts) come before
// the generic bank CSV parser.
func New(deps Deps) (*Registry, error) {
	r := &Registry{}
	builtins := []parser.Parser{
		airbnb.NewPayoutParser(),
		airbnb.NewReservationParser(deps.Listings),
		ofx.NewParser(deps.Categorizer),
		sheet.NewParser(deps.Categorizer),
		bank.NewParser(deps.Categorizer),
	}
	for _, p := range builtins {
		if err := r.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register built-in parser: %w", err)
		}
	}
	return r, nil
}

// MustNew is New for callers that cannot recover from a registration error.
func MustNew(deps Deps) *Registry {
	r, err := New(deps)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a custom parser (for extensibility)
func (r *Registry) Register(p parser.Parser) error {
	if p == nil {
		return fmt.Errorf("cannot register nil parser")
	}
	for _, existing := range r.parsers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("parser %q already registered", p.Name())
		}
	}
	r.parsers = append(r.parsers, p)
	return nil
}

// Lookup returns the parser registered under name
func (r *Registry) Lookup(name string) (parser.Parser, error) {
	for _, p := range r.parsers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser named %q (have %v)", name, r.ListParsers())
}

// FindParser returns the best parser for this file.
// Reads first 512 bytes for format detection via header inspection, which
// covers the OFX header, the xlsx zip signature, a CSV header row and the
// opening bracket of a JSON export.
func (r *Registry) FindParser(path string) (parser.Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		f.Close() // Best-effort close, ignore error since we're already failing
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	// Short files are fine; parsers receive whatever was read (0 to 512 bytes).
	header = header[:n]

	for _, p := range r.parsers {
		if p.CanParse(path, header) {
			if err := f.Close(); err != nil {
				return nil, fmt.Errorf("failed to close file %s: %w", path, err)
			}
			return p, nil
		}
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file %s: %w", path, err)
	}
	return nil, fmt.Errorf("no parser found for file: %s", path)
}

// ListParsers returns all registered parsers
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
