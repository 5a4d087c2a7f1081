// Package scanner walks an export directory and derives parse hints from
// each file's location.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
	"github.com/rumor-ml/commons.systems/strdash/internal/transform"
)

// Options supply what the scanner cannot learn from the file system
type Options struct {
	// Properties lists catalog ids; a directory whose slug matches one
	// attributes every file below it to that property.
	Properties []string
	// Calendar pins parsed dates; nil means UTC
	Calendar *domain.Calendar
	// Now stamps DetectedAt; nil means time.Now
	Now func() time.Time
}

// Scanner walks directory tree and finds export files
type Scanner struct {
	rootDir string
	opts    Options
}

// New creates a new scanner for the given root directory
func New(rootDir string, opts Options) *Scanner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scanner{rootDir: rootDir, opts: opts}
}

// ScanResult represents a found file with metadata
type ScanResult struct {
	Path     string
	Metadata *parser.Metadata
}

var yearPattern = regexp.MustCompile(`(?:^|[^0-9])(20[0-9]{2})(?:[^0-9]|$)`)

// Scan walks the directory tree and finds all export files, sorted by path
// so imports run in a stable order.
func (s *Scanner) Scan() ([]ScanResult, error) {
	var results []ScanResult

	rootDir := s.expandHome(s.rootDir)

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		name := info.Name()
		if info.IsDir() {
			// Skip hidden directories such as .git or the import state dir
			if path != rootDir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.isExportFile(path) {
			return nil
		}

		meta, err := s.extractMetadata(path, rootDir)
		if err != nil {
			return fmt.Errorf("invalid metadata for %s: %w", path, err)
		}

		results = append(results, ScanResult{
			Path:     path,
			Metadata: meta,
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// isExportFile checks if file is a known export format. Hidden files and
// Excel lock files ("~$Book.xlsx") are skipped.
func (s *Scanner) isExportFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".qfx", ".ofx", ".csv", ".xlsx", ".json":
		return true
	}
	return false
}

// extractMetadata derives hints from the path relative to the root:
//
//	{root}/{property?}/{source?}/.../{name with year?}.ext
//
// Any directory that slugs to a catalog id sets the property, any component
// naming a booking platform sets the revenue source, and a 20xx year in the
// file name (or failing that, a directory) sets the year. Files under a
// "zelle" or "contractors" directory default to the Contractor category.
func (s *Scanner) extractMetadata(filePath, rootDir string) (*parser.Metadata, error) {
	meta, err := parser.NewMetadata(filePath, s.opts.Now())
	if err != nil {
		return nil, err
	}
	if s.opts.Calendar != nil {
		meta.SetCalendar(s.opts.Calendar)
	}

	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	dirs := parts[:len(parts)-1]
	base := parts[len(parts)-1]

	for _, dir := range dirs {
		slug, err := transform.Slugify(strings.ReplaceAll(dir, "_", " "))
		if err != nil {
			continue
		}
		if s.isProperty(slug) {
			meta.SetPropertyID(slug)
		}
		if src, ok := sourceFromName(slug); ok {
			meta.SetSource(src)
		}
		if slug == "zelle" || slug == "contractors" {
			meta.SetFallback(domain.CategoryContractor)
		}
	}

	if year, ok := yearFromName(strings.TrimSuffix(base, filepath.Ext(base))); ok {
		meta.SetYear(year)
	} else {
		for i := len(dirs) - 1; i >= 0; i-- {
			if year, ok := yearFromName(dirs[i]); ok {
				meta.SetYear(year)
				break
			}
		}
	}

	return meta, nil
}

func (s *Scanner) isProperty(slug string) bool {
	for _, id := range s.opts.Properties {
		if id == slug {
			return true
		}
	}
	return false
}

func sourceFromName(slug string) (domain.Source, bool) {
	switch slug {
	case "airbnb":
		return domain.SourceAirbnb, true
	case "vrbo":
		return domain.SourceVRBO, true
	case "direct", "direct-bookings":
		return domain.SourceDirect, true
	case "hostaway":
		return domain.SourceHostaway, true
	}
	return "", false
}

// yearFromName finds a standalone 20xx year, e.g. "revenue-2024" → 2024
func yearFromName(name string) (int, bool) {
	m := yearPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// expandHome expands ~ to home directory
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Describe derives metadata for a single file. Path components below the
// scanner root contribute hints the same way they do during Scan; a file
// outside the root only gets hints from its own name.
func (s *Scanner) Describe(path string) (*parser.Metadata, error) {
	rootDir := s.expandHome(s.rootDir)
	if rootDir == "" {
		rootDir = filepath.Dir(path)
	}
	if rel, err := filepath.Rel(rootDir, path); err != nil || strings.HasPrefix(rel, "..") {
		rootDir = filepath.Dir(path)
	}
	return s.extractMetadata(path, rootDir)
}
