package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriteOptions configures how a report is written
type WriteOptions struct {
	MergeMode bool   // If true, append to the run history in an existing file
	FilePath  string // Output path (empty = stdout)
}

// History is the on-disk shape of a merged report file: one entry per run.
type History struct {
	UpdatedAt time.Time         `json:"updatedAt"`
	Runs      []json.RawMessage `json:"runs"`
}

// WriteJSON serializes v to JSON with 2-space indentation
func WriteJSON(v interface{}, w io.Writer) error {
	if v == nil {
		return fmt.Errorf("report cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode report as JSON: %w", err)
	}
	return nil
}

// WriteReport writes v to a file or stdout based on options. In merge mode
// v is appended to the file's run history instead of replacing it.
func WriteReport(v interface{}, opts WriteOptions) error {
	if v == nil {
		return fmt.Errorf("report cannot be nil")
	}

	if opts.FilePath == "" {
		return WriteJSON(v, os.Stdout)
	}

	if !opts.MergeMode {
		return writeFile(opts.FilePath, v)
	}

	history, err := LoadHistory(opts.FilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load existing report for merge: %w", err)
		}
		history = &History{}
	}

	run, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode report as JSON: %w", err)
	}
	history.Runs = append(history.Runs, run)
	history.UpdatedAt = time.Now().UTC()
	return writeFile(opts.FilePath, history)
}

// LoadHistory reads a merged report file
func LoadHistory(filePath string) (*History, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		// Unwrapped so callers can check os.IsNotExist
		return nil, err
	}

	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to decode report history %s: %w", filePath, err)
	}
	return &history, nil
}

// writeFile writes through a temp file and rename so a crash never leaves a
// truncated report behind.
func writeFile(path string, v interface{}) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if err = WriteJSON(v, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close output file %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}
