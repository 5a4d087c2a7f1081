// Package dedup provides record fingerprinting, per-import ordinal
// assignment for identical rows, and a persisted fingerprint history.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GenerateFingerprint creates a SHA256 hash of source, date, amount and
// description.
// Format: SHA256("{source}|{date}|{amount}|{normalizedDescription}")
// Amount is formatted with 2 decimal places; source and description are
// lowercased and trimmed. Expenses pass an empty source.
func GenerateFingerprint(source, date string, amount float64, description string) string {
	input := fmt.Sprintf("%s|%s|%.2f|%s",
		strings.ToLower(strings.TrimSpace(source)),
		date,
		amount,
		strings.ToLower(strings.TrimSpace(description)),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// WithOrdinal extends a fingerprint with the position of the record among
// identical rows of the same input. Ordinal 0 leaves it unchanged so a
// record that has no twin keeps its plain fingerprint.
func WithOrdinal(fingerprint string, ordinal int) string {
	if ordinal == 0 {
		return fingerprint
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", fingerprint, ordinal)))
	return hex.EncodeToString(hash[:])
}

// Ordinals numbers repeated fingerprints within one input: the first
// occurrence gets 0, the next 1, and so on. Two legitimately identical
// payments on the same day therefore keep distinct ids, while re-importing
// the same file yields the same ids again.
type Ordinals struct {
	seen map[string]int
}

// NewOrdinals returns an empty ordinal counter
func NewOrdinals() *Ordinals {
	return &Ordinals{seen: make(map[string]int)}
}

// Next returns the ordinal for this occurrence of fingerprint
func (o *Ordinals) Next(fingerprint string) int {
	n := o.seen[fingerprint]
	o.seen[fingerprint] = n + 1
	return n
}

// StateVersion is the state file format version
const StateVersion = 2

// State is the fingerprint history of earlier imports. A record whose
// fingerprint is in the history is skipped on later runs, even after a
// sweep removed it from the store.
type State struct {
	Version   int              `json:"version"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Seen      map[string]*Seen `json:"seen"`
}

// Seen is the history of one fingerprint
type Seen struct {
	RecordID string    `json:"recordId"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
	Imports  int       `json:"imports"`
}

// NewState returns an empty history
func NewState() *State {
	return &State{Version: StateVersion, Seen: make(map[string]*Seen)}
}

// LoadState reads a history file. A missing file is reported with an error
// matching fs.ErrNotExist.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	if state.Version != StateVersion {
		return nil, fmt.Errorf("unsupported state file version %d (want %d)", state.Version, StateVersion)
	}
	if state.Seen == nil {
		state.Seen = make(map[string]*Seen)
	}
	return &state, nil
}

// LoadOrNewState is LoadState with a missing file treated as empty history
func LoadOrNewState(path string) (*State, error) {
	state, err := LoadState(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	return state, err
}

// Save writes the history next to path and renames it into place, so a
// crash never leaves a truncated file behind.
func (s *State) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	s.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Has reports whether fingerprint was imported before
func (s *State) Has(fingerprint string) bool {
	_, ok := s.Seen[fingerprint]
	return ok
}

// Len is the number of fingerprints in the history
func (s *State) Len() int {
	return len(s.Seen)
}

// Record adds fingerprint to the history, or bumps its last-seen time and
// import count when it is already there.
func (s *State) Record(fingerprint, recordID string, at time.Time) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}
	if recordID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	if seen, ok := s.Seen[fingerprint]; ok {
		seen.Last = at
		seen.Imports++
		return nil
	}
	s.Seen[fingerprint] = &Seen{RecordID: recordID, First: at, Last: at, Imports: 1}
	return nil
}
