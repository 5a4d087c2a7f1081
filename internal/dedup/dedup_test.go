package dedup

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGenerateFingerprint(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		date        string
		amount      float64
		description string
	}{
		{"basic revenue", "Airbnb", "2024-08-15", 1250.50, "Airbnb payout - HMABC123"},
		{"expense without source", "", "2024-01-15", 250.00, "Zelle payment to Angelica Cleaner"},
		{"floating point rounding", "Direct", "2024-01-15", 123.456, "Test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateFingerprint(tt.source, tt.date, tt.amount, tt.description)
			if len(got) != 64 {
				t.Errorf("GenerateFingerprint() returned hash of length %d, want 64", len(got))
			}
			if got2 := GenerateFingerprint(tt.source, tt.date, tt.amount, tt.description); got != got2 {
				t.Errorf("GenerateFingerprint() is not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestGenerateFingerprint_Normalization(t *testing.T) {
	base := GenerateFingerprint("Airbnb", "2024-06-15", 100, "Airbnb payout")
	same := []string{
		GenerateFingerprint("airbnb", "2024-06-15", 100, "Airbnb payout"),
		GenerateFingerprint("Airbnb", "2024-06-15", 100.001, "Airbnb payout"),
		GenerateFingerprint(" Airbnb ", "2024-06-15", 100, "  AIRBNB PAYOUT "),
	}
	for i, fp := range same {
		if fp != base {
			t.Errorf("variant %d: expected normalized fingerprint to match", i)
		}
	}
}

func TestGenerateFingerprint_Uniqueness(t *testing.T) {
	fps := []string{
		GenerateFingerprint("Airbnb", "2024-06-15", 100, "payout"),
		GenerateFingerprint("VRBO", "2024-06-15", 100, "payout"),
		GenerateFingerprint("Airbnb", "2024-06-16", 100, "payout"),
		GenerateFingerprint("Airbnb", "2024-06-15", 101, "payout"),
		GenerateFingerprint("Airbnb", "2024-06-15", 100, "refund"),
	}
	seen := make(map[string]bool)
	for _, fp := range fps {
		if seen[fp] {
			t.Errorf("Duplicate fingerprint detected: %s", fp)
		}
		seen[fp] = true
	}
}

func TestOrdinals(t *testing.T) {
	o := NewOrdinals()
	a := GenerateFingerprint("", "2024-01-15", 250, "Zelle payment to Angelica Cleaner")
	b := GenerateFingerprint("", "2024-01-16", 250, "Zelle payment to Angelica Cleaner")

	if got := o.Next(a); got != 0 {
		t.Errorf("first occurrence ordinal = %d, want 0", got)
	}
	if got := o.Next(a); got != 1 {
		t.Errorf("second occurrence ordinal = %d, want 1", got)
	}
	if got := o.Next(b); got != 0 {
		t.Errorf("other fingerprint ordinal = %d, want 0", got)
	}

	if WithOrdinal(a, 0) != a {
		t.Error("WithOrdinal(fp, 0) should return fp unchanged")
	}
	if WithOrdinal(a, 1) == a || WithOrdinal(a, 1) == WithOrdinal(a, 2) {
		t.Error("WithOrdinal should separate repeated fingerprints")
	}
	if WithOrdinal(a, 1) != WithOrdinal(a, 1) {
		t.Error("WithOrdinal is not deterministic")
	}
}

func TestState_Record(t *testing.T) {
	state := NewState()
	fp := GenerateFingerprint("Airbnb", "2024-08-15", 1250.50, "Airbnb payout - HMABC123")
	if state.Has(fp) {
		t.Error("Has() returned true for an empty history")
	}

	first := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	if err := state.Record(fp, "rev-airbnb-1", first); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := state.Record(fp, "rev-airbnb-2", second); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if !state.Has(fp) || state.Len() != 1 {
		t.Fatalf("expected one fingerprint in history, got %d", state.Len())
	}
	seen := state.Seen[fp]
	if seen.RecordID != "rev-airbnb-1" {
		t.Errorf("RecordID = %q, want the first id", seen.RecordID)
	}
	if !seen.First.Equal(first) || !seen.Last.Equal(second) || seen.Imports != 2 {
		t.Errorf("unexpected history %+v", seen)
	}
}

func TestState_RecordRejectsEmpty(t *testing.T) {
	tests := []struct {
		name, fp, id, want string
	}{
		{"no fingerprint", "", "exp-1", "fingerprint cannot be empty"},
		{"no record id", "abc", "", "record ID cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewState().Record(tt.fp, tt.id, time.Now())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Record() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestState_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".strdash", "import-state.json")
	now := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)

	state := NewState()
	if err := state.Record("fp1", "exp-1", now); err != nil {
		t.Fatal(err)
	}
	if err := state.Record("fp2", "rev-2", now); err != nil {
		t.Fatal(err)
	}
	if err := state.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the state file, found %d entries", len(entries))
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if loaded.Len() != 2 || !loaded.Has("fp1") || loaded.Seen["fp2"].RecordID != "rev-2" {
		t.Errorf("loaded history does not match saved: %+v", loaded.Seen)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be stamped on save")
	}
}

func TestLoadState_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadState(filepath.Join(dir, "missing.json")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"not json", "{not json", "failed to parse state file"},
		{"old format", `{"version": 1, "fingerprints": {}}`, "unsupported state file version 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "-")+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadState(path); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadState() error = %v, want %q", err, tt.want)
			}
		})
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"version": 2}`), 0644); err != nil {
		t.Fatal(err)
	}
	state, err := LoadState(empty)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if state.Seen == nil {
		t.Error("Seen map should be initialized")
	}
}

func TestLoadOrNewState(t *testing.T) {
	state, err := LoadOrNewState(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadOrNewState() error = %v", err)
	}
	if state.Version != StateVersion || state.Len() != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}
}
