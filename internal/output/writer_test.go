package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sampleRun struct {
	Command  string `json:"command"`
	Revenues int    `json:"revenues"`
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(sampleRun{Command: "import", Revenues: 3}, &buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if result["command"] != "import" {
		t.Errorf("unexpected command: %v", result["command"])
	}
	if !strings.Contains(buf.String(), "  \"revenues\": 3") {
		t.Errorf("output does not use 2-space indentation:\n%s", buf.String())
	}
}

func TestWriteJSON_Nil(t *testing.T) {
	if err := WriteJSON(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil report")
	}
}

func TestWriteReport_FreshMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "summary.json")

	if err := WriteReport(sampleRun{Command: "summary"}, WriteOptions{FilePath: path}); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	if err := WriteReport(sampleRun{Command: "summary", Revenues: 9}, WriteOptions{FilePath: path}); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	var got sampleRun
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got.Revenues != 9 {
		t.Errorf("fresh mode should overwrite, got %+v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestWriteReport_MergeMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imports.json")
	opts := WriteOptions{FilePath: path, MergeMode: true}

	for i := 1; i <= 3; i++ {
		if err := WriteReport(sampleRun{Command: "import", Revenues: i}, opts); err != nil {
			t.Fatalf("run %d: WriteReport failed: %v", i, err)
		}
	}

	history, err := LoadHistory(path)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(history.Runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(history.Runs))
	}
	var last sampleRun
	if err := json.Unmarshal(history.Runs[2], &last); err != nil {
		t.Fatal(err)
	}
	if last.Revenues != 3 {
		t.Errorf("runs out of order: %+v", last)
	}
	if history.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestWriteReport_MergeIntoCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imports.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	err := WriteReport(sampleRun{}, WriteOptions{FilePath: path, MergeMode: true})
	if err == nil || !strings.Contains(err.Error(), "failed to load existing report") {
		t.Errorf("expected load error, got %v", err)
	}
}

func TestLoadHistory_Errors(t *testing.T) {
	if _, err := LoadHistory(""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := LoadHistory(filepath.Join(t.TempDir(), "missing.json")); !os.IsNotExist(err) {
		t.Errorf("expected IsNotExist, got %v", err)
	}
}
