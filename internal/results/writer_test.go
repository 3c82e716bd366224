package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/optisuite/optisuite/internal/usage"
)

func TestSaveDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	doc := Document{
		Model:       "claude-opus-4-1-20250805",
		Results:     []string{"first", "second"},
		Performance: usage.Report{TotalRequests: 2, SuccessfulRequests: 2, TotalTokens: 90},
	}
	path, err := writer.Save(doc, "run.json")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(dir, "run.json") {
		t.Errorf("path = %q", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	var loaded Document
	if err = json.Unmarshal(raw, &loaded); err != nil {
		t.Fatalf("unmarshal saved file: %v", err)
	}
	if loaded.Model != doc.Model {
		t.Errorf("Model = %q", loaded.Model)
	}
	if loaded.Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
	if loaded.Performance.TotalTokens != 90 {
		t.Errorf("Performance = %+v", loaded.Performance)
	}
}

func TestSaveDefaultFilename(t *testing.T) {
	t.Parallel()

	writer, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	ts := time.Date(2025, 8, 24, 10, 30, 0, 0, time.UTC)
	path, err := writer.Save(Document{Timestamp: ts}, "")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Base(path) != "results-20250824-103000.json" {
		t.Errorf("default filename = %q", filepath.Base(path))
	}
}

func TestSaveRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	writer, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	for _, name := range []string{"../escape.json", "sub/dir.json"} {
		if _, err = writer.Save(Document{}, name); err == nil {
			t.Errorf("Save(%q) accepted a path separator", name)
		} else if !strings.Contains(err.Error(), "path separators") {
			t.Errorf("Save(%q) error = %v", name, err)
		}
	}
}

func TestNewWriterRejectsEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := NewWriter(" "); err == nil {
		t.Fatal("expected error for empty outputs directory")
	}
}
