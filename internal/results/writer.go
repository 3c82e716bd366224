// Package results persists run output documents under the outputs directory
// and backs them up to S3-compatible object storage when configured.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/optisuite/optisuite/internal/usage"
)

// Document is the saved form of a run: what model produced which results and
// what the usage looked like at save time.
type Document struct {
	Timestamp   time.Time    `json:"timestamp"`
	Model       string       `json:"model"`
	Results     any          `json:"results"`
	Performance usage.Report `json:"performance"`
}

// Writer saves result documents as timestamped JSON files.
type Writer struct {
	outputsDir string
}

// NewWriter creates the outputs directory when needed.
func NewWriter(outputsDir string) (*Writer, error) {
	if strings.TrimSpace(outputsDir) == "" {
		return nil, fmt.Errorf("results: outputs directory is empty")
	}
	if err := os.MkdirAll(outputsDir, 0o755); err != nil {
		return nil, fmt.Errorf("results: create outputs directory failed: %w", err)
	}
	return &Writer{outputsDir: outputsDir}, nil
}

// Save writes the document to the given filename under the outputs directory.
// An empty filename gets a timestamped default.
func (w *Writer) Save(doc Document, filename string) (string, error) {
	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now().UTC()
	}
	if filename == "" {
		filename = fmt.Sprintf("results-%s.json", doc.Timestamp.Format("20060102-150405"))
	}
	if filepath.Base(filename) != filename {
		return "", fmt.Errorf("results: filename %q must not contain path separators", filename)
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("results: marshal document failed: %w", err)
	}

	path := filepath.Join(w.outputsDir, filename)
	if err = os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("results: write %s failed: %w", path, err)
	}

	log.Infof("results saved to %s", path)
	return path, nil
}

// Dir returns the outputs directory.
func (w *Writer) Dir() string { return w.outputsDir }
