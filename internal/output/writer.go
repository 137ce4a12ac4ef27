// Package output implements the per-topic on-disk files described in §6.4.
// The orchestrator depends only on the Writer interface; FileWriter is one
// concrete implementation, kept deliberately small since the on-disk format
// is an external collaborator referenced by interface, not a core subsystem.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/igentai/genorch/internal/sharedtypes"
)

// AttributeRecord is one line of output.jsonl.
type AttributeRecord struct {
	Attribute string                `json:"attribute"`
	Model     string                `json:"model"`
	Provider  sharedtypes.ProviderID `json:"provider"`
	Timestamp time.Time             `json:"timestamp"`
}

// Metadata is the atomically-overwritten metadata.json.
type Metadata struct {
	Topic           string    `json:"topic"`
	CreatedAt       time.Time `json:"created_at"`
	Version         string    `json:"version"`
	TotalAttributes int       `json:"total_attributes"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CycleStats is one entry of cycle_performance.json's cycles array.
type CycleStats struct {
	Iteration       int       `json:"iteration"`
	TotalValues     int       `json:"total_values"`
	NewValues       int       `json:"new_values"`
	DuplicateValues int       `json:"duplicate_values"`
	Efficiency      float64   `json:"efficiency"`
	EfficiencyDelta float64   `json:"efficiency_delta"`
	Timestamp       time.Time `json:"timestamp"`
	DurationS       float64   `json:"duration_s"`
}

// CyclePerformance is the full cycle_performance.json document.
type CyclePerformance struct {
	Topic       string                 `json:"topic"`
	TotalCycles int                    `json:"total_cycles"`
	Cycles      []CycleStats           `json:"cycles"`
	Summary     map[string]interface{} `json:"summary"`
}

// ProviderPerformance is one entry of provider_performance.json.
type ProviderPerformance struct {
	Provider        sharedtypes.ProviderID `json:"provider"`
	RequestsSent    int                    `json:"requests_sent"`
	UniqueAttribute int                    `json:"unique_attributes"`
	CostUSD         float64                `json:"cost_usd"`
	UAM             float64                `json:"uam"`
}

// Writer is everything the orchestrator needs from the output subsystem.
// Each method operates on one topic's directory.
type Writer interface {
	AppendJSONL(record AttributeRecord) error
	AppendText(lines []string) error
	WriteMetadata(meta Metadata) error
	WriteCyclePerformance(cp CyclePerformance) error
	WriteProviderPerformance(pp []ProviderPerformance) error
	Close() error
}

// FileWriter writes the §6.4 file set under <root>/<topic>/.
type FileWriter struct {
	mu  sync.Mutex
	dir string

	jsonlFile *os.File
	textFile  *os.File
}

// NewFileWriter creates the topic directory (if absent) and opens the
// append-mode files used across the topic's lifetime.
func NewFileWriter(root, topic string) (*FileWriter, error) {
	dir := filepath.Join(root, topic)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output: create topic dir %s: %w", dir, err)
	}

	jsonlFile, err := os.OpenFile(filepath.Join(dir, "output.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("output: open output.jsonl: %w", err)
	}
	textFile, err := os.OpenFile(filepath.Join(dir, "output.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		jsonlFile.Close()
		return nil, fmt.Errorf("output: open output.txt: %w", err)
	}

	return &FileWriter{dir: dir, jsonlFile: jsonlFile, textFile: textFile}, nil
}

// AppendJSONL appends one JSON object per line, as batches are accepted.
func (w *FileWriter) AppendJSONL(record AttributeRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("output: marshal record: %w", err)
	}
	if _, err := w.jsonlFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("output: append jsonl: %w", err)
	}
	return nil
}

// AppendText appends one attribute per line, called at each iteration boundary.
func (w *FileWriter) AppendText(lines []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	bw := bufio.NewWriter(w.textFile)
	for _, line := range lines {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("output: append text: %w", err)
		}
	}
	return bw.Flush()
}

// WriteMetadata overwrites metadata.json atomically (write to a temp file,
// then rename, so a reader never observes a half-written document).
func (w *FileWriter) WriteMetadata(meta Metadata) error {
	return w.writeAtomicJSON("metadata.json", meta)
}

// WriteCyclePerformance writes cycle_performance.json on topic completion.
func (w *FileWriter) WriteCyclePerformance(cp CyclePerformance) error {
	return w.writeAtomicJSON("cycle_performance.json", cp)
}

// WriteProviderPerformance writes provider_performance.json on topic completion.
func (w *FileWriter) WriteProviderPerformance(pp []ProviderPerformance) error {
	return w.writeAtomicJSON("provider_performance.json", pp)
}

func (w *FileWriter) writeAtomicJSON(name string, v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("output: marshal %s: %w", name, err)
	}

	final := filepath.Join(w.dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("output: write temp %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("output: rename into place %s: %w", name, err)
	}
	return nil
}

// Close flushes and closes the append-mode files.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err1 := w.jsonlFile.Close()
	err2 := w.textFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
