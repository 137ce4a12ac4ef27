package output

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/igentai/genorch/internal/sharedtypes"
)

func TestFileWriterAppendJSONLAndText(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "birds")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer w.Close()

	if err := w.AppendJSONL(AttributeRecord{Attribute: "sparrow", Model: "gpt-3.5-turbo", Provider: sharedtypes.ProviderOpenAI, Timestamp: time.Unix(0, 0)}); err != nil {
		t.Fatalf("AppendJSONL: %v", err)
	}
	if err := w.AppendText([]string{"sparrow", "robin"}); err != nil {
		t.Fatalf("AppendText: %v", err)
	}

	jsonlPath := filepath.Join(dir, "birds", "output.jsonl")
	data, err := os.ReadFile(jsonlPath)
	if err != nil {
		t.Fatalf("read jsonl: %v", err)
	}
	var rec AttributeRecord
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	if !scanner.Scan() {
		t.Fatal("expected one jsonl line")
	}
	if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if rec.Attribute != "sparrow" || rec.Provider != sharedtypes.ProviderOpenAI {
		t.Fatalf("got %+v", rec)
	}

	textPath := filepath.Join(dir, "birds", "output.txt")
	textData, err := os.ReadFile(textPath)
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	if strings.TrimSpace(string(textData)) != "sparrow\nrobin" {
		t.Fatalf("got %q", string(textData))
	}
}

func TestFileWriterMetadataOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "birds")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer w.Close()

	if err := w.WriteMetadata(Metadata{Topic: "birds", Version: "1.0", TotalAttributes: 2}); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	if err := w.WriteMetadata(Metadata{Topic: "birds", Version: "1.0", TotalAttributes: 5}); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "birds", "metadata.json"))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if meta.TotalAttributes != 5 {
		t.Fatalf("got %+v, want latest write to have won", meta)
	}
	if _, err := os.Stat(filepath.Join(dir, "birds", "metadata.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file should have been renamed away")
	}
}

func TestFileWriterCyclePerformanceAndProviderPerformance(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "birds")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer w.Close()

	cp := CyclePerformance{Topic: "birds", TotalCycles: 3, Cycles: []CycleStats{{Iteration: 1, NewValues: 10}}}
	if err := w.WriteCyclePerformance(cp); err != nil {
		t.Fatalf("WriteCyclePerformance: %v", err)
	}
	pp := []ProviderPerformance{{Provider: sharedtypes.ProviderOpenAI, RequestsSent: 5}}
	if err := w.WriteProviderPerformance(pp); err != nil {
		t.Fatalf("WriteProviderPerformance: %v", err)
	}

	for _, name := range []string{"cycle_performance.json", "provider_performance.json"} {
		if _, err := os.Stat(filepath.Join(dir, "birds", name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}
