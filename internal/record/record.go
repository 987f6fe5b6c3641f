// Package record appends every signed probe to a per-run CSV before it
// is submitted, so signatures can be recovered if the process dies
// between submit and report.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const header = "slot_sent,seq,signature\n"

// Writer is an append-only CSV of signed probes. Lines are flushed to
// the OS on every Append; losing buffered rows would defeat the point.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewWriter creates dir if needed and opens a fresh run file named
// after the start time and run ID.
func NewWriter(dir string, start time.Time, runID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	name := fmt.Sprintf("probes-%s-%s.csv", start.UTC().Format("20060102T150405Z"), runID)
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create record file: %w", err)
	}
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write record header: %w", err)
	}
	return &Writer{file: f, path: path}, nil
}

// Path returns the run file's location on disk.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one probe row and syncs it.
func (w *Writer) Append(slotSent, seq uint64, signature string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	row := strconv.FormatUint(slotSent, 10) + "," + strconv.FormatUint(seq, 10) + "," + signature + "\n"
	if _, err := w.file.WriteString(row); err != nil {
		return fmt.Errorf("append probe record: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync probe record: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
