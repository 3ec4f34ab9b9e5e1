// Package log persists the per-session action audit trail as hourly
// zstd-compressed JSONL files.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

type Op string

const (
	OpNew    Op = "new"
	OpLoad   Op = "load"
	OpPlace  Op = "place"
	OpStack  Op = "stack"
	OpRemove Op = "remove"
	OpRotate Op = "rotate"
	OpClaim  Op = "claim"
)

// ActionEntry is one applied mutation. Budget and Phase are the values
// after the mutation.
type ActionEntry struct {
	TimeUnixMs int64  `json:"t"`
	Session    string `json:"session"`
	Identity   string `json:"identity,omitempty"`
	Seq        uint64 `json:"seq"`
	Op         Op     `json:"op"`

	X         int    `json:"x,omitempty"`
	Y         int    `json:"y,omitempty"`
	Furniture string `json:"furniture,omitempty"`
	Layer     string `json:"layer,omitempty"`
	Rotation  int    `json:"rotation,omitempty"`

	// Positive for credits, negative for debits.
	Delta  int `json:"delta,omitempty"`
	Budget int `json:"budget"`
	Phase  int `json:"phase"`

	GridSize int `json:"grid_size,omitempty"`
}

// ActionLogger writes action entries (compressed).
type ActionLogger struct{ w *JSONLZstdWriter }

func NewActionLogger(dataDir string) *ActionLogger {
	return &ActionLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "actions"), ActionPrefix)}
}

const ActionPrefix = "actions"

func (l *ActionLogger) WriteAction(e ActionEntry) error { return l.w.Write(e) }
func (l *ActionLogger) Close() error                    { return l.w.Close() }

// ActionFiles lists the action log files under dir in chronological order.
func ActionFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, ActionPrefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadActions calls fn for each entry in path. A truncated tail, left by
// a writer that has not closed its file yet, ends the read without error.
func ReadActions(path string, fn func(ActionEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	r := bufio.NewReaderSize(dec, 64*1024)
	for line := 1; ; line++ {
		b, err := r.ReadBytes('\n')
		if len(b) > 0 && b[len(b)-1] == '\n' {
			var e ActionEntry
			if uerr := json.Unmarshal(b, &e); uerr != nil {
				return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, uerr)
			}
			if ferr := fn(e); ferr != nil {
				return ferr
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		return err
	}
}
