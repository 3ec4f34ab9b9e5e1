package snapshot

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version  int       `json:"version"`
	Identity string    `json:"identity,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}

// SaveV1 is the full, self-contained state of one player's session.
type SaveV1 struct {
	Header Header `json:"header"`

	GridSize int      `json:"grid_size"`
	Tiles    []TileV1 `json:"tiles"`

	Budget       int     `json:"budget"`
	Phase        int     `json:"phase"`
	Goal         *GoalV1 `json:"goal,omitempty"`
	SelectedTool string  `json:"selected_tool,omitempty"`

	// Digest of the catalog the save was made against (informational).
	CatalogDigest string `json:"catalog_digest,omitempty"`
}

type TileV1 struct {
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Occupant        string `json:"occupant,omitempty"`
	Rotation        int    `json:"rotation,omitempty"`
	Stacked         string `json:"stacked,omitempty"`
	StackedRotation int    `json:"stacked_rotation,omitempty"`
}

type GoalV1 struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description"`
	Metric          string `json:"metric"`
	TargetValue     int    `json:"target_value"`
	TargetFurniture string `json:"target_furniture,omitempty"`
	Reward          int    `json:"reward"`
	Completed       bool   `json:"completed"`
}

// Encode writes snap as zstd(header json line + gob body).
func Encode(w io.Writer, snap SaveV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 32*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func Decode(r io.Reader) (SaveV1, error) {
	var snap SaveV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 32*1024)
	hb, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(hb, &h); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

func Marshal(snap SaveV1) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(b []byte) (SaveV1, error) {
	return Decode(bytes.NewReader(b))
}

// ReadHeader decodes only the header line, without the gob body.
func ReadHeader(b []byte) (Header, error) {
	var h Header
	dec, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return h, err
	}
	defer dec.Close()
	hb, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	err = json.Unmarshal(hb, &h)
	return h, err
}

// WriteFile replaces path atomically. Each call writes its own temp file,
// so concurrent writers never trip over each other; the last rename wins.
func WriteFile(path string, snap SaveV1) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := Encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func ReadFile(path string) (SaveV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SaveV1{}, err
	}
	defer f.Close()
	return Decode(f)
}
