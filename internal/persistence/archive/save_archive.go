package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dreamdecor.ai/internal/persistence/savestore"
	"dreamdecor.ai/internal/persistence/snapshot"
)

type SaveArchiveMeta struct {
	Identity   string `json:"identity"`
	Snapshot   string `json:"snapshot"`
	Reason     string `json:"reason"`
	ArchivedAt string `json:"archived_at"`
	SavedAt    string `json:"saved_at"`
	Budget     int    `json:"budget"`
	Phase      int    `json:"phase"`
	Tiles      int    `json:"tiles"`
}

// ArchiveSave writes snap to `dataDir/archives/<key>/<stamp>.snap.zst` with a
// meta.json beside it, so a deleted save can still be restored with
// `admin import`. meta.json describes the newest archive in the directory.
func ArchiveSave(dataDir string, snap snapshot.SaveV1, reason string, now time.Time) (string, error) {
	if snap.Header.Identity == "" {
		return "", savestore.ErrNoIdentity
	}
	dir := filepath.Join(dataDir, "archives", savestore.Key(snap.Header.Identity))
	stamp := now.UTC().Format("20060102T150405.000Z")
	dst := filepath.Join(dir, stamp+savestore.FileExt)
	if err := snapshot.WriteFile(dst, snap); err != nil {
		return "", fmt.Errorf("archive %s: %w", snap.Header.Identity, err)
	}

	meta := SaveArchiveMeta{
		Identity:   snap.Header.Identity,
		Snapshot:   filepath.Base(dst),
		Reason:     reason,
		ArchivedAt: now.UTC().Format(time.RFC3339Nano),
		SavedAt:    snap.Header.SavedAt.UTC().Format(time.RFC3339Nano),
		Budget:     snap.Budget,
		Phase:      snap.Phase,
		Tiles:      len(snap.Tiles),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, nil
}
