package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamdecor.ai/internal/persistence/snapshot"
)

func sampleSave() snapshot.SaveV1 {
	return snapshot.SaveV1{
		Header:       snapshot.Header{Version: snapshot.Version, Identity: "u1", SavedAt: time.Unix(1700000000, 0).UTC()},
		GridSize:     2,
		Tiles:        []snapshot.TileV1{{X: 1, Y: 0, Occupant: "TABLE", Rotation: 2, Stacked: "LAMP"}},
		Budget:       4300,
		Phase:        2,
		SelectedTool: "LAMP",
	}
}

func TestSnapshotFileFormats(t *testing.T) {
	dir := t.TempDir()
	want := sampleSave()

	for _, name := range []string{"u1.snap.zst", "u1.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, writeSnapshotFile(path, want))
			got, err := readSnapshotFile(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	h, err := readHeader(filepath.Join(dir, "u1.snap.zst"))
	require.NoError(t, err)
	assert.Equal(t, want.Header, h)
}

func TestReadSnapshotFileRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"header":{"version":7}}`), 0o644))
	_, err := readSnapshotFile(path)
	assert.Error(t, err)

	_, err = readSnapshotFile("")
	assert.Error(t, err)
}
