package savestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"dreamdecor.ai/internal/persistence/snapshot"
)

const (
	KeyPrefix = "dream_decor_"
	FileExt   = ".snap.zst"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Key maps an identity to a filesystem-safe name. The hash suffix keeps
// identities that sanitize alike (a.b and a_b) apart.
func Key(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return KeyPrefix + unsafeKeyChars.ReplaceAllString(strings.ToLower(identity), "_") + "_" + hex.EncodeToString(sum[:4])
}

// Dir stores one snapshot file per identity under a directory.
type Dir struct {
	root string
}

func OpenDir(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("empty save directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(id string) string { return filepath.Join(d.root, Key(id)+FileExt) }

func (d *Dir) Save(_ context.Context, identity string, snap snapshot.SaveV1) error {
	id, err := normIdentity(identity)
	if err != nil {
		return err
	}
	snap.Header.Identity = id
	return snapshot.WriteFile(d.path(id), snap)
}

func (d *Dir) Load(_ context.Context, identity string) (snapshot.SaveV1, bool, error) {
	id, err := normIdentity(identity)
	if err != nil {
		return snapshot.SaveV1{}, false, err
	}
	snap, err := snapshot.ReadFile(d.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot.SaveV1{}, false, nil
	}
	if err != nil {
		return snapshot.SaveV1{}, false, fmt.Errorf("load %q: %w", id, err)
	}
	return snap, true, nil
}

func (d *Dir) Exists(_ context.Context, identity string) (bool, error) {
	id, err := normIdentity(identity)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(d.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (d *Dir) Delete(_ context.Context, identity string) error {
	id, err := normIdentity(identity)
	if err != nil {
		return err
	}
	err = os.Remove(d.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (d *Dir) List(_ context.Context) ([]snapshot.Header, error) {
	matches, err := filepath.Glob(filepath.Join(d.root, KeyPrefix+"*"+FileExt))
	if err != nil {
		return nil, err
	}
	out := make([]snapshot.Header, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		h, err := snapshot.ReadHeader(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(m), err)
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (d *Dir) Close() error { return nil }
