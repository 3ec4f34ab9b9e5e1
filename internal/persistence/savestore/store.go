// Package savestore keeps one save snapshot per player identity with
// last-write-wins semantics.
package savestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"dreamdecor.ai/internal/persistence/snapshot"
)

var ErrNoIdentity = errors.New("savestore: empty identity")

type Store interface {
	Save(ctx context.Context, identity string, snap snapshot.SaveV1) error
	// Load returns ok=false when identity has never saved.
	Load(ctx context.Context, identity string) (snap snapshot.SaveV1, ok bool, err error)
	Exists(ctx context.Context, identity string) (bool, error)
	Delete(ctx context.Context, identity string) error
	List(ctx context.Context) ([]snapshot.Header, error)
	Close() error
}

func normIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", ErrNoIdentity
	}
	return identity, nil
}

// Memory keeps encoded blobs so that a load never aliases a saved value.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemory() *Memory { return &Memory{blobs: map[string][]byte{}} }

func (m *Memory) Save(_ context.Context, identity string, snap snapshot.SaveV1) error {
	id, err := normIdentity(identity)
	if err != nil {
		return err
	}
	snap.Header.Identity = id
	b, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[id] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, identity string) (snapshot.SaveV1, bool, error) {
	id, err := normIdentity(identity)
	if err != nil {
		return snapshot.SaveV1{}, false, err
	}
	m.mu.Lock()
	b, ok := m.blobs[id]
	m.mu.Unlock()
	if !ok {
		return snapshot.SaveV1{}, false, nil
	}
	snap, err := snapshot.Unmarshal(b)
	if err != nil {
		return snapshot.SaveV1{}, false, err
	}
	return snap, true, nil
}

func (m *Memory) Exists(_ context.Context, identity string) (bool, error) {
	id, err := normIdentity(identity)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[id]
	return ok, nil
}

func (m *Memory) Delete(_ context.Context, identity string) error {
	id, err := normIdentity(identity)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.blobs, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) ([]snapshot.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]snapshot.Header, 0, len(m.blobs))
	for _, b := range m.blobs {
		h, err := snapshot.ReadHeader(b)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (m *Memory) Close() error { return nil }
