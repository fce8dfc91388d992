package p2p

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const peerFileVersion = 1

type StoredPeer struct {
	Addr      string    `json:"addr"`
	SeenAt    time.Time `json:"seenAt"`
	Source    string    `json:"source"` // bootstrap|registered|stored
	LastError string    `json:"lastError,omitempty"`
}

type peerFile struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"savedAt"`
	Peers   []StoredPeer `json:"peers"`
}

// PeerStore keeps registered peer addresses in a JSON file across restarts.
// Chain state is never written.
type PeerStore struct {
	path string
}

func NewPeerStore(path string) *PeerStore {
	return &PeerStore{path: filepath.Clean(path)}
}

func (ps *PeerStore) Path() string { return ps.path }

// Load returns the saved peers in file order. A missing file is an empty store.
func (ps *PeerStore) Load() ([]StoredPeer, error) {
	raw, err := os.ReadFile(ps.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read peer store %s: %w", ps.path, err)
	}

	var f peerFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode peer store %s: %w", ps.path, err)
	}
	if f.Version != peerFileVersion {
		return nil, fmt.Errorf("peer store %s: unsupported version %d", ps.path, f.Version)
	}
	return f.Peers, nil
}

// Save replaces the file atomically via a temp file and rename.
func (ps *PeerStore) Save(peers []StoredPeer) error {
	if err := os.MkdirAll(filepath.Dir(ps.path), 0o700); err != nil {
		return fmt.Errorf("peer store dir: %w", err)
	}
	if peers == nil {
		peers = []StoredPeer{}
	}

	data, err := json.MarshalIndent(peerFile{
		Version: peerFileVersion,
		SavedAt: time.Now().UTC(),
		Peers:   peers,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := ps.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write peer store: %w", err)
	}
	if err := os.Rename(tmp, ps.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace peer store %s: %w", ps.path, err)
	}
	return nil
}
