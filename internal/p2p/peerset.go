package p2p

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	SourceBootstrap  = "bootstrap"
	SourceRegistered = "registered"
	SourceStored     = "stored"
)

// PeerSet is the deduplicated set of known peer network locations. Membership
// changes only through Add/AddAll; Record annotates existing entries.
type PeerSet struct {
	mu    sync.RWMutex
	peers map[string]StoredPeer
	store *PeerStore // nil disables persistence
}

func NewPeerSet(store *PeerStore) *PeerSet {
	return &PeerSet{
		peers: make(map[string]StoredPeer),
		store: store,
	}
}

// Load merges the addresses saved in the store into the set.
func (s *PeerSet) Load() error {
	if s.store == nil {
		return nil
	}
	stored, err := s.store.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range stored {
		addr, err := ParseAddress(p.Addr)
		if err != nil {
			continue
		}
		if _, ok := s.peers[addr]; ok {
			continue
		}
		p.Addr = addr
		if p.Source == "" {
			p.Source = SourceStored
		}
		s.peers[addr] = p
	}
	return nil
}

func (s *PeerSet) Save() error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(s.Snapshot())
}

// Add parses address and inserts its network location, returning it.
func (s *PeerSet) Add(address, source string) (string, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[addr]; !ok {
		s.peers[addr] = StoredPeer{Addr: addr, SeenAt: time.Now().UTC(), Source: source}
	}
	return addr, nil
}

// AddAll registers every address or none of them. The error joins one
// *InvalidAddressError per rejected address.
func (s *PeerSet) AddAll(addresses []string, source string) error {
	parsed := make([]string, 0, len(addresses))
	var errs []error
	for _, a := range addresses {
		addr, err := ParseAddress(a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		parsed = append(parsed, addr)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range parsed {
		if _, ok := s.peers[addr]; !ok {
			s.peers[addr] = StoredPeer{Addr: addr, SeenAt: now, Source: source}
		}
	}
	return nil
}

// Record notes the result of the latest contact with a known peer. Unknown
// addresses are ignored.
func (s *PeerSet) Record(addr string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[addr]
	if !ok {
		return
	}
	if err != nil {
		p.LastError = err.Error()
	} else {
		p.LastError = ""
		p.SeenAt = time.Now().UTC()
	}
	s.peers[addr] = p
}

func (s *PeerSet) Has(addr string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.peers[addr]
	return ok
}

func (s *PeerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// List returns the addresses in sorted order.
func (s *PeerSet) List() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.peers))
	for addr := range s.peers {
		out = append(out, addr)
	}
	s.mu.RUnlock()

	slices.Sort(out)
	return out
}

func (s *PeerSet) Snapshot() []StoredPeer {
	s.mu.RLock()
	out := make([]StoredPeer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b StoredPeer) int {
		return strings.Compare(a.Addr, b.Addr)
	})
	return out
}
