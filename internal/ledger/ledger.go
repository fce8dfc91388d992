package ledger

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/VeltarosLabs/powledger/internal/blockchain"
	"github.com/VeltarosLabs/powledger/internal/p2p"
	"github.com/VeltarosLabs/powledger/pkg/types"
)

// Ledger owns the chain, the pending transaction pool and the peer set of one
// node. All mutations are serialized by mu; blocks are copied on the way in
// and out so appended blocks are never mutated.
type Ledger struct {
	mu sync.RWMutex

	chain   []types.Block
	pending []types.Transaction

	peers  *p2p.PeerSet
	nodeID string

	log *slog.Logger
	now func() time.Time
}

type Option func(*Ledger)

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log.With("component", "ledger")
		}
	}
}

// WithClock overrides the block timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds a ledger holding only the genesis block.
func New(nodeID string, peers *p2p.PeerSet, opts ...Option) (*Ledger, error) {
	if nodeID == "" {
		return nil, errors.New("nodeID is required")
	}
	if peers == nil {
		peers = p2p.NewPeerSet(nil)
	}

	l := &Ledger{
		peers:  peers,
		nodeID: nodeID,
		log:    slog.New(slog.DiscardHandler),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(l)
	}

	l.chain = []types.Block{blockchain.NewGenesisBlock(l.now())}
	return l, nil
}

func (l *Ledger) NodeID() string { return l.nodeID }

// NewTransaction queues a transaction and returns the index of the block that
// will hold it.
func (l *Ledger) NewTransaction(sender, recipient string, amount int64) (int, error) {
	if sender == "" {
		return 0, &ValidationError{Field: "sender", Reason: "is required"}
	}
	if recipient == "" {
		return 0, &ValidationError{Field: "recipient", Reason: "is required"}
	}
	if amount < 0 {
		return 0, &ValidationError{Field: "amount", Reason: "must not be negative", Policy: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, types.Transaction{Sender: sender, Recipient: recipient, Amount: amount})
	return len(l.chain) + 1, nil
}

// NewBlock seals the pending pool into a block with the given proof and
// appends it. An empty previousHash means the hash of the current last block.
func (l *Ledger) NewBlock(proof int64, previousHash string) types.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealLocked(proof, previousHash)
}

func (l *Ledger) sealLocked(proof int64, previousHash string) types.Block {
	if previousHash == "" {
		previousHash = blockchain.Hash(l.chain[len(l.chain)-1])
	}

	b := blockchain.NewBlock(len(l.chain)+1, l.now(), l.pending, proof, previousHash)
	l.chain = append(l.chain, b)
	l.pending = nil

	l.log.Debug("block sealed", "index", b.Index, "txs", len(b.Transactions), "proof", b.Proof)
	return b.Clone()
}

func (l *Ledger) LastBlock() types.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain[len(l.chain)-1].Clone()
}

func (l *Ledger) Chain() []types.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return blockchain.CloneChain(l.chain)
}

func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

func (l *Ledger) Pending() []types.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Transaction, len(l.pending))
	copy(out, l.pending)
	return out
}

// ReplaceChain adopts candidate wholesale if it is strictly longer than the
// current chain. The caller is responsible for validating it first.
func (l *Ledger) ReplaceChain(candidate []types.Block) bool {
	own := blockchain.CloneChain(candidate)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(own) <= len(l.chain) {
		return false
	}
	old := len(l.chain)
	l.chain = own
	l.log.Info("chain replaced", "oldLength", old, "newLength", len(own))
	return true
}

// RegisterNode adds the network location of address to the peer set.
func (l *Ledger) RegisterNode(address string) error {
	_, err := l.peers.Add(address, p2p.SourceRegistered)
	return err
}

// RegisterNodes adds every address or, if any is invalid, none of them.
func (l *Ledger) RegisterNodes(addresses []string) error {
	return l.peers.AddAll(addresses, p2p.SourceRegistered)
}

func (l *Ledger) Peers() []string { return l.peers.List() }

func (l *Ledger) PeerSet() *p2p.PeerSet { return l.peers }
