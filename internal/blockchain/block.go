package blockchain

import (
	"encoding/json"
	"time"

	vcrypto "github.com/VeltarosLabs/powledger/internal/crypto"
	"github.com/VeltarosLabs/powledger/pkg/types"
)

const (
	GenesisIndex        = 1
	GenesisProof  int64 = 100
	GenesisPrevHash     = "1"
)

func NewGenesisBlock(now time.Time) types.Block {
	return NewBlock(GenesisIndex, now, nil, GenesisProof, GenesisPrevHash)
}

func NewBlock(index int, now time.Time, txs []types.Transaction, proof int64, prevHash string) types.Block {
	own := make([]types.Transaction, len(txs))
	copy(own, txs)
	return types.Block{
		Index:        index,
		Timestamp:    Timestamp(now),
		Transactions: own,
		Proof:        proof,
		PreviousHash: prevHash,
	}
}

// Timestamp renders t as fractional unix seconds.
func Timestamp(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// CanonicalBytes serializes b as JSON with every object's keys sorted, so the
// result depends only on the block's field values.
func CanonicalBytes(b types.Block) ([]byte, error) {
	txs := make([]map[string]any, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txs = append(txs, map[string]any{
			"sender":    tx.Sender,
			"recipient": tx.Recipient,
			"amount":    tx.Amount,
		})
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(map[string]any{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"transactions":  txs,
		"proof":         b.Proof,
		"previous_hash": b.PreviousHash,
	})
}

// Hash returns the hex SHA-256 of the block's canonical form. A block that
// cannot be serialized (non-finite timestamp) hashes to "", which never
// matches a real link.
func Hash(b types.Block) string {
	buf, err := CanonicalBytes(b)
	if err != nil {
		return ""
	}
	return vcrypto.Sha256Hex(buf)
}
