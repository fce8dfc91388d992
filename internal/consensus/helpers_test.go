package consensus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/VeltarosLabs/powledger/internal/blockchain"
	"github.com/VeltarosLabs/powledger/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func mustPoW(t *testing.T, difficulty int) *PoW {
	t.Helper()
	p, err := NewPoW(difficulty)
	if err != nil {
		t.Fatalf("NewPoW(%d): %v", difficulty, err)
	}
	return p
}

// buildChain mines a valid chain of n blocks; miner makes chains of equal
// length distinguishable.
func buildChain(t *testing.T, pow *PoW, n int, miner string) []types.Block {
	t.Helper()

	start := time.Unix(1700000000, 0).UTC()
	chain := []types.Block{blockchain.NewGenesisBlock(start)}
	for len(chain) < n {
		prev := chain[len(chain)-1]
		prevHash := blockchain.Hash(prev)

		proof, err := pow.Solve(context.Background(), prev.Proof, prevHash)
		if err != nil {
			t.Fatalf("Solve: %v", err)
		}
		txs := []types.Transaction{{Sender: types.RewardSender, Recipient: miner, Amount: 1}}
		at := start.Add(time.Duration(len(chain)) * time.Second)
		chain = append(chain, blockchain.NewBlock(len(chain)+1, at, txs, proof, prevHash))
	}
	return chain
}

// invalidProof returns a proof near from that does not satisfy the puzzle.
func invalidProof(pow *PoW, lastProof, from int64, lastHash string) int64 {
	p := from
	for pow.Verify(lastProof, p, lastHash) {
		p++
	}
	return p
}
