package ledger

import (
	"context"

	"github.com/VeltarosLabs/powledger/internal/blockchain"
	"github.com/VeltarosLabs/powledger/internal/consensus"
	"github.com/VeltarosLabs/powledger/pkg/types"
)

// MiningReward is credited to the node for every block it mines.
const MiningReward int64 = 1

// Mine solves the puzzle for the current tip without holding the lock, then
// credits the reward and seals a block in one critical section. If the tip
// moved while solving, the search restarts on the new tip.
func (l *Ledger) Mine(ctx context.Context, pow *consensus.PoW) (types.Block, error) {
	for {
		last := l.LastBlock()
		lastHash := blockchain.Hash(last)

		proof, err := pow.Solve(ctx, last.Proof, lastHash)
		if err != nil {
			return types.Block{}, err
		}

		l.mu.Lock()
		tip := l.chain[len(l.chain)-1]
		if tip.Index != last.Index || blockchain.Hash(tip) != lastHash {
			l.mu.Unlock()
			l.log.Debug("tip moved while mining, retrying", "was", last.Index, "now", tip.Index)
			continue
		}

		l.pending = append(l.pending, types.Transaction{
			Sender:    types.RewardSender,
			Recipient: l.nodeID,
			Amount:    MiningReward,
		})
		b := l.sealLocked(proof, lastHash)
		l.mu.Unlock()

		l.log.Info("block mined", "index", b.Index, "proof", proof, "txs", len(b.Transactions))
		return b, nil
	}
}
