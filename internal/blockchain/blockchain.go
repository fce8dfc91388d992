package blockchain

import (
	"errors"

	"github.com/VeltarosLabs/powledger/pkg/types"
)

var ErrEmptyChain = errors.New("empty chain")

// Tip returns the last block of chain.
func Tip(chain []types.Block) (types.Block, error) {
	if len(chain) == 0 {
		return types.Block{}, ErrEmptyChain
	}
	return chain[len(chain)-1], nil
}

// CloneChain deep-copies chain so callers cannot alias ledger-owned blocks.
func CloneChain(chain []types.Block) []types.Block {
	out := make([]types.Block, len(chain))
	for i := range chain {
		out[i] = chain[i].Clone()
	}
	return out
}
