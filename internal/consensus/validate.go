package consensus

import (
	"github.com/VeltarosLabs/powledger/internal/blockchain"
	"github.com/VeltarosLabs/powledger/pkg/types"
)

// Validator checks hash linkage and proof-of-work across a whole chain. The
// first block must carry the genesis index and previous hash; its other
// fields are not constrained. Safe for concurrent use.
type Validator struct {
	pow *PoW
}

func NewValidator(pow *PoW) *Validator {
	return &Validator{pow: pow}
}

func (v *Validator) IsValid(chain []types.Block) bool {
	return v.Validate(chain) == nil
}

// Validate returns a *ChainInvalidError describing the first failing block, or nil.
func (v *Validator) Validate(chain []types.Block) error {
	if len(chain) == 0 {
		return &ChainInvalidError{Index: 0, Reason: "chain is empty"}
	}

	prev := chain[0]
	if prev.Index != blockchain.GenesisIndex {
		return &ChainInvalidError{Index: 1, Reason: "first block does not carry the genesis index"}
	}
	if prev.PreviousHash != blockchain.GenesisPrevHash {
		return &ChainInvalidError{Index: 1, Reason: "first block does not carry the genesis previous_hash"}
	}

	for i := 1; i < len(chain); i++ {
		curr := chain[i]

		if curr.Index != prev.Index+1 {
			return &ChainInvalidError{Index: i + 1, Reason: "index does not follow previous block"}
		}

		prevHash := blockchain.Hash(prev)
		if curr.PreviousHash != prevHash {
			return &ChainInvalidError{Index: i + 1, Reason: "previous_hash does not match hash of previous block"}
		}
		if !v.pow.Verify(prev.Proof, curr.Proof, prevHash) {
			return &ChainInvalidError{Index: i + 1, Reason: "proof of work does not verify"}
		}

		prev = curr
	}
	return nil
}
