package consensus

import (
	"errors"
	"testing"

	"github.com/VeltarosLabs/powledger/internal/blockchain"
	"github.com/VeltarosLabs/powledger/pkg/types"
)

func TestValidateMinedChain(t *testing.T) {
	pow := mustPoW(t, 2)
	v := NewValidator(pow)

	for _, n := range []int{1, 2, 5} {
		chain := buildChain(t, pow, n, "miner")
		if err := v.Validate(chain); err != nil {
			t.Errorf("chain of %d blocks: %v", n, err)
		}
		if !v.IsValid(chain) {
			t.Errorf("IsValid(chain of %d) = false", n)
		}
	}
}

func TestValidateEmptyChain(t *testing.T) {
	v := NewValidator(mustPoW(t, 2))
	if v.IsValid(nil) {
		t.Fatal("empty chain reported valid")
	}
}

func TestValidateTamper(t *testing.T) {
	pow := mustPoW(t, 2)
	v := NewValidator(pow)

	tests := []struct {
		name    string
		mutate  func(chain []types.Block)
		wantIdx int
	}{
		{
			name:    "previous_hash of last block",
			mutate:  func(c []types.Block) { c[3].PreviousHash = blockchain.Hash(c[1]) },
			wantIdx: 4,
		},
		{
			name:    "previous_hash of middle block",
			mutate:  func(c []types.Block) { c[1].PreviousHash = "1" },
			wantIdx: 2,
		},
		{
			name: "proof of last block",
			mutate: func(c []types.Block) {
				prevHash := blockchain.Hash(c[2])
				c[3].Proof = invalidProof(pow, c[2].Proof, c[3].Proof+1, prevHash)
			},
			wantIdx: 4,
		},
		{
			name:    "proof of middle block",
			mutate:  func(c []types.Block) { c[2].Proof++ },
			wantIdx: 3, // its own proof or, failing that, the next link
		},
		{
			name:    "transactions of middle block",
			mutate:  func(c []types.Block) { c[1].Transactions[0].Amount = 50 },
			wantIdx: 3,
		},
		{
			name:    "genesis content",
			mutate:  func(c []types.Block) { c[0].Proof = 101 },
			wantIdx: 2,
		},
		{
			name: "indices offset from genesis",
			mutate: func(c []types.Block) {
				for i := range c {
					c[i].Index += 4
				}
			},
			wantIdx: 1,
		},
		{
			name:    "first block previous_hash",
			mutate:  func(c []types.Block) { c[0].PreviousHash = "0" },
			wantIdx: 1,
		},
		{
			name:    "index gap",
			mutate:  func(c []types.Block) { c[2].Index = 7 },
			wantIdx: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := buildChain(t, pow, 4, "miner")
			tt.mutate(chain)

			err := v.Validate(chain)
			if err == nil {
				t.Fatal("tampered chain reported valid")
			}
			var ce *ChainInvalidError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %T, want *ChainInvalidError", err)
			}
			if tt.name == "proof of middle block" {
				if ce.Index != 3 && ce.Index != 4 {
					t.Fatalf("failing index = %d, want 3 or 4", ce.Index)
				}
			} else if ce.Index != tt.wantIdx {
				t.Fatalf("failing index = %d, want %d (%v)", ce.Index, tt.wantIdx, err)
			}
			if !errors.Is(err, ErrInvalidConsensus) {
				t.Fatal("ChainInvalidError does not unwrap to ErrInvalidConsensus")
			}
		})
	}
}

func TestValidateBindsToPreviousBlockHash(t *testing.T) {
	pow := mustPoW(t, 2)
	v := NewValidator(pow)

	chain := buildChain(t, pow, 2, "miner")
	// A proof solved against the genesis previous_hash instead of the
	// genesis block hash must not be accepted.
	g := chain[0]
	var proof int64
	for p := int64(0); ; p++ {
		if pow.Verify(g.Proof, p, g.PreviousHash) && !pow.Verify(g.Proof, p, blockchain.Hash(g)) {
			proof = p
			break
		}
	}
	chain[1].Proof = proof

	if v.IsValid(chain) {
		t.Fatal("chain bound to previous_hash of the prior block was accepted")
	}
}
