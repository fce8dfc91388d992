package consensus

import (
	"context"
	"fmt"
	"strconv"

	vcrypto "github.com/VeltarosLabs/powledger/internal/crypto"
)

const (
	DefaultDifficulty = 4
	MaxDifficulty     = 64

	// ctx is polled once per this many candidates.
	ctxCheckEvery = 1 << 12
)

// PoW finds and checks proofs p' such that sha256(p || p' || lastHash), in hex,
// starts with Difficulty zero characters. p is the previous block's proof and
// lastHash the previous block's hash.
type PoW struct {
	difficulty int
}

func NewPoW(difficulty int) (*PoW, error) {
	if difficulty < 1 || difficulty > MaxDifficulty {
		return nil, fmt.Errorf("pow difficulty out of range [1,%d]: %d", MaxDifficulty, difficulty)
	}
	return &PoW{difficulty: difficulty}, nil
}

func (p *PoW) Difficulty() int { return p.difficulty }

// Digest is the hex digest the puzzle is evaluated on.
func Digest(lastProof, proof int64, lastHash string) string {
	buf := make([]byte, 0, 40+len(lastHash))
	buf = strconv.AppendInt(buf, lastProof, 10)
	buf = strconv.AppendInt(buf, proof, 10)
	buf = append(buf, lastHash...)
	return vcrypto.Sha256Hex(buf)
}

func (p *PoW) Verify(lastProof, proof int64, lastHash string) bool {
	return vcrypto.HasZeroPrefix(Digest(lastProof, proof, lastHash), p.difficulty)
}

// Solve searches candidates 0, 1, 2, ... until one verifies. It blocks until a
// proof is found or ctx ends, in which case the error wraps ErrMiningTimeout.
func (p *PoW) Solve(ctx context.Context, lastProof int64, lastHash string) (int64, error) {
	for proof := int64(0); ; proof++ {
		if proof%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, fmt.Errorf("%w after %d candidates: %w", ErrMiningTimeout, proof, err)
			}
		}
		if p.Verify(lastProof, proof, lastHash) {
			return proof, nil
		}
	}
}
