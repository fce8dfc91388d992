package consensus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewPoWRange(t *testing.T) {
	for _, d := range []int{0, -1, MaxDifficulty + 1} {
		if _, err := NewPoW(d); err == nil {
			t.Errorf("NewPoW(%d) expected error", d)
		}
	}
	for _, d := range []int{1, DefaultDifficulty, MaxDifficulty} {
		p, err := NewPoW(d)
		if err != nil {
			t.Errorf("NewPoW(%d): %v", d, err)
			continue
		}
		if p.Difficulty() != d {
			t.Errorf("Difficulty() = %d, want %d", p.Difficulty(), d)
		}
	}
}

func TestDigestInput(t *testing.T) {
	// The puzzle input is the decimal proofs followed by the hash, unseparated.
	a := Digest(12, 34, "ff")
	b := Digest(1, 234, "ff")
	if a != b {
		t.Fatalf("Digest(12,34) = %s, Digest(1,234) = %s; want equal concatenations", a, b)
	}
	if Digest(12, 34, "fe") == a {
		t.Fatal("digest ignores lastHash")
	}
}

func TestSolveVerifyAgreement(t *testing.T) {
	pow := mustPoW(t, 2)

	inputs := []struct {
		lastProof int64
		lastHash  string
	}{
		{100, "1"},
		{0, ""},
		{35293, "9c1a3f0e5b7d2c4a"},
		{-5, "deadbeef"},
	}

	for _, in := range inputs {
		proof, err := pow.Solve(context.Background(), in.lastProof, in.lastHash)
		if err != nil {
			t.Fatalf("Solve(%d, %q): %v", in.lastProof, in.lastHash, err)
		}
		if !pow.Verify(in.lastProof, proof, in.lastHash) {
			t.Errorf("Verify(%d, %d, %q) = false for solved proof", in.lastProof, proof, in.lastHash)
		}
		// Solve returns the smallest candidate.
		for p := int64(0); p < proof; p++ {
			if pow.Verify(in.lastProof, p, in.lastHash) {
				t.Errorf("candidate %d verifies but Solve returned %d", p, proof)
				break
			}
		}
	}
}

func TestSolveLeadingZeros(t *testing.T) {
	pow := mustPoW(t, DefaultDifficulty)

	proof, err := pow.Solve(context.Background(), 100, "1")
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	digest := Digest(100, proof, "1")
	if !strings.HasPrefix(digest, strings.Repeat("0", DefaultDifficulty)) {
		t.Fatalf("digest %s lacks %d leading zeros", digest, DefaultDifficulty)
	}
}

func TestSolveCancelled(t *testing.T) {
	pow := mustPoW(t, MaxDifficulty)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pow.Solve(ctx, 100, "1")
	if !errors.Is(err, ErrMiningTimeout) {
		t.Fatalf("err = %v, want ErrMiningTimeout", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want it to wrap context.Canceled", err)
	}
}

func TestSolveDeadline(t *testing.T) {
	pow := mustPoW(t, MaxDifficulty)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := pow.Solve(ctx, 100, "1")
	if !errors.Is(err, ErrMiningTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want ErrMiningTimeout wrapping DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Solve returned after %s, long past its deadline", elapsed)
	}
}
