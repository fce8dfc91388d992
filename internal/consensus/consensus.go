package consensus

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConsensus = errors.New("invalid consensus")

	// ErrMiningTimeout is returned by Solve when its context ends before a proof is found.
	ErrMiningTimeout = errors.New("mining timed out")

	// ErrMalformedChain marks a peer response whose reported length disagrees with its chain.
	ErrMalformedChain = errors.New("malformed peer chain")
)

// ChainInvalidError reports the first block of a candidate chain that fails validation.
type ChainInvalidError struct {
	Index  int // 1-based position in the candidate chain
	Reason string
}

func (e *ChainInvalidError) Error() string {
	return fmt.Sprintf("invalid chain at block %d: %s", e.Index, e.Reason)
}

func (e *ChainInvalidError) Unwrap() error { return ErrInvalidConsensus }

// PeerUnreachableError wraps a network failure or non-success response from a peer.
type PeerUnreachableError struct {
	Addr string
	Err  error
}

func (e *PeerUnreachableError) Error() string {
	return fmt.Sprintf("peer %s unreachable: %v", e.Addr, e.Err)
}

func (e *PeerUnreachableError) Unwrap() error { return e.Err }
