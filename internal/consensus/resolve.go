package consensus

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/VeltarosLabs/powledger/pkg/types"
)

const DefaultMaxParallel = 8

// Candidate is a peer's view of its chain as reported over the wire.
type Candidate struct {
	Length int
	Chain  []types.Block
}

// Fetcher retrieves the chain held by the peer at addr.
type Fetcher interface {
	FetchChain(ctx context.Context, addr string) (Candidate, error)
}

type FetcherFunc func(ctx context.Context, addr string) (Candidate, error)

func (f FetcherFunc) FetchChain(ctx context.Context, addr string) (Candidate, error) {
	return f(ctx, addr)
}

// Target is the local chain holder the resolver reconciles.
type Target interface {
	Peers() []string
	Length() int
	// ReplaceChain swaps in candidate only if it is still strictly longer than
	// the local chain, and reports whether it did.
	ReplaceChain(candidate []types.Block) bool
}

// PeerOutcome is what resolution learned about one peer. Err is nil for peers
// that answered with a valid chain, whether or not it was long enough to matter.
type PeerOutcome struct {
	Addr      string
	Length    int
	Candidate bool // strictly longer than local and valid
	Err       error
}

type Result struct {
	Replaced bool
	Outcomes []PeerOutcome
}

type Resolver struct {
	validator   *Validator
	fetcher     Fetcher
	maxParallel int
	log         *slog.Logger
}

func NewResolver(v *Validator, f Fetcher, maxParallel int, log *slog.Logger) (*Resolver, error) {
	if v == nil {
		return nil, errors.New("validator is required")
	}
	if f == nil {
		return nil, errors.New("fetcher is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &Resolver{
		validator:   v,
		fetcher:     f,
		maxParallel: maxParallel,
		log:         log.With("component", "consensus"),
	}, nil
}

// Resolve fetches every peer's chain and adopts the longest valid one that is
// strictly longer than the local chain. Peer failures only exclude that peer;
// the returned error is non-nil only when ctx ends. Among equally long winners
// the peer whose address sorts first is chosen.
func (r *Resolver) Resolve(ctx context.Context, target Target) (Result, error) {
	peers := slices.Clone(target.Peers())
	slices.Sort(peers)
	local := target.Length()

	outcomes := make([]PeerOutcome, len(peers))
	chains := make([][]types.Block, len(peers))

	sem := make(chan struct{}, r.maxParallel)
	var wg sync.WaitGroup
	for i, addr := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = PeerOutcome{Addr: addr, Err: &PeerUnreachableError{Addr: addr, Err: ctx.Err()}}
				return
			}
			defer func() { <-sem }()
			outcomes[i], chains[i] = r.examine(ctx, addr, local)
		}()
	}
	wg.Wait()

	res := Result{Outcomes: outcomes}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	best := -1
	for i := range peers {
		if chains[i] == nil {
			continue
		}
		if best < 0 || len(chains[i]) > len(chains[best]) {
			best = i
		}
	}
	if best < 0 {
		r.log.Debug("local chain kept", "length", local, "peers", len(peers))
		return res, nil
	}

	res.Replaced = target.ReplaceChain(chains[best])
	if res.Replaced {
		r.log.Info("chain replaced", "peer", peers[best], "oldLength", local, "newLength", len(chains[best]))
	} else {
		r.log.Info("candidate chain no longer longer than local", "peer", peers[best], "length", len(chains[best]))
	}
	return res, nil
}

func (r *Resolver) examine(ctx context.Context, addr string, local int) (PeerOutcome, []types.Block) {
	out := PeerOutcome{Addr: addr}

	cand, err := r.fetcher.FetchChain(ctx, addr)
	if err != nil {
		var unreachable *PeerUnreachableError
		if !errors.As(err, &unreachable) {
			err = &PeerUnreachableError{Addr: addr, Err: err}
		}
		out.Err = err
		r.log.Debug("peer skipped", "peer", addr, "err", err)
		return out, nil
	}

	out.Length = cand.Length
	if cand.Length != len(cand.Chain) {
		out.Err = &PeerUnreachableError{Addr: addr, Err: ErrMalformedChain}
		r.log.Debug("peer skipped", "peer", addr, "reported", cand.Length, "actual", len(cand.Chain))
		return out, nil
	}
	if cand.Length <= local {
		return out, nil
	}

	if err := r.validator.Validate(cand.Chain); err != nil {
		out.Err = err
		r.log.Warn("peer chain rejected", "peer", addr, "length", cand.Length, "err", err)
		return out, nil
	}

	out.Candidate = true
	return out, cand.Chain
}
