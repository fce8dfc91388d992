// Package node wires the ledger, proof-of-work and conflict resolution into
// the operations a powledger node exposes, and runs its background loops.
package node

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/VeltarosLabs/powledger/internal/consensus"
	"github.com/VeltarosLabs/powledger/internal/ledger"
	"github.com/VeltarosLabs/powledger/pkg/types"
)

type Config struct {
	PoWTimeout      time.Duration
	MineInterval    time.Duration // 0 disables the background miner
	ResolveInterval time.Duration // 0 disables periodic resolution
}

type Service struct {
	cfg       Config
	ledger    *ledger.Ledger
	pow       *consensus.PoW
	resolver  *consensus.Resolver
	log       *slog.Logger
	startedAt time.Time

	// one proof search per node at a time
	mineMu sync.Mutex
}

func New(cfg Config, l *ledger.Ledger, pow *consensus.PoW, resolver *consensus.Resolver, log *slog.Logger) (*Service, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if pow == nil {
		return nil, errors.New("pow is required")
	}
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.PoWTimeout <= 0 {
		cfg.PoWTimeout = 2 * time.Minute
	}
	return &Service{
		cfg:       cfg,
		ledger:    l,
		pow:       pow,
		resolver:  resolver,
		log:       log.With("component", "node"),
		startedAt: time.Now().UTC(),
	}, nil
}

func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

func (s *Service) Difficulty() int { return s.pow.Difficulty() }

func (s *Service) StartedAt() time.Time { return s.startedAt }

// Mine runs one bounded proof search and seals the next block, crediting the
// reward to this node. It returns consensus.ErrMiningTimeout when the search
// exceeds the configured timeout.
func (s *Service) Mine(ctx context.Context) (types.Block, error) {
	s.mineMu.Lock()
	defer s.mineMu.Unlock()

	// The search budget starts once this call owns the miner.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PoWTimeout)
	defer cancel()

	start := time.Now()
	b, err := s.ledger.Mine(ctx, s.pow)
	if err != nil {
		s.log.Warn("mining failed", "err", err, "elapsed", time.Since(start))
		return types.Block{}, err
	}
	s.log.Info("new block forged", "index", b.Index, "elapsed", time.Since(start))
	return b, nil
}

// Resolve reconciles the local chain with every registered peer and notes
// each peer's outcome in the peer set.
func (s *Service) Resolve(ctx context.Context) (consensus.Result, error) {
	res, err := s.resolver.Resolve(ctx, s.ledger)
	peers := s.ledger.PeerSet()
	for _, o := range res.Outcomes {
		peers.Record(o.Addr, o.Err)
	}
	return res, err
}

// Run drives the background miner and periodic resolution until ctx ends.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if s.cfg.MineInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, s.cfg.MineInterval, func() {
				if _, err := s.Mine(ctx); err != nil && ctx.Err() == nil {
					s.log.Error("background mining", "err", err)
				}
			})
		}()
	}

	if s.cfg.ResolveInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, s.cfg.ResolveInterval, func() {
				res, err := s.Resolve(ctx)
				if err != nil {
					return
				}
				s.log.Debug("periodic resolution", "replaced", res.Replaced, "peers", len(res.Outcomes))
			})
		}()
	}

	wg.Wait()
}

func (s *Service) loop(ctx context.Context, every time.Duration, fn func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
