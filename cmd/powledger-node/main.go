package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/VeltarosLabs/powledger/internal/api"
	"github.com/VeltarosLabs/powledger/internal/config"
	"github.com/VeltarosLabs/powledger/internal/consensus"
	"github.com/VeltarosLabs/powledger/internal/ledger"
	"github.com/VeltarosLabs/powledger/internal/logging"
	"github.com/VeltarosLabs/powledger/internal/node"
	"github.com/VeltarosLabs/powledger/internal/p2p"
	"github.com/VeltarosLabs/powledger/pkg/version"
)

func main() {
	parsed, err := config.ParseNodeFlags(os.Args[1:])
	if err != nil {
		os.Exit(exitWithError(err))
	}
	cfg := parsed.Config

	log := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	nodeID := cfg.Node.ID
	if nodeID == "" {
		nodeID = ksuid.New().String()
	}

	var store *p2p.PeerStore
	if cfg.Peers.StorePath != "" {
		store = p2p.NewPeerStore(cfg.Peers.StorePath)
	}
	peers := p2p.NewPeerSet(store)
	if err := peers.Load(); err != nil {
		os.Exit(exitWithError(err))
	}
	for _, a := range cfg.Peers.Bootstrap {
		if _, err := peers.Add(a, p2p.SourceBootstrap); err != nil {
			log.Warn("bootstrap peer ignored", "addr", a, "err", err)
		}
	}

	led, err := ledger.New(nodeID, peers, ledger.WithLogger(log))
	if err != nil {
		os.Exit(exitWithError(err))
	}

	pow, err := consensus.NewPoW(cfg.PoW.Difficulty)
	if err != nil {
		os.Exit(exitWithError(err))
	}

	fetcher := p2p.NewHTTPFetcher(p2p.FetcherConfig{
		Timeout:       cfg.Consensus.FetchTimeout,
		Retries:       cfg.Consensus.Retries,
		MaxChainBytes: cfg.Consensus.MaxChainSize,
	})
	resolver, err := consensus.NewResolver(consensus.NewValidator(pow), fetcher, cfg.Consensus.MaxParallel, log)
	if err != nil {
		os.Exit(exitWithError(err))
	}

	svc, err := node.New(node.Config{
		PoWTimeout:      cfg.PoW.Timeout,
		MineInterval:    cfg.Node.MineInterval,
		ResolveInterval: cfg.Consensus.Interval,
	}, led, pow, resolver, log)
	if err != nil {
		os.Exit(exitWithError(err))
	}

	log.Info("node starting",
		"nodeID", nodeID,
		"version", version.Get().Version,
		"difficulty", pow.Difficulty(),
		"peers", peers.Len(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx)
	}()

	apiSrv := startAPI(log, cfg.API, svc)

	waitForShutdown(log)
	cancel()
	<-done

	cctx, ccancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer ccancel()
	_ = apiSrv.Shutdown(cctx)

	if err := peers.Save(); err != nil {
		log.Warn("peer store save failed", "err", err)
	}
	log.Info("shutdown complete")
}

func startAPI(log *slog.Logger, cfg config.APIConfig, svc *node.Service) *http.Server {
	server := api.NewServer(api.Config{
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		MineRate:       cfg.MineRate,
		MineBurst:      cfg.MineBurst,
	}, svc, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info("api listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server error", "err", err)
		}
	}()

	return srv
}

func waitForShutdown(log *slog.Logger) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info("shutdown signal received", "signal", s.String())
}

func exitWithError(err error) int {
	_, _ = os.Stderr.WriteString("powledger-node error: " + err.Error() + "\n")
	return 1
}
