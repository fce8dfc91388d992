package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/VeltarosLabs/powledger/internal/consensus"
)

type Config struct {
	Node      NodeConfig
	PoW       PoWConfig
	Consensus ConsensusConfig
	Peers     PeersConfig
	API       APIConfig
	Log       LogConfig
}

type NodeConfig struct {
	ID           string        // mining-reward recipient; generated when empty
	MineInterval time.Duration // 0 disables the background miner
}

type PoWConfig struct {
	Difficulty int
	Timeout    time.Duration
}

type ConsensusConfig struct {
	Interval     time.Duration // 0 disables periodic resolution
	FetchTimeout time.Duration
	Retries      int
	MaxParallel  int
	MaxChainSize int64 // bytes accepted for one peer /chain response
}

type PeersConfig struct {
	Bootstrap []string
	StorePath string // empty disables persistence of registered peers
}

type APIConfig struct {
	ListenAddr     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	APIKey         string
	AllowedOrigins []string
	MineRate       float64 // /mine requests per second per client, 0 disables
	MineBurst      float64
}

type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // json|text
}

func Default() Config {
	return Config{
		Node: NodeConfig{
			ID:           "",
			MineInterval: 0,
		},
		PoW: PoWConfig{
			Difficulty: consensus.DefaultDifficulty,
			Timeout:    2 * time.Minute,
		},
		Consensus: ConsensusConfig{
			Interval:     0,
			FetchTimeout: 5 * time.Second,
			Retries:      2,
			MaxParallel:  consensus.DefaultMaxParallel,
			MaxChainSize: 32 << 20,
		},
		Peers: PeersConfig{
			Bootstrap: []string{},
			StorePath: "",
		},
		API: APIConfig{
			ListenAddr:   "0.0.0.0:5000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 3 * time.Minute, // /mine may search up to pow.timeout
			IdleTimeout:  60 * time.Second,
			MineRate:     1,
			MineBurst:    3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

type Parsed struct {
	Config Config
}

func ParseNodeFlags(args []string) (Parsed, error) {
	cfg := Default()

	fs := flag.NewFlagSet("powledger-node", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var (
		nodeID       = fs.String("node.id", envOr("POWLEDGER_NODE_ID", cfg.Node.ID), "Node identifier credited with mining rewards (random when empty)")
		mineInterval = fs.Duration("mine.interval", envOrDuration("POWLEDGER_MINE_INTERVAL", cfg.Node.MineInterval), "Background mining interval (0 disables)")

		difficulty = fs.Int("pow.difficulty", envOrInt("POWLEDGER_POW_DIFFICULTY", cfg.PoW.Difficulty), "Leading hex zeros required of a proof")
		powTimeout = fs.Duration("pow.timeout", envOrDuration("POWLEDGER_POW_TIMEOUT", cfg.PoW.Timeout), "Maximum time spent searching for one proof")

		consInterval = fs.Duration("consensus.interval", envOrDuration("POWLEDGER_CONSENSUS_INTERVAL", cfg.Consensus.Interval), "Periodic conflict resolution interval (0 disables)")
		fetchTimeout = fs.Duration("consensus.fetchTimeout", envOrDuration("POWLEDGER_CONSENSUS_FETCH_TIMEOUT", cfg.Consensus.FetchTimeout), "Timeout for one peer chain fetch attempt")
		retries      = fs.Int("consensus.retries", envOrInt("POWLEDGER_CONSENSUS_RETRIES", cfg.Consensus.Retries), "Retries per peer fetch after the first attempt")
		maxParallel  = fs.Int("consensus.maxParallel", envOrInt("POWLEDGER_CONSENSUS_MAX_PARALLEL", cfg.Consensus.MaxParallel), "Peers fetched concurrently during resolution")
		maxChainSize = fs.Int64("consensus.maxChainBytes", int64(envOrInt("POWLEDGER_CONSENSUS_MAX_CHAIN_BYTES", int(cfg.Consensus.MaxChainSize))), "Largest peer /chain response accepted, in bytes")

		bootstrap = fs.String("peers", envOr("POWLEDGER_PEERS", ""), "Comma-separated peers registered at startup (host:port or URL)")
		peerStore = fs.String("peers.store", envOr("POWLEDGER_PEERS_STORE", cfg.Peers.StorePath), "Path to a JSON file persisting registered peers (optional)")

		apiListen  = fs.String("api.listen", envOr("POWLEDGER_API_LISTEN", cfg.API.ListenAddr), "HTTP API listen address (ip:port)")
		apiKey     = fs.String("api.key", envOr("POWLEDGER_API_KEY", cfg.API.APIKey), "API key required for mining and peer management (optional)")
		apiOrigins = fs.String("api.origins", envOr("POWLEDGER_API_ORIGINS", ""), "Comma-separated CORS origins")
		mineRate   = fs.Float64("api.mineRate", envOrFloat("POWLEDGER_API_MINE_RATE", cfg.API.MineRate), "Allowed /mine requests per second per client (0 disables)")

		logLevel  = fs.String("log.level", envOr("POWLEDGER_LOG_LEVEL", cfg.Log.Level), "Log level: debug|info|warn|error")
		logFormat = fs.String("log.format", envOr("POWLEDGER_LOG_FORMAT", cfg.Log.Format), "Log format: json|text")
	)

	if err := fs.Parse(args); err != nil {
		return Parsed{}, err
	}

	cfg.Node.ID = strings.TrimSpace(*nodeID)
	cfg.Node.MineInterval = *mineInterval

	cfg.PoW.Difficulty = *difficulty
	cfg.PoW.Timeout = *powTimeout

	cfg.Consensus.Interval = *consInterval
	cfg.Consensus.FetchTimeout = *fetchTimeout
	cfg.Consensus.Retries = *retries
	cfg.Consensus.MaxParallel = *maxParallel
	cfg.Consensus.MaxChainSize = *maxChainSize

	if b := strings.TrimSpace(*bootstrap); b != "" {
		cfg.Peers.Bootstrap = splitCSV(b)
	}
	cfg.Peers.StorePath = strings.TrimSpace(*peerStore)

	cfg.API.ListenAddr = strings.TrimSpace(*apiListen)
	cfg.API.APIKey = strings.TrimSpace(*apiKey)
	if o := strings.TrimSpace(*apiOrigins); o != "" {
		cfg.API.AllowedOrigins = splitCSV(o)
	}
	cfg.API.MineRate = *mineRate

	cfg.Log.Level = strings.TrimSpace(*logLevel)
	cfg.Log.Format = strings.TrimSpace(*logFormat)

	if err := validate(cfg); err != nil {
		return Parsed{}, err
	}

	return Parsed{Config: cfg}, nil
}

func validate(cfg Config) error {
	if cfg.PoW.Difficulty < 1 || cfg.PoW.Difficulty > consensus.MaxDifficulty {
		return fmt.Errorf("pow.difficulty out of range: %d", cfg.PoW.Difficulty)
	}
	if cfg.PoW.Timeout <= 0 {
		return errors.New("pow.timeout must be > 0")
	}
	if cfg.Node.MineInterval < 0 {
		return errors.New("mine.interval must not be negative")
	}
	if cfg.Consensus.Interval < 0 {
		return errors.New("consensus.interval must not be negative")
	}
	if cfg.Consensus.FetchTimeout <= 0 {
		return errors.New("consensus.fetchTimeout must be > 0")
	}
	if cfg.Consensus.Retries < 0 || cfg.Consensus.Retries > 10 {
		return fmt.Errorf("consensus.retries out of range: %d", cfg.Consensus.Retries)
	}
	if cfg.Consensus.MaxParallel <= 0 || cfg.Consensus.MaxParallel > 256 {
		return fmt.Errorf("consensus.maxParallel out of range: %d", cfg.Consensus.MaxParallel)
	}
	if cfg.Consensus.MaxChainSize <= 0 {
		return errors.New("consensus.maxChainBytes must be > 0")
	}
	if cfg.API.ListenAddr == "" {
		return errors.New("api.listen must not be empty")
	}
	if cfg.API.MineRate < 0 {
		return errors.New("api.mineRate must not be negative")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format: %q", cfg.Log.Format)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envOrInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := strings.TrimSpace(r)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
