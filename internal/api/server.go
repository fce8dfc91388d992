// Package api serves a node's operations over HTTP/JSON. Shapes live in pkg/api.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/VeltarosLabs/powledger/internal/consensus"
	"github.com/VeltarosLabs/powledger/internal/ledger"
	"github.com/VeltarosLabs/powledger/internal/node"
	"github.com/VeltarosLabs/powledger/internal/p2p"
	papi "github.com/VeltarosLabs/powledger/pkg/api"
	"github.com/VeltarosLabs/powledger/pkg/types"
	"github.com/VeltarosLabs/powledger/pkg/version"
)

const maxBodyBytes = 1 << 20

type Config struct {
	APIKey         string
	AllowedOrigins []string
	MineRate       float64 // 0 disables rate limiting of /mine
	MineBurst      float64
}

type Server struct {
	cfg     Config
	svc     *node.Service
	log     *slog.Logger
	limiter *Limiter
}

func NewServer(cfg Config, svc *node.Service, log *slog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		svc: svc,
		log: log.With("component", "api"),
	}
	if cfg.MineRate > 0 {
		s.limiter = NewLimiter(cfg.MineRate, cfg.MineBurst)
	}
	return s
}

// Handler returns the routed, secured HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	var mine http.Handler = http.HandlerFunc(s.handleMine)
	if s.limiter != nil {
		mine = s.limiter.Limit(mine)
	}
	r.Handle("/mine", mine).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/transactions/new", s.handleNewTransaction).Methods(http.MethodPost)
	r.HandleFunc("/transactions/pending", s.handlePending).Methods(http.MethodGet)
	r.HandleFunc("/chain", s.handleChain).Methods(http.MethodGet)

	r.HandleFunc("/nodes", s.handlePeers).Methods(http.MethodGet)
	r.HandleFunc("/nodes/register", s.handleRegisterNodes).Methods(http.MethodPost)
	r.HandleFunc("/nodes/resolve", s.handleResolve).Methods(http.MethodGet, http.MethodPost)

	r.Use(s.logRequests)

	return SecurityMiddleware(SecurityConfig{
		AllowedOrigins: s.cfg.AllowedOrigins,
		APIKey:         s.cfg.APIKey,
		Guarded: map[string]bool{
			"/mine":           true,
			"/nodes/register": true,
			"/nodes/resolve":  true,
		},
	}, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, papi.Health{
		OK:   true,
		Time: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	v := version.Get()
	writeJSON(w, http.StatusOK, papi.VersionInfo{
		Version:   v.Version,
		Commit:    v.Commit,
		GoVersion: v.GoVersion,
		Platform:  v.Platform,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	l := s.svc.Ledger()
	started := s.svc.StartedAt()
	writeJSON(w, http.StatusOK, papi.NodeStatus{
		NodeID:     l.NodeID(),
		StartedAt:  started.Format(time.RFC3339Nano),
		UptimeSec:  int64(time.Since(started).Seconds()),
		Peers:      l.PeerSet().Len(),
		Length:     l.Length(),
		Pending:    len(l.Pending()),
		Difficulty: s.svc.Difficulty(),
	})
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Mine(r.Context())
	if err != nil {
		if errors.Is(err, consensus.ErrMiningTimeout) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, papi.MineResponse{
		Message:      "New Block Forged",
		Index:        b.Index,
		Transactions: nonNilTxs(b.Transactions),
		Proof:        b.Proof,
		PreviousHash: b.PreviousHash,
	})
}

// Pointers distinguish an absent field from its zero value.
type transactionInput struct {
	Sender    *string `json:"sender"`
	Recipient *string `json:"recipient"`
	Amount    *int64  `json:"amount"`
}

func (s *Server) handleNewTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var missing []string
	if in.Sender == nil {
		missing = append(missing, "sender")
	}
	if in.Recipient == nil {
		missing = append(missing, "recipient")
	}
	if in.Amount == nil {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing values: %v", missing))
		return
	}

	index, err := s.svc.Ledger().NewTransaction(*in.Sender, *in.Recipient, *in.Amount)
	if err != nil {
		var ve *ledger.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, papi.TransactionResponse{
		Message: fmt.Sprintf("Transaction will be added to Block %d", index),
		Index:   index,
	})
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	txs := s.svc.Ledger().Pending()
	writeJSON(w, http.StatusOK, papi.PendingResponse{
		Count:        len(txs),
		Transactions: nonNilTxs(txs),
	})
}

func (s *Server) handleChain(w http.ResponseWriter, _ *http.Request) {
	chain := s.svc.Ledger().Chain()
	writeJSON(w, http.StatusOK, papi.ChainResponse{
		Chain:  nonNilChain(chain),
		Length: len(chain),
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	snap := s.svc.Ledger().PeerSet().Snapshot()
	out := papi.PeerList{Count: len(snap), Peers: make([]papi.PeerInfo, 0, len(snap))}
	for _, p := range snap {
		out.Peers = append(out.Peers, papi.PeerInfo{
			Addr:      p.Addr,
			SeenAt:    p.SeenAt,
			Source:    p.Source,
			LastError: p.LastError,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegisterNodes(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Nodes []string `json:"nodes"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Nodes == nil {
		writeError(w, http.StatusBadRequest, "supply a valid list of nodes")
		return
	}

	l := s.svc.Ledger()
	if err := l.RegisterNodes(in.Nodes); err != nil {
		resp := papi.ErrorResponse{Error: "invalid node addresses"}
		for _, a := range in.Nodes {
			if _, perr := p2p.ParseAddress(a); perr != nil {
				resp.Invalid = append(resp.Invalid, papi.InvalidAddress{Address: a, Error: perr.Error()})
			}
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	if err := l.PeerSet().Save(); err != nil {
		s.log.Warn("peer store save failed", "err", err)
	}

	writeJSON(w, http.StatusCreated, papi.RegisterNodesResponse{
		Message:    "New nodes have been added",
		TotalNodes: l.Peers(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Resolve(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	msg := "Our chain is authoritative"
	if res.Replaced {
		msg = "Our chain was replaced"
	}
	writeJSON(w, http.StatusOK, papi.ResolveResponse{
		Message:  msg,
		Replaced: res.Replaced,
		Chain:    nonNilChain(s.svc.Ledger().Chain()),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func decodeBody(r *http.Request, out any) error {
	raw, err := readBodyLimited(r.Body, maxBodyBytes)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

func readBodyLimited(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit)
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) >= limit {
		return nil, errors.New("request too large")
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, papi.ErrorResponse{Error: msg})
}

func nonNilTxs(txs []types.Transaction) []types.Transaction {
	if txs == nil {
		return []types.Transaction{}
	}
	return txs
}

func nonNilChain(chain []types.Block) []types.Block {
	if chain == nil {
		return []types.Block{}
	}
	return chain
}
