package p2p

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/VeltarosLabs/powledger/internal/consensus"
	"github.com/VeltarosLabs/powledger/pkg/api"
)

type FetcherConfig struct {
	Timeout         time.Duration // per attempt
	Retries         int           // extra attempts after the first
	InitialInterval time.Duration
	MaxChainBytes   int64 // cap on one /chain body; 0 uses api.DefaultMaxResponseBytes
	HTTPClient      *http.Client
}

// HTTPFetcher reads a peer's chain from its GET /chain endpoint, retrying
// transient failures with exponential backoff.
type HTTPFetcher struct {
	cfg FetcherConfig
}

func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 250 * time.Millisecond
	}
	if cfg.MaxChainBytes <= 0 {
		cfg.MaxChainBytes = api.DefaultMaxResponseBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &HTTPFetcher{cfg: cfg}
}

func (f *HTTPFetcher) FetchChain(ctx context.Context, addr string) (consensus.Candidate, error) {
	cl, err := api.New("http://"+addr,
		api.WithHTTPClient(f.cfg.HTTPClient),
		api.WithMaxResponseBytes(f.cfg.MaxChainBytes),
	)
	if err != nil {
		return consensus.Candidate{}, &consensus.PeerUnreachableError{Addr: addr, Err: err}
	}

	var resp api.ChainResponse
	op := func() error {
		actx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()

		r, err := cl.Chain(actx)
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(op, f.newBackOff(ctx)); err != nil {
		return consensus.Candidate{}, &consensus.PeerUnreachableError{Addr: addr, Err: err}
	}
	return consensus.Candidate{Length: resp.Length, Chain: resp.Chain}, nil
}

func (f *HTTPFetcher) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.cfg.InitialInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(f.cfg.Retries)), ctx)
}

// A client error, a body that does not decode or an oversized body will not
// improve on retry.
func permanent(err error) bool {
	var se *api.StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500
	}
	var de *api.DecodeError
	return errors.As(err, &de)
}
