package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VeltarosLabs/powledger/pkg/version"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("http %s %s: status %d", e.Method, e.Path, e.Code)
}

// DecodeError is returned when a 2xx response body does not match the expected shape.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrResponseTooLarge is wrapped in a DecodeError when a response body exceeds
// the client's limit.
var ErrResponseTooLarge = errors.New("response body exceeds limit")

const (
	maxErrorBody = 4 << 10

	DefaultMaxResponseBytes = 32 << 20
)

type Client struct {
	baseURL  string
	http     *http.Client
	apiKey   string
	maxBytes int64
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithAPIKey sends key as X-API-Key on every request.
func WithAPIKey(key string) Option {
	return func(cl *Client) {
		cl.apiKey = strings.TrimSpace(key)
	}
}

// WithMaxResponseBytes caps how much of a 2xx body is read. n <= 0 keeps the default.
func WithMaxResponseBytes(n int64) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxBytes = n
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("baseURL must not be empty")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cl := &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxBytes: DefaultMaxResponseBytes,
	}
	for _, o := range opts {
		o(cl)
	}
	return cl, nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var out VersionInfo
	if err := c.do(ctx, http.MethodGet, "/version", nil, &out); err != nil {
		return VersionInfo{}, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context) (NodeStatus, error) {
	var out NodeStatus
	if err := c.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return NodeStatus{}, err
	}
	return out, nil
}

func (c *Client) Chain(ctx context.Context) (ChainResponse, error) {
	var out ChainResponse
	if err := c.do(ctx, http.MethodGet, "/chain", nil, &out); err != nil {
		return ChainResponse{}, err
	}
	return out, nil
}

func (c *Client) Mine(ctx context.Context) (MineResponse, error) {
	var out MineResponse
	if err := c.do(ctx, http.MethodGet, "/mine", nil, &out); err != nil {
		return MineResponse{}, err
	}
	return out, nil
}

func (c *Client) NewTransaction(ctx context.Context, tx TransactionRequest) (TransactionResponse, error) {
	var out TransactionResponse
	if err := c.do(ctx, http.MethodPost, "/transactions/new", tx, &out); err != nil {
		return TransactionResponse{}, err
	}
	return out, nil
}

func (c *Client) Pending(ctx context.Context) (PendingResponse, error) {
	var out PendingResponse
	if err := c.do(ctx, http.MethodGet, "/transactions/pending", nil, &out); err != nil {
		return PendingResponse{}, err
	}
	return out, nil
}

func (c *Client) RegisterNodes(ctx context.Context, nodes []string) (RegisterNodesResponse, error) {
	var out RegisterNodesResponse
	if err := c.do(ctx, http.MethodPost, "/nodes/register", RegisterNodesRequest{Nodes: nodes}, &out); err != nil {
		return RegisterNodesResponse{}, err
	}
	return out, nil
}

func (c *Client) Peers(ctx context.Context) (PeerList, error) {
	var out PeerList
	if err := c.do(ctx, http.MethodGet, "/nodes", nil, &out); err != nil {
		return PeerList{}, err
	}
	return out, nil
}

func (c *Client) Resolve(ctx context.Context) (ResolveResponse, error) {
	var out ResolveResponse
	if err := c.do(ctx, http.MethodGet, "/nodes/resolve", nil, &out); err != nil {
		return ResolveResponse{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: method, Path: path, Code: resp.StatusCode}
		var er ErrorResponse
		if raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil && json.Unmarshal(raw, &er) == nil {
			se.Message = er.Error
		}
		return se
	}

	dec := json.NewDecoder(&cappedReader{r: resp.Body, left: c.maxBytes})
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

// cappedReader yields at most left bytes and fails with ErrResponseTooLarge
// when the body continues past that.
type cappedReader struct {
	r    io.Reader
	left int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.left <= 0 {
		// One more byte distinguishes an exact-size body from an oversized one.
		var one [1]byte
		if n, _ := c.r.Read(one[:]); n > 0 {
			return 0, ErrResponseTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	return n, err
}
