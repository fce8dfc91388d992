package consensus

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/VeltarosLabs/powledger/internal/blockchain"
	"github.com/VeltarosLabs/powledger/pkg/types"
)

type memTarget struct {
	mu    sync.Mutex
	chain []types.Block
	peers []string
	swaps int
}

func (m *memTarget) Peers() []string { return m.peers }

func (m *memTarget) Length() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chain)
}

func (m *memTarget) ReplaceChain(candidate []types.Block) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(candidate) <= len(m.chain) {
		return false
	}
	m.chain = blockchain.CloneChain(candidate)
	m.swaps++
	return true
}

type peerReply struct {
	cand Candidate
	err  error
}

func fetcherFor(replies map[string]peerReply) Fetcher {
	return FetcherFunc(func(_ context.Context, addr string) (Candidate, error) {
		r, ok := replies[addr]
		if !ok {
			return Candidate{}, errors.New("connection refused")
		}
		return r.cand, r.err
	})
}

func reply(chain []types.Block) peerReply {
	return peerReply{cand: Candidate{Length: len(chain), Chain: chain}}
}

func newTestResolver(t *testing.T, pow *PoW, f Fetcher) *Resolver {
	t.Helper()
	r, err := NewResolver(NewValidator(pow), f, 4, testLogger())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestResolveKeepsLocalWhenPeersNotLonger(t *testing.T) {
	pow := mustPoW(t, 2)
	local := buildChain(t, pow, 3, "local")
	peer := buildChain(t, pow, 3, "peer")

	target := &memTarget{chain: blockchain.CloneChain(local), peers: []string{"10.0.0.2:5000"}}
	r := newTestResolver(t, pow, fetcherFor(map[string]peerReply{"10.0.0.2:5000": reply(peer)}))

	res, err := r.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Replaced {
		t.Fatal("equal-length peer chain replaced the local chain")
	}
	if !reflect.DeepEqual(target.chain, local) {
		t.Fatal("local chain changed")
	}
	if len(res.Outcomes) != 1 || res.Outcomes[0].Err != nil || res.Outcomes[0].Candidate {
		t.Fatalf("outcomes = %+v", res.Outcomes)
	}
}

func TestResolveAdoptsLongerValidChain(t *testing.T) {
	pow := mustPoW(t, 2)
	local := buildChain(t, pow, 1, "local")
	peer := buildChain(t, pow, 3, "peer")

	target := &memTarget{chain: local, peers: []string{"10.0.0.2:5000"}}
	r := newTestResolver(t, pow, fetcherFor(map[string]peerReply{"10.0.0.2:5000": reply(peer)}))

	res, err := r.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Replaced {
		t.Fatal("longer valid chain not adopted")
	}
	if !reflect.DeepEqual(target.chain, peer) {
		t.Fatal("local chain does not equal the peer chain")
	}
	if !res.Outcomes[0].Candidate {
		t.Fatal("winning peer not marked as candidate")
	}
}

func TestResolveRejectsInvalidLongerChain(t *testing.T) {
	pow := mustPoW(t, 2)
	local := buildChain(t, pow, 2, "local")
	bad := buildChain(t, pow, 4, "forger")
	bad[2].PreviousHash = "00ff"

	target := &memTarget{chain: local, peers: []string{"a:1"}}
	r := newTestResolver(t, pow, fetcherFor(map[string]peerReply{"a:1": reply(bad)}))

	res, err := r.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Replaced || target.swaps != 0 {
		t.Fatal("invalid chain adopted")
	}
	var ce *ChainInvalidError
	if !errors.As(res.Outcomes[0].Err, &ce) {
		t.Fatalf("outcome err = %v, want *ChainInvalidError", res.Outcomes[0].Err)
	}
}

func TestResolveSkipsFailingPeers(t *testing.T) {
	pow := mustPoW(t, 2)
	local := buildChain(t, pow, 1, "local")
	good := buildChain(t, pow, 3, "good")

	replies := map[string]peerReply{
		"good:1":      reply(good),
		"malformed:1": {cand: Candidate{Length: 10, Chain: good}},
		"broken:1":    {err: errors.New("status 500")},
	}
	target := &memTarget{chain: local, peers: []string{"broken:1", "down:1", "good:1", "malformed:1"}}
	r := newTestResolver(t, pow, fetcherFor(replies))

	res, err := r.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Replaced || !reflect.DeepEqual(target.chain, good) {
		t.Fatal("valid peer chain not adopted alongside failing peers")
	}

	byAddr := make(map[string]PeerOutcome, len(res.Outcomes))
	for _, o := range res.Outcomes {
		byAddr[o.Addr] = o
	}
	for _, addr := range []string{"broken:1", "down:1", "malformed:1"} {
		var pu *PeerUnreachableError
		if !errors.As(byAddr[addr].Err, &pu) {
			t.Errorf("%s: err = %v, want *PeerUnreachableError", addr, byAddr[addr].Err)
		}
	}
	if !errors.Is(byAddr["malformed:1"].Err, ErrMalformedChain) {
		t.Errorf("malformed peer err = %v, want ErrMalformedChain", byAddr["malformed:1"].Err)
	}
}

func TestResolvePrefersLongest(t *testing.T) {
	pow := mustPoW(t, 2)
	local := buildChain(t, pow, 1, "local")
	three := buildChain(t, pow, 3, "three")
	five := buildChain(t, pow, 5, "five")

	target := &memTarget{chain: local, peers: []string{"a:1", "b:1"}}
	r := newTestResolver(t, pow, fetcherFor(map[string]peerReply{
		"a:1": reply(five),
		"b:1": reply(three),
	}))

	res, err := r.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Replaced || !reflect.DeepEqual(target.chain, five) {
		t.Fatal("longest chain not adopted")
	}
	if target.swaps != 1 {
		t.Fatalf("swaps = %d, want exactly 1", target.swaps)
	}
}

func TestResolveTieGoesToFirstSortedPeer(t *testing.T) {
	pow := mustPoW(t, 2)
	local := buildChain(t, pow, 1, "local")
	fromA := buildChain(t, pow, 3, "a")
	fromB := buildChain(t, pow, 3, "b")

	// Peers deliberately listed out of order.
	target := &memTarget{chain: local, peers: []string{"b:1", "a:1"}}
	r := newTestResolver(t, pow, fetcherFor(map[string]peerReply{
		"a:1": reply(fromA),
		"b:1": reply(fromB),
	}))

	if _, err := r.Resolve(context.Background(), target); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(target.chain, fromA) {
		t.Fatal("tie not broken in favour of the first sorted peer")
	}
}

func TestResolveNoPeers(t *testing.T) {
	pow := mustPoW(t, 2)
	target := &memTarget{chain: buildChain(t, pow, 1, "local")}
	r := newTestResolver(t, pow, fetcherFor(nil))

	res, err := r.Resolve(context.Background(), target)
	if err != nil || res.Replaced || len(res.Outcomes) != 0 {
		t.Fatalf("Resolve = %+v, %v; want no-op", res, err)
	}
}

func TestResolveCancelled(t *testing.T) {
	pow := mustPoW(t, 2)
	target := &memTarget{chain: buildChain(t, pow, 1, "local"), peers: []string{"a:1"}}
	longer := buildChain(t, pow, 3, "a")
	r := newTestResolver(t, pow, fetcherFor(map[string]peerReply{"a:1": reply(longer)}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Resolve(ctx, target); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if target.swaps != 0 {
		t.Fatal("chain replaced after cancellation")
	}
}

func TestNewResolverRequiresCollaborators(t *testing.T) {
	v := NewValidator(mustPoW(t, 1))
	f := fetcherFor(nil)
	if _, err := NewResolver(nil, f, 1, testLogger()); err == nil {
		t.Error("nil validator accepted")
	}
	if _, err := NewResolver(v, nil, 1, testLogger()); err == nil {
		t.Error("nil fetcher accepted")
	}
	if _, err := NewResolver(v, f, 1, nil); err == nil {
		t.Error("nil logger accepted")
	}
}

func TestResolveRejectsChainNotRootedAtGenesisIndex(t *testing.T) {
	pow := mustPoW(t, 2)
	local := buildChain(t, pow, 2, "local")

	// Every link is re-solved, so only the starting index is wrong.
	shifted := buildChain(t, pow, 4, "forger")
	for i := range shifted {
		shifted[i].Index += 4
		if i == 0 {
			continue
		}
		prevHash := blockchain.Hash(shifted[i-1])
		proof, err := pow.Solve(context.Background(), shifted[i-1].Proof, prevHash)
		if err != nil {
			t.Fatal(err)
		}
		shifted[i].PreviousHash = prevHash
		shifted[i].Proof = proof
	}

	target := &memTarget{chain: blockchain.CloneChain(local), peers: []string{"a:1"}}
	r := newTestResolver(t, pow, fetcherFor(map[string]peerReply{"a:1": reply(shifted)}))

	res, err := r.Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Replaced || !reflect.DeepEqual(target.chain, local) {
		t.Fatal("chain with offset indices replaced the local chain")
	}
	var ce *ChainInvalidError
	if !errors.As(res.Outcomes[0].Err, &ce) || ce.Index != 1 {
		t.Fatalf("outcome err = %v, want ChainInvalidError at block 1", res.Outcomes[0].Err)
	}
}
