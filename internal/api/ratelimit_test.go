package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterRefills(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewLimiter(1, 2)
	l.now = func() time.Time { return now }

	r := httptest.NewRequest("GET", "/mine", nil)
	r.RemoteAddr = "10.0.0.7:4242"

	if !l.Allow(r) || !l.Allow(r) {
		t.Fatal("burst of 2 not allowed")
	}
	if l.Allow(r) {
		t.Fatal("third request allowed without refill")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow(r) {
		t.Fatal("request not allowed after refill")
	}

	other := httptest.NewRequest("GET", "/mine", nil)
	other.RemoteAddr = "10.0.0.8:4242"
	if !l.Allow(other) {
		t.Fatal("separate client shares a bucket")
	}
}
