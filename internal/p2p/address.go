package p2p

import (
	"fmt"
	"net/url"
	"strings"
)

// InvalidAddressError is returned for a peer address that has neither a
// network location nor a path.
type InvalidAddressError struct {
	Address string
	Err     error
}

func (e *InvalidAddressError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid peer address %q: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("invalid peer address %q", e.Address)
}

func (e *InvalidAddressError) Unwrap() error { return e.Err }

// ParseAddress accepts "host:port" or a full URL such as "http://host:port/"
// and returns the network location. Scheme-less input is read as
// host[:port][/path] and yields only the host part, so "host:1/chain" gives
// "host:1". The path is returned only when the host part is empty, as in
// "/peer" or "file:///peer".
func ParseAddress(address string) (string, error) {
	s := strings.TrimSpace(address)
	if s == "" {
		return "", &InvalidAddressError{Address: address}
	}

	raw := s
	if !strings.Contains(s, "://") {
		// url.Parse rejects a leading "host:port" segment without a scheme.
		raw = "//" + s
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &InvalidAddressError{Address: address, Err: err}
	}
	switch {
	case u.Host != "":
		return u.Host, nil
	case u.Path != "":
		return u.Path, nil
	default:
		return "", &InvalidAddressError{Address: address}
	}
}
