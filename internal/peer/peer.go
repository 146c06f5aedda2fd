// Package peer builds immutable backend descriptors from their
// human-readable configuration: a base64 public key and a "host:port"
// endpoint. A Peer's precomputed MAC1 key is what the router uses to
// identify which backend a handshake initiation is addressed to.
package peer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/BergCTF/wireguard-router/internal/wgcrypto"
)

// ErrConfigInvalid wraps every malformed-peer-descriptor error. Callers
// should use errors.Is(err, ErrConfigInvalid) rather than matching
// strings.
var ErrConfigInvalid = errors.New("config invalid")

// PublicKeySize is the length of a WireGuard public key in bytes.
const PublicKeySize = 32

// Peer is a configured WireGuard backend behind the router. It is
// immutable once built; reloading the peer set replaces the whole list,
// it never mutates a Peer in place.
type Peer struct {
	pubkey [PublicKeySize]byte
	// h is BLAKE2s("mac1----" || pubkey), the MAC1 key used to test
	// whether a handshake initiation is addressed to this peer.
	h    [32]byte
	addr netip.AddrPort
}

// New builds a Peer from a base64-encoded 32-byte public key and a
// "host:port" address. It fails with ErrConfigInvalid if either input
// is malformed.
func New(address, pubkeyB64 string) (Peer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return Peer{}, fmt.Errorf("%w: resolving address %q: %v", ErrConfigInvalid, address, err)
	}
	// ResolveUDPAddr yields IPv4 literals in 16-byte form; unmap them so
	// an IPv4 backend is a plain IPv4 endpoint.
	ap := udpAddr.AddrPort()
	addr := netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())

	raw, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil {
		return Peer{}, fmt.Errorf("%w: decoding public key: %v", ErrConfigInvalid, err)
	}
	if len(raw) != PublicKeySize {
		return Peer{}, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrConfigInvalid, PublicKeySize, len(raw))
	}

	var pubkey [PublicKeySize]byte
	copy(pubkey[:], raw)

	return Peer{
		pubkey: pubkey,
		h:      wgcrypto.MAC1Key(pubkey),
		addr:   addr,
	}, nil
}

// PublicKey returns the base64 encoding of the peer's public key.
func (p Peer) PublicKey() string {
	return base64.StdEncoding.EncodeToString(p.pubkey[:])
}

// Addr returns the peer's resolved transport endpoint.
func (p Peer) Addr() netip.AddrPort {
	return p.addr
}

// MatchesMAC1 reports whether mac1 is the valid MAC1 for macInput under
// this peer's precomputed key. macInput is the first 116 bytes of a
// handshake initiation.
func (p Peer) MatchesMAC1(macInput []byte, mac1 [16]byte) bool {
	return wgcrypto.MAC(p.h, macInput) == mac1
}
