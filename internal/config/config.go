// Package config loads the router's peer set from config.toml and
// republishes it whenever the file changes on disk.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/BergCTF/wireguard-router/internal/peer"
)

// ErrConfigInvalid wraps every error produced while parsing a config
// file: a malformed peer descriptor, a bad TOML document, or a missing
// file at startup.
var ErrConfigInvalid = errors.New("config invalid")

// PeerConfig is the TOML-decoded shape of one [[peers]] entry. It
// accepts either a map with exactly the fields "address" and "pubkey",
// or a two-element sequence [address, pubkey] — realized via
// toml.Unmarshaler, since BurntSushi/toml has no visitor-style
// equivalent of a Rust-style custom Deserialize. Duplicate keys within
// one map-form entry are already rejected by the TOML grammar itself
// before this method ever runs.
type PeerConfig struct {
	Address string
	PubKey  string
}

var _ toml.Unmarshaler = (*PeerConfig)(nil)

// UnmarshalTOML implements toml.Unmarshaler.
func (p *PeerConfig) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		addr, hasAddr := val["address"]
		pub, hasPub := val["pubkey"]
		if !hasAddr {
			return fmt.Errorf("peer entry missing \"address\"")
		}
		if !hasPub {
			return fmt.Errorf("peer entry missing \"pubkey\"")
		}
		if len(val) != 2 {
			return fmt.Errorf("peer entry must have exactly \"address\" and \"pubkey\", got %d fields", len(val))
		}
		addrStr, ok := addr.(string)
		if !ok {
			return fmt.Errorf("peer \"address\" must be a string")
		}
		pubStr, ok := pub.(string)
		if !ok {
			return fmt.Errorf("peer \"pubkey\" must be a string")
		}
		p.Address, p.PubKey = addrStr, pubStr
		return nil

	case []interface{}:
		if len(val) != 2 {
			return fmt.Errorf("peer sequence must have exactly 2 elements [address, pubkey], got %d", len(val))
		}
		addrStr, ok := val[0].(string)
		if !ok {
			return fmt.Errorf("peer sequence element 0 (address) must be a string")
		}
		pubStr, ok := val[1].(string)
		if !ok {
			return fmt.Errorf("peer sequence element 1 (pubkey) must be a string")
		}
		p.Address, p.PubKey = addrStr, pubStr
		return nil

	default:
		return fmt.Errorf("peer entry must be a table or a 2-element array, got %T", v)
	}
}

// file is the top-level TOML document shape.
type file struct {
	Peers []PeerConfig `toml:"peers"`
}

// Snapshot is an immutable, read-mostly peer set as loaded from disk at
// one point in time.
type Snapshot struct {
	Peers []peer.Peer
}

// Load parses path and builds a Snapshot. Every malformed peer entry is
// collected and reported together (not just the first), so a single
// fix-and-retry cycle can address every problem an operator has.
func Load(path string) (*Snapshot, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file %q not found", ErrConfigInvalid, path)
		}
		return nil, fmt.Errorf("%w: parsing %q: %v", ErrConfigInvalid, path, err)
	}

	peers := make([]peer.Peer, 0, len(f.Peers))
	var errs []string
	for i, pc := range f.Peers {
		p, err := peer.New(pc.Address, pc.PubKey)
		if err != nil {
			errs = append(errs, fmt.Sprintf("peers[%d]: %v", i, err))
			continue
		}
		peers = append(peers, p)
	}
	if len(errs) > 0 {
		msg := "invalid peer entries:\n"
		for _, e := range errs {
			msg += "  - " + e + "\n"
		}
		return nil, fmt.Errorf("%w: %s", ErrConfigInvalid, msg)
	}

	return &Snapshot{Peers: peers}, nil
}
