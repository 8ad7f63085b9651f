package p2p

import (
	"crypto/ed25519"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

func UnmarshalEd25519PrivateKey(private ed25519.PrivateKey) (crypto.PrivKey, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length")
	}
	seed := private[:32]
	return crypto.UnmarshalEd25519PrivateKey(seed)
}

// OwnAddresses returns the host's dialable addresses including its peer id.
func OwnAddresses(h host.Host) []string {
	var out []string
	for _, addr := range h.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), h.ID().String()))
	}
	return out
}

func AddrStrings(addrs []ma.Multiaddr) []string {
	var strAddrs []string
	for _, addr := range addrs {
		strAddrs = append(strAddrs, addr.String())
	}
	return strAddrs
}

// ParsePeerAddr parses a full multiaddr ending in /p2p/<peer id>.
func ParsePeerAddr(addr string) (*peer.AddrInfo, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid multiaddr %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("multiaddr %q has no peer id: %w", addr, err)
	}
	return info, nil
}
