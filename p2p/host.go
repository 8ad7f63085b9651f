package p2p

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/chainsync/logx"
)

// NewHost starts a libp2p host on listenAddr. A nil key gets a random
// identity.
func NewHost(listenAddr string, privKey crypto.PrivKey) (host.Host, error) {
	opts := []libp2p.Option{libp2p.ListenAddrStrings(listenAddr)}
	if privKey != nil {
		opts = append(opts, libp2p.Identity(privKey))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	logx.Info("P2P", fmt.Sprintf("Libp2p host started with ID: %s", h.ID().String()))
	for _, addr := range h.Addrs() {
		logx.Info("P2P", "Listening on:", addr.String())
	}
	return h, nil
}

// Connect dials a full peer multiaddr and returns the peer id.
func Connect(ctx context.Context, h host.Host, addr string) (peer.ID, error) {
	info, err := ParsePeerAddr(addr)
	if err != nil {
		return "", err
	}
	if err := h.Connect(ctx, *info); err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	logx.Info("P2P", "Connected to peer:", info.ID.String())
	return info.ID, nil
}

// ConnectBootstrap dials every bootstrap address and returns how many
// connected. Empty entries are skipped; failures are logged.
func ConnectBootstrap(ctx context.Context, h host.Host, addrs []string) int {
	connected := 0
	for _, addr := range addrs {
		if addr == "" {
			continue
		}
		if _, err := Connect(ctx, h, addr); err != nil {
			logx.Error("P2P:SETUP", "Failed to connect to bootstrap:", addr, err.Error())
			continue
		}
		connected++
	}
	return connected
}
