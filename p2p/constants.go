package p2p

import "time"

const (
	BlocksProtocol = "/chainsync/blocks/1.0.0"
	LeavesProtocol = "/chainsync/leaves/1.0.0"

	MaxBlocksPerRequest = 256
	MaxLeavesPerRequest = 4096

	DefaultFetchTimeout = 10 * time.Second
	// bound on one encoded response
	MaxMessageSize = 16 * 1024 * 1024
)
