package p2p

import (
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/block"
	neterrors "github.com/mezonai/chainsync/errors"
	"github.com/mezonai/chainsync/types"
)

type BlocksRequest struct {
	RequestID string            `json:"request_id"`
	IDs       []types.HashValue `json:"ids"`
}

// BlocksResponse carries the requested blocks the server has, in request
// order. Unknown ids are skipped.
type BlocksResponse struct {
	RequestID string                  `json:"request_id"`
	Blocks    []*block.Block          `json:"blocks"`
	Error     *neterrors.NetworkError `json:"error,omitempty"`
}

type LeavesRequest struct {
	RequestID string `json:"request_id"`
	Start     uint64 `json:"start"`
	Max       uint64 `json:"max"`
}

// LeavesResponse returns a page of the server's block accumulator together
// with the accumulator info the page was read against.
type LeavesResponse struct {
	RequestID string                  `json:"request_id"`
	Info      accumulator.Info        `json:"info"`
	Leaves    []types.HashValue       `json:"leaves"`
	Error     *neterrors.NetworkError `json:"error,omitempty"`
}
