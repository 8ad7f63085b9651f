package p2p

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/block"
	neterrors "github.com/mezonai/chainsync/errors"
	"github.com/mezonai/chainsync/exception"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/types"
)

// BlockSource serves blocks by id; a nil block means unknown.
type BlockSource interface {
	GetBlock(id types.HashValue) (*block.Block, error)
}

// LeafSource is the served block accumulator.
type LeafSource interface {
	Info() (accumulator.Info, error)
	GetLeaves(start uint64, reverse bool, max uint64) ([]types.HashValue, error)
}

// BlockServer answers the blocks and leaves protocols from local chain data.
type BlockServer struct {
	host    host.Host
	blocks  BlockSource
	leaves  func() LeafSource
	scoring *PeerScoringManager
}

// NewBlockServer builds a server. leaves is called per request so the
// current accumulator of a growing chain is served.
func NewBlockServer(h host.Host, blocks BlockSource, leaves func() LeafSource, scoring *PeerScoringManager) *BlockServer {
	return &BlockServer{host: h, blocks: blocks, leaves: leaves, scoring: scoring}
}

func (bs *BlockServer) Start() {
	bs.host.SetStreamHandler(BlocksProtocol, bs.handleBlocksStream)
	bs.host.SetStreamHandler(LeavesProtocol, bs.handleLeavesStream)
	logx.Info("P2P", "Serving ", BlocksProtocol, " and ", LeavesProtocol, " on ", bs.host.ID().String())
}

func (bs *BlockServer) Stop() {
	bs.host.RemoveStreamHandler(BlocksProtocol)
	bs.host.RemoveStreamHandler(LeavesProtocol)
}

func (bs *BlockServer) refused(s network.Stream) *neterrors.NetworkError {
	remote := s.Conn().RemotePeer()
	if bs.scoring != nil && bs.scoring.IsBlacklisted(remote) {
		logx.Warn("P2P", "Refusing blacklisted peer ", shortPeer(remote))
		return &neterrors.NetworkError{Code: neterrors.ErrCodeBlacklisted, Message: neterrors.ErrMsgBlacklisted}
	}
	return nil
}

func (bs *BlockServer) handleBlocksStream(s network.Stream) {
	defer exception.Recover("P2P:BLOCKS")
	defer s.Close()

	var resp BlocksResponse
	defer func() {
		if err := writeMessage(s, &resp); err != nil {
			logx.Error("P2P:BLOCKS", "Failed to write response: ", err)
		}
	}()

	if resp.Error = bs.refused(s); resp.Error != nil {
		return
	}
	var req BlocksRequest
	if err := readMessage(s, &req); err != nil {
		logx.Error("P2P:BLOCKS", "Failed to decode request: ", err)
		resp.Error = &neterrors.NetworkError{Code: neterrors.ErrCodeInvalidRequest, Message: neterrors.ErrMsgInvalidRequest}
		return
	}
	resp.RequestID = req.RequestID
	if len(req.IDs) > MaxBlocksPerRequest {
		resp.Error = &neterrors.NetworkError{Code: neterrors.ErrCodeTooManyItems, Message: fmt.Sprintf(neterrors.ErrMsgTooManyItems, MaxBlocksPerRequest)}
		return
	}

	resp.Blocks = make([]*block.Block, 0, len(req.IDs))
	for _, id := range req.IDs {
		b, err := bs.blocks.GetBlock(id)
		if err != nil {
			logx.Error("P2P:BLOCKS", "Failed to read block ", id.Short(), ": ", err)
			resp.Blocks = nil
			resp.Error = &neterrors.NetworkError{Code: neterrors.ErrCodeInternal, Message: neterrors.ErrMsgInternal}
			return
		}
		if b != nil {
			resp.Blocks = append(resp.Blocks, b)
		}
	}
	logx.Debug("P2P:BLOCKS", "Served ", len(resp.Blocks), "/", len(req.IDs), " blocks to ", shortPeer(s.Conn().RemotePeer()))
}

func (bs *BlockServer) handleLeavesStream(s network.Stream) {
	defer exception.Recover("P2P:LEAVES")
	defer s.Close()

	var resp LeavesResponse
	defer func() {
		if err := writeMessage(s, &resp); err != nil {
			logx.Error("P2P:LEAVES", "Failed to write response: ", err)
		}
	}()

	if resp.Error = bs.refused(s); resp.Error != nil {
		return
	}
	var req LeavesRequest
	if err := readMessage(s, &req); err != nil {
		logx.Error("P2P:LEAVES", "Failed to decode request: ", err)
		resp.Error = &neterrors.NetworkError{Code: neterrors.ErrCodeInvalidRequest, Message: neterrors.ErrMsgInvalidRequest}
		return
	}
	resp.RequestID = req.RequestID

	source := bs.leaves()
	info, err := source.Info()
	if err != nil {
		logx.Error("P2P:LEAVES", "Failed to read accumulator info: ", err)
		resp.Error = &neterrors.NetworkError{Code: neterrors.ErrCodeInternal, Message: neterrors.ErrMsgInternal}
		return
	}
	resp.Info = info

	max := min(req.Max, MaxLeavesPerRequest)
	if req.Start < info.NumLeaves {
		// the accumulator may have grown since Info; stay within it
		max = min(max, info.NumLeaves-req.Start)
	}
	leaves, err := source.GetLeaves(req.Start, false, max)
	if err != nil {
		logx.Error("P2P:LEAVES", "Failed to read leaves: ", err)
		resp.Error = &neterrors.NetworkError{Code: neterrors.ErrCodeInternal, Message: neterrors.ErrMsgInternal}
		return
	}
	resp.Leaves = leaves
}
