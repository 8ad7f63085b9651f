package p2p

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/blocksync"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/types"
)

var (
	ErrNoPeers          = errors.New("p2p: no peers to fetch from")
	ErrMismatchedReply  = errors.New("p2p: response does not match request")
	ErrTargetMoved      = errors.New("p2p: peer accumulator changed while paging")
	ErrIncompleteLeaves = errors.New("p2p: peer returned fewer leaves than advertised")
)

// BlockFetcher fetches blocks over the blocks protocol, trying connected
// peers best score first. It implements blocksync.Fetcher.
type BlockFetcher struct {
	host         host.Host
	scoring      *PeerScoringManager
	timeout      time.Duration
	peers        []peer.ID
	leafPageSize uint64
}

var _ blocksync.Fetcher = (*BlockFetcher)(nil)

func NewBlockFetcher(h host.Host, scoring *PeerScoringManager, timeout time.Duration) *BlockFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &BlockFetcher{
		host:         h,
		scoring:      scoring,
		timeout:      timeout,
		leafPageSize: MaxLeavesPerRequest,
	}
}

// WithPeers restricts fetching to the given peers.
func (f *BlockFetcher) WithPeers(peers ...peer.ID) *BlockFetcher {
	f.peers = peers
	return f
}

func (f *BlockFetcher) candidates() []peer.ID {
	peers := f.peers
	if len(peers) == 0 {
		peers = f.host.Network().Peers()
	}
	if f.scoring == nil {
		return peers
	}
	return f.scoring.RankPeers(peers)
}

func (f *BlockFetcher) report(p peer.ID, change types.ReputationChange) {
	if f.scoring != nil {
		f.scoring.ReportPeer(p, change)
	}
}

// FetchBlocks asks peers for ids in chunks. Blocks no peer could serve are
// left out of the result.
func (f *BlockFetcher) FetchBlocks(ctx context.Context, ids []types.HashValue) ([]blocksync.FetchedBlock, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	candidates := f.candidates()
	if len(candidates) == 0 {
		return nil, ErrNoPeers
	}

	out := make([]blocksync.FetchedBlock, 0, len(ids))
	for start := 0; start < len(ids); start += MaxBlocksPerRequest {
		end := min(start+MaxBlocksPerRequest, len(ids))
		got, err := f.fetchChunk(ctx, candidates, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

func (f *BlockFetcher) fetchChunk(ctx context.Context, candidates []peer.ID, ids []types.HashValue) ([]blocksync.FetchedBlock, error) {
	pending := ids
	var out []blocksync.FetchedBlock

	for _, p := range candidates {
		if len(pending) == 0 {
			break
		}
		resp, err := f.requestBlocks(ctx, p, pending)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logx.Warn("P2P:FETCH", "Fetch from ", shortPeer(p), " failed: ", err)
			if errors.Is(err, ErrMismatchedReply) {
				f.report(p, types.RepBadResponse)
			}
			continue
		}

		want := make(map[types.HashValue]bool, len(pending))
		for _, id := range pending {
			want[id] = true
		}
		unrequested := 0
		for _, b := range resp.Blocks {
			if b == nil {
				continue
			}
			id := b.ID()
			if !want[id] {
				unrequested++
				continue
			}
			delete(want, id)
			out = append(out, blocksync.FetchedBlock{Block: b, PeerID: p})
		}
		if unrequested > 0 {
			logx.Warn("P2P:FETCH", "Peer ", shortPeer(p), " sent ", unrequested, " unrequested blocks")
			f.report(p, types.RepBadResponse)
		}

		next := pending[:0:0]
		for _, id := range pending {
			if want[id] {
				next = append(next, id)
			}
		}
		pending = next
	}

	if len(pending) > 0 {
		logx.Warn("P2P:FETCH", fmt.Sprintf("%d of %d blocks unavailable from %d peers", len(pending), len(ids), len(candidates)))
	}
	return out, nil
}

func (f *BlockFetcher) requestBlocks(ctx context.Context, p peer.ID, ids []types.HashValue) (*BlocksResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	s, err := f.host.NewStream(ctx, p, BlocksProtocol)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer s.Close()
	stop := resetOnDone(ctx, s)
	defer stop()

	req := BlocksRequest{RequestID: uuid.NewString(), IDs: ids}
	if err := writeMessage(s, &req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close write: %w", err)
	}

	var resp BlocksResponse
	if err := readMessage(s, &resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.RequestID != req.RequestID {
		return nil, fmt.Errorf("%w: request id %s, got %s", ErrMismatchedReply, req.RequestID, resp.RequestID)
	}
	if f.scoring != nil {
		f.scoring.RecordResponseTime(p, time.Since(start))
	}
	return &resp, nil
}

// FetchLeaves pages through p's block accumulator and returns its info and
// every leaf. The pages must all belong to one accumulator state.
func (f *BlockFetcher) FetchLeaves(ctx context.Context, p peer.ID) (accumulator.Info, []types.HashValue, error) {
	var (
		info   accumulator.Info
		leaves []types.HashValue
	)
	for {
		resp, err := f.requestLeaves(ctx, p, uint64(len(leaves)))
		if err != nil {
			return accumulator.Info{}, nil, err
		}
		if leaves == nil {
			info = resp.Info
			leaves = make([]types.HashValue, 0, info.NumLeaves)
		} else if resp.Info.RootHash != info.RootHash {
			return accumulator.Info{}, nil, ErrTargetMoved
		}

		leaves = append(leaves, resp.Leaves...)
		if uint64(len(leaves)) >= info.NumLeaves {
			break
		}
		if len(resp.Leaves) == 0 {
			return accumulator.Info{}, nil, fmt.Errorf("%w: %d of %d", ErrIncompleteLeaves, len(leaves), info.NumLeaves)
		}
	}
	logx.Info("P2P:LEAVES", "Fetched ", len(leaves), " leaves from ", shortPeer(p), " root ", info.RootHash.Short())
	return info, leaves[:info.NumLeaves], nil
}

func (f *BlockFetcher) requestLeaves(ctx context.Context, p peer.ID, start uint64) (*LeavesResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	s, err := f.host.NewStream(ctx, p, LeavesProtocol)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer s.Close()
	stop := resetOnDone(ctx, s)
	defer stop()

	req := LeavesRequest{RequestID: uuid.NewString(), Start: start, Max: f.leafPageSize}
	if err := writeMessage(s, &req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close write: %w", err)
	}

	var resp LeavesResponse
	if err := readMessage(s, &resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.RequestID != req.RequestID {
		return nil, fmt.Errorf("%w: request id %s, got %s", ErrMismatchedReply, req.RequestID, resp.RequestID)
	}
	return &resp, nil
}
