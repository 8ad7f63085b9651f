package chain

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/chainsync/block"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/storage"
	"github.com/mezonai/chainsync/store"
	"github.com/mezonai/chainsync/types"
)

// FailedBlock records a block that failed verification and who served it.
type FailedBlock struct {
	Block    *block.Block `json:"block"`
	PeerID   string       `json:"peer_id,omitempty"`
	Reason   string       `json:"reason"`
	FailedAt int64        `json:"failed_at"`
}

// HeadRecord is the persisted head: the heaviest block seen and the index
// namespace of the block accumulator lineage it was appended to.
type HeadRecord struct {
	BlockID        types.HashValue `json:"block_id"`
	IndexNamespace string          `json:"index_namespace"`
}

// FailedBlockWriter persists failed-block records.
type FailedBlockWriter interface {
	SaveFailedBlock(id types.HashValue, b *block.Block, peerID peer.ID, reason string) error
}

// Storage holds blocks, block infos, failed blocks and the chain head.
type Storage struct {
	blocks       *storage.CodecStorage[types.HashValue, *block.Block]
	infos        *storage.CodecStorage[types.HashValue, *block.BlockInfo]
	failedBlocks *storage.CodecStorage[types.HashValue, *FailedBlock]
	meta         *storage.CodecStorage[string, *HeadRecord]
}

// StorageRepositories names the repository behind each namespace.
type StorageRepositories struct {
	Blocks       storage.Repository
	Infos        storage.Repository
	FailedBlocks storage.Repository
	Meta         storage.Repository
}

func NewStorage(repos StorageRepositories) *Storage {
	return &Storage{
		blocks:       storage.NewCodecStorage[types.HashValue, *block.Block](repos.Blocks, storage.HashCodec{}, storage.JSONCodec[*block.Block]{}),
		infos:        storage.NewCodecStorage[types.HashValue, *block.BlockInfo](repos.Infos, storage.HashCodec{}, storage.JSONCodec[*block.BlockInfo]{}),
		failedBlocks: storage.NewCodecStorage[types.HashValue, *FailedBlock](repos.FailedBlocks, storage.HashCodec{}, storage.JSONCodec[*FailedBlock]{}),
		meta:         storage.NewCodecStorage[string, *HeadRecord](repos.Meta, storage.StringCodec{}, storage.JSONCodec[*HeadRecord]{}),
	}
}

// NewBackendStorage binds the chain namespaces of an opened backend.
func NewBackendStorage(backend *store.Backend) *Storage {
	return NewStorage(StorageRepositories{
		Blocks:       backend.Storage(store.NamespaceBlock),
		Infos:        backend.Storage(store.NamespaceBlockInfo),
		FailedBlocks: backend.Storage(store.NamespaceFailedBlock),
		Meta:         backend.Storage(store.NamespaceChainMeta),
	})
}

func (s *Storage) SaveBlock(b *block.Block) error {
	return s.blocks.Put(b.ID(), b)
}

// GetBlock returns (nil, nil) when id is unknown.
func (s *Storage) GetBlock(id types.HashValue) (*block.Block, error) {
	b, _, err := s.blocks.Get(id)
	return b, err
}

func (s *Storage) SaveBlockInfo(info *block.BlockInfo) error {
	return s.infos.Put(info.BlockID, info)
}

// GetBlockInfo returns (nil, nil) when id has not been executed.
func (s *Storage) GetBlockInfo(id types.HashValue) (*block.BlockInfo, error) {
	info, _, err := s.infos.Get(id)
	return info, err
}

func (s *Storage) SaveFailedBlock(id types.HashValue, b *block.Block, peerID peer.ID, reason string) error {
	record := &FailedBlock{
		Block:    b,
		Reason:   reason,
		FailedAt: time.Now().UnixMilli(),
	}
	if peerID != "" {
		record.PeerID = peerID.String()
	}
	if err := s.failedBlocks.Put(id, record); err != nil {
		return fmt.Errorf("save failed block %s: %w", id.Short(), err)
	}
	logx.Warn("CHAIN", fmt.Sprintf("recorded failed block %s from peer %q: %s", id.Short(), record.PeerID, reason))
	return nil
}

// GetFailedBlock returns (nil, nil) when no failure is recorded for id.
func (s *Storage) GetFailedBlock(id types.HashValue) (*FailedBlock, error) {
	fb, _, err := s.failedBlocks.Get(id)
	return fb, err
}

// SetHead persists id as the head, appended under the accumulator index
// namespace indexNS. Both are written as one value.
func (s *Storage) SetHead(id types.HashValue, indexNS string) error {
	return s.meta.Put(store.ChainMetaKeyHead, &HeadRecord{BlockID: id, IndexNamespace: indexNS})
}

// GetHead returns ok=false when no head has been written.
func (s *Storage) GetHead() (types.HashValue, bool, error) {
	rec, ok, err := s.GetHeadRecord()
	if err != nil || !ok {
		return types.HashValue{}, ok, err
	}
	return rec.BlockID, true, nil
}

// GetHeadRecord returns ok=false when no head has been written. Records
// without a namespace belong to the default accumulator index.
func (s *Storage) GetHeadRecord() (*HeadRecord, bool, error) {
	rec, ok, err := s.meta.Get(store.ChainMetaKeyHead)
	if err != nil || !ok {
		return nil, ok, err
	}
	if rec.IndexNamespace == "" {
		rec.IndexNamespace = store.NamespaceAccumulatorIndex
	}
	return rec, true, nil
}

// HeadIndexNamespace is the accumulator index namespace to open the
// persisted head with.
func (s *Storage) HeadIndexNamespace() (string, error) {
	rec, ok, err := s.GetHeadRecord()
	if err != nil {
		return "", err
	}
	if !ok {
		return store.NamespaceAccumulatorIndex, nil
	}
	return rec.IndexNamespace, nil
}

// GetBlocksWithInfo returns one slot per id, nil where the block is not
// stored locally.
func (s *Storage) GetBlocksWithInfo(ids []types.HashValue) ([]*block.BlockWithInfo, error) {
	out := make([]*block.BlockWithInfo, len(ids))
	for i, id := range ids {
		b, err := s.GetBlock(id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		info, err := s.GetBlockInfo(id)
		if err != nil {
			return nil, err
		}
		out[i] = &block.BlockWithInfo{Block: b, Info: info}
	}
	return out, nil
}
