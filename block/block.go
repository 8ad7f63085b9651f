package block

import (
	"encoding/binary"

	"github.com/holiman/uint256"
	"github.com/mezonai/chainsync/accumulator"
	"github.com/mezonai/chainsync/types"
)

type Header struct {
	Number     uint64          `json:"number"`
	ParentHash types.HashValue `json:"parent_hash"`
	Timestamp  uint64          `json:"timestamp"` // unix milliseconds
	Author     string          `json:"author"`
	Difficulty *uint256.Int    `json:"difficulty"`
	Nonce      uint64          `json:"nonce"`
	BodyHash   types.HashValue `json:"body_hash"`
}

// ID hashes every header field. A block's id is its header id.
func (h *Header) ID() types.HashValue {
	buf := make([]byte, 8)
	parts := make([][]byte, 0, 8)

	binary.BigEndian.PutUint64(buf, h.Number)
	parts = append(parts, append([]byte(nil), buf...))
	parts = append(parts, h.ParentHash[:])
	binary.BigEndian.PutUint64(buf, h.Timestamp)
	parts = append(parts, append([]byte(nil), buf...))
	parts = append(parts, []byte(h.Author))

	var diff [32]byte
	if h.Difficulty != nil {
		diff = h.Difficulty.Bytes32()
	}
	parts = append(parts, diff[:])
	binary.BigEndian.PutUint64(buf, h.Nonce)
	parts = append(parts, append([]byte(nil), buf...))
	parts = append(parts, h.BodyHash[:])

	return types.Sha3(parts...)
}

// GetDifficulty never returns nil.
func (h *Header) GetDifficulty() *uint256.Int {
	if h.Difficulty == nil {
		return uint256.NewInt(0)
	}
	return h.Difficulty
}

type Body struct {
	Transactions [][]byte `json:"transactions"`
}

func (b Body) Hash() types.HashValue {
	return types.Sha3(b.Transactions...)
}

type Block struct {
	Header Header `json:"header"`
	Body   Body   `json:"body"`
}

func NewBlock(header Header, body Body) *Block {
	header.BodyHash = body.Hash()
	return &Block{Header: header, Body: body}
}

func (b *Block) ID() types.HashValue {
	return b.Header.ID()
}

func (b *Block) Number() uint64 {
	return b.Header.Number
}

func (b *Block) ParentHash() types.HashValue {
	return b.Header.ParentHash
}

func (b *Block) Timestamp() uint64 {
	return b.Header.Timestamp
}

// BlockInfo is the execution result of a block: the chain's accumulated
// difficulty and block accumulator after the block was appended.
type BlockInfo struct {
	BlockID              types.HashValue  `json:"block_id"`
	TotalDifficulty      *uint256.Int     `json:"total_difficulty"`
	BlockAccumulatorInfo accumulator.Info `json:"block_accumulator_info"`
}

// ExecutedBlock is a block with an execution result computed earlier.
type ExecutedBlock struct {
	Block *Block
	Info  *BlockInfo
}

// BlockWithInfo is a locally stored block and, when it was executed before,
// its info.
type BlockWithInfo struct {
	Block *Block
	Info  *BlockInfo
}

// NewChild builds the block following parent.
func NewChild(parent *Block, timestamp uint64, author string, difficulty *uint256.Int, body Body) *Block {
	return NewBlock(Header{
		Number:     parent.Number() + 1,
		ParentHash: parent.ID(),
		Timestamp:  timestamp,
		Author:     author,
		Difficulty: difficulty,
	}, body)
}

// NewGenesis builds a block with no parent at height 0.
func NewGenesis(timestamp uint64, difficulty *uint256.Int) *Block {
	return NewBlock(Header{Timestamp: timestamp, Difficulty: difficulty, Author: "genesis"}, Body{})
}
