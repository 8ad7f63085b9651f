package events

import (
	"time"

	"github.com/mezonai/chainsync/block"
)

// EventType is an enum-like string type for chain events
type EventType string

const (
	EventBlockConnected EventType = "BlockConnected"
)

// ChainEvent represents any event that occurs on the chain
type ChainEvent interface {
	Type() EventType
	Timestamp() time.Time
}

// BlockConnected is emitted when sync connects a block that raises the
// chain's total difficulty above the node's best.
type BlockConnected struct {
	Block     *block.Block
	timestamp time.Time
}

func NewBlockConnected(b *block.Block) *BlockConnected {
	return &BlockConnected{
		Block:     b,
		timestamp: time.Now(),
	}
}

func (e *BlockConnected) Type() EventType {
	return EventBlockConnected
}

func (e *BlockConnected) Timestamp() time.Time {
	return e.timestamp
}
