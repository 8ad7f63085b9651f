package accumulator

import (
	"encoding/binary"
	"fmt"

	"github.com/mezonai/chainsync/storage"
	"github.com/mezonai/chainsync/types"
)

// NodeIndexSize is the encoded width of a NodeIndex.
const NodeIndexSize = 8

var (
	// ErrInvalidKeyLength is returned when a stored node index is not 8 bytes.
	ErrInvalidKeyLength = fmt.Errorf("%w: invalid node index length", storage.ErrCorruption)

	// ErrDanglingIndex is returned when an index position does not resolve to
	// a stored node.
	ErrDanglingIndex = fmt.Errorf("%w: dangling accumulator index", storage.ErrCorruption)

	// ErrIndexConflict is returned when a write would repoint an index
	// position that already resolves to a different node.
	ErrIndexConflict = fmt.Errorf("%w: accumulator index position holds another node", storage.ErrPrecondition)
)

// NodeIndex is a node's position in the accumulator, in append (post-order)
// order: leaves and the interior nodes they complete are numbered as they are
// added.
type NodeIndex uint64

func (i NodeIndex) Bytes() []byte {
	out := make([]byte, NodeIndexSize)
	binary.BigEndian.PutUint64(out, uint64(i))
	return out
}

func DecodeNodeIndex(data []byte) (NodeIndex, error) {
	if len(data) != NodeIndexSize {
		return 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, NodeIndexSize, len(data))
	}
	return NodeIndex(binary.BigEndian.Uint64(data)), nil
}

// NodeIndexCodec is the storage key codec for NodeIndex.
type NodeIndexCodec struct{}

func (NodeIndexCodec) EncodeKey(i NodeIndex) ([]byte, error)      { return i.Bytes(), nil }
func (NodeIndexCodec) DecodeKey(data []byte) (NodeIndex, error)   { return DecodeNodeIndex(data) }
func (NodeIndexCodec) EncodeValue(i NodeIndex) ([]byte, error)    { return i.Bytes(), nil }
func (NodeIndexCodec) DecodeValue(data []byte) (NodeIndex, error) { return DecodeNodeIndex(data) }

type NodeKind string

const (
	LeafNode     NodeKind = "leaf"
	InternalNode NodeKind = "internal"
)

var leafDomain = []byte{0x00}

// Node is a content-addressed accumulator node. Leaves carry the appended
// value; internal nodes carry their children's hashes.
type Node struct {
	Kind  NodeKind        `json:"kind"`
	Index NodeIndex       `json:"index"`
	Value types.HashValue `json:"value"`
	Left  types.HashValue `json:"left"`
	Right types.HashValue `json:"right"`
}

func NewLeafNode(index NodeIndex, value types.HashValue) *Node {
	return &Node{Kind: LeafNode, Index: index, Value: value}
}

func NewInternalNode(index NodeIndex, left, right types.HashValue) *Node {
	return &Node{Kind: InternalNode, Index: index, Left: left, Right: right}
}

// LeafHash is the hash a leaf holding value is stored under.
func LeafHash(value types.HashValue) types.HashValue {
	return types.Sha3(leafDomain, value[:])
}

// Hash is the node's storage key. Internal nodes commit to their one-based
// position: H(BE64(index+1) || left || right).
func (n *Node) Hash() types.HashValue {
	if n.Kind == LeafNode {
		return LeafHash(n.Value)
	}
	pos := (n.Index + 1).Bytes()
	return types.Sha3(pos, n.Left[:], n.Right[:])
}

func (n *Node) IsLeaf() bool { return n.Kind == LeafNode }
