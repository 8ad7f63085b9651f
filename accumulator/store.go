package accumulator

import (
	"fmt"

	"github.com/mezonai/chainsync/storage"
	"github.com/mezonai/chainsync/store"
	"github.com/mezonai/chainsync/types"
)

// Entry is one node produced by an append together with its position.
type Entry struct {
	Index NodeIndex
	Node  *Node
}

// Store persists the accumulator in two namespaces: index -> node hash and
// node hash -> node body.
type Store struct {
	index   *storage.CodecStorage[NodeIndex, types.HashValue]
	nodes   *storage.CodecStorage[types.HashValue, *Node]
	indexNS string
	nodeNS  string
	commit  func(ops []storage.WriteOp) error

	// set for two-tier stores, which can be forked
	cache storage.InnerRepository
	db    storage.InnerRepository
	opts  []storage.Option
}

// forkCopyBatch bounds the index entries copied per write batch by Fork.
const forkCopyBatch = 1024

// NewStore builds a store over two repositories. SaveBatch falls back to
// sequential writes.
func NewStore(index, nodes storage.Repository) *Store {
	return &Store{
		index:   storage.NewCodecStorage[NodeIndex, types.HashValue](index, NodeIndexCodec{}, storage.HashCodec{}),
		nodes:   storage.NewCodecStorage[types.HashValue, *Node](nodes, storage.HashCodec{}, storage.JSONCodec[*Node]{}),
		indexNS: store.NamespaceAccumulatorIndex,
		nodeNS:  store.NamespaceAccumulatorNode,
	}
}

// NewTwoTierStore builds a store over the default namespaces of a cache and
// a durable repository.
func NewTwoTierStore(cache, db storage.InnerRepository) *Store {
	return NewNamedTwoTierStore(cache, db, store.NamespaceAccumulatorIndex, store.NamespaceAccumulatorNode)
}

// NewNamedTwoTierStore lets several accumulators share one engine under
// distinct namespaces.
func NewNamedTwoTierStore(cache, db storage.InnerRepository, indexNS, nodeNS string, opts ...storage.Option) *Store {
	s := NewStore(
		storage.NewStorage(indexNS, cache, db, opts...),
		storage.NewStorage(nodeNS, cache, db, opts...),
	)
	s.indexNS = indexNS
	s.nodeNS = nodeNS
	s.cache = cache
	s.db = db
	s.opts = opts
	s.commit = func(ops []storage.WriteOp) error {
		return storage.WriteBatch(cache, db, ops)
	}
	return s
}

// IndexNamespace is the namespace holding this store's index positions.
func (s *Store) IndexNamespace() string { return s.indexNS }

// Fork copies the first numNodes index positions into indexNS and returns a
// store over them. Nodes stay shared: they are addressed by hash. A lineage
// that diverges from this one must be appended through its own fork so the
// positions this store serves are never repointed.
func (s *Store) Fork(indexNS string, numNodes uint64) (*Store, error) {
	if s.commit == nil {
		return nil, fmt.Errorf("%w: only two-tier stores can be forked", storage.ErrPrecondition)
	}
	if indexNS == s.indexNS {
		return nil, fmt.Errorf("%w: fork namespace %s is the source namespace", storage.ErrPrecondition, indexNS)
	}
	forked := NewNamedTwoTierStore(s.cache, s.db, indexNS, s.nodeNS, s.opts...)

	ops := make([]storage.WriteOp, 0, min(numNodes, forkCopyBatch))
	for i := uint64(0); i < numNodes; i++ {
		hash, ok, err := s.index.Get(NodeIndex(i))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: no hash at index %d", ErrDanglingIndex, i)
		}
		if err := forked.checkIndex(NodeIndex(i), hash); err != nil {
			return nil, err
		}
		op, err := forked.index.EncodeOp(indexNS, NodeIndex(i), hash)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		if len(ops) == forkCopyBatch {
			if err := forked.commit(ops); err != nil {
				return nil, err
			}
			ops = ops[:0]
		}
	}
	if len(ops) > 0 {
		if err := forked.commit(ops); err != nil {
			return nil, err
		}
	}
	return forked, nil
}

// HasIndex reports whether index is mapped in this store's namespace.
func (s *Store) HasIndex(index NodeIndex) (bool, error) {
	return s.index.ContainsKey(index)
}

// checkIndex allows writing hash at index unless the position already
// resolves to a different node.
func (s *Store) checkIndex(index NodeIndex, hash types.HashValue) error {
	existing, ok, err := s.index.Get(index)
	if err != nil {
		return err
	}
	if ok && existing != hash {
		return fmt.Errorf("%w: %s index %d holds %s, refusing %s", ErrIndexConflict, s.indexNS, index, existing.Short(), hash.Short())
	}
	return nil
}

// Get resolves a position to its node. A position with no mapping, or one
// whose hash has no node, is corruption.
func (s *Store) Get(index NodeIndex) (*Node, error) {
	hash, ok, err := s.index.Get(index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no hash at index %d", ErrDanglingIndex, index)
	}
	node, err := s.GetNode(hash)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("%w: index %d points at missing node %s", ErrDanglingIndex, index, hash.Short())
	}
	return node, nil
}

// GetNode returns (nil, nil) when hash is not stored.
func (s *Store) GetNode(hash types.HashValue) (*Node, error) {
	node, ok, err := s.nodes.Get(hash)
	if err != nil || !ok {
		return nil, err
	}
	return node, nil
}

func (s *Store) Save(index NodeIndex, hash types.HashValue) error {
	return s.index.Put(index, hash)
}

func (s *Store) SaveNode(node *Node) error {
	return s.nodes.Put(node.Hash(), node)
}

// DeleteNodes removes nodes in order and stops at the first failure.
func (s *Store) DeleteNodes(hashes []types.HashValue) error {
	for _, h := range hashes {
		if err := s.nodes.Remove(h); err != nil {
			return err
		}
	}
	return nil
}

// DeleteNodesIndex removes index mappings. indices must not be empty.
func (s *Store) DeleteNodesIndex(indices []NodeIndex) error {
	if len(indices) == 0 {
		return fmt.Errorf("%w: no node indices to delete", storage.ErrPrecondition)
	}
	for _, i := range indices {
		if err := s.index.Remove(i); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch persists the nodes and index pointers of one append. Nodes are
// written before the pointers that reference them. Appends never repoint a
// position: if one already resolves to another node nothing is written and
// ErrIndexConflict is returned.
func (s *Store) SaveBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := s.checkIndex(e.Index, e.Node.Hash()); err != nil {
			return err
		}
	}

	if s.commit == nil {
		for _, e := range entries {
			if err := s.SaveNode(e.Node); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := s.Save(e.Index, e.Node.Hash()); err != nil {
				return err
			}
		}
		return nil
	}

	ops := make([]storage.WriteOp, 0, 2*len(entries))
	for _, e := range entries {
		op, err := s.nodes.EncodeOp(s.nodeNS, e.Node.Hash(), e.Node)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	for _, e := range entries {
		op, err := s.index.EncodeOp(s.indexNS, e.Index, e.Node.Hash())
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	return s.commit(ops)
}
