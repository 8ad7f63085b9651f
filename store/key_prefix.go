package store

// Declare storage namespaces. In a flat engine every key is stored as
// "<namespace>:<key>".
const (
	NamespaceAccumulatorIndex = "accumulator_index"
	NamespaceAccumulatorNode  = "accumulator_node"

	NamespaceBlock       = "block"
	NamespaceBlockInfo   = "block_info"
	NamespaceFailedBlock = "failed_block"
	NamespaceChainMeta   = "chain_meta"

	ChainMetaKeyHead = "head"
)

// Namespaces lists every namespace the node persists, in warm-up order.
var Namespaces = []string{
	NamespaceAccumulatorIndex,
	NamespaceAccumulatorNode,
	NamespaceBlock,
	NamespaceBlockInfo,
	NamespaceFailedBlock,
	NamespaceChainMeta,
}
