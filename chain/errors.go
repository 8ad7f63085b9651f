package chain

import (
	"errors"
	"fmt"

	"github.com/mezonai/chainsync/types"
)

// Kinds of ConnectBlockError.
var (
	ErrFutureBlock       = errors.New("block from the future")
	ErrParentNotExist    = errors.New("parent block does not exist")
	ErrVerifyBlockFailed = errors.New("block verification failed")
)

// ErrNoHead is returned when a chain is opened over storage without a head.
var ErrNoHead = errors.New("chain has no head block")

// ErrLineageMismatch is returned when a chain is opened over an accumulator
// store that does not index the head's lineage.
var ErrLineageMismatch = errors.New("accumulator store does not index the head lineage")

// ConnectBlockError is returned when a block cannot be attached to the
// chain. Kind is one of the sentinel kinds above.
type ConnectBlockError struct {
	Kind    error
	BlockID types.HashValue
	Reason  string
}

func (e *ConnectBlockError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connect block %s: %v", e.BlockID.Short(), e.Kind)
	}
	return fmt.Sprintf("connect block %s: %v: %s", e.BlockID.Short(), e.Kind, e.Reason)
}

func (e *ConnectBlockError) Unwrap() error {
	return e.Kind
}

func newConnectError(kind error, id types.HashValue, format string, args ...interface{}) *ConnectBlockError {
	return &ConnectBlockError{Kind: kind, BlockID: id, Reason: fmt.Sprintf(format, args...)}
}

// ReputationChange maps a connect failure to the penalty for the peer that
// served the block.
func (e *ConnectBlockError) ReputationChange() types.ReputationChange {
	switch {
	case errors.Is(e.Kind, ErrParentNotExist):
		return types.RepUnknownParent
	default:
		return types.RepInvalidBlock
	}
}
