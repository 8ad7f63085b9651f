package chain

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/chainsync/block"
)

// AllowedFutureBlockTime is how far ahead of the local clock a block
// timestamp may be.
const AllowedFutureBlockTime = 15 * time.Second

// Verifier checks a block against its parent before it is applied.
// Failures are *ConnectBlockError.
type Verifier interface {
	Verify(parent *block.Header, b *block.Block, now uint64) error
}

// BasicVerifier checks linkage, numbering, timestamps and difficulty but
// not proof of work.
type BasicVerifier struct{}

func (BasicVerifier) Verify(parent *block.Header, b *block.Block, now uint64) error {
	id := b.ID()
	h := &b.Header

	if h.ParentHash != parent.ID() {
		return newConnectError(ErrParentNotExist, id, "parent %s is not the chain head %s", h.ParentHash.Short(), parent.ID().Short())
	}
	if h.Timestamp > now+uint64(AllowedFutureBlockTime.Milliseconds()) {
		return newConnectError(ErrFutureBlock, id, "timestamp %d, local time %d", h.Timestamp, now)
	}
	if h.Number != parent.Number+1 {
		return newConnectError(ErrVerifyBlockFailed, id, "invalid number %d, expected %d", h.Number, parent.Number+1)
	}
	if h.Timestamp <= parent.Timestamp {
		return newConnectError(ErrVerifyBlockFailed, id, "timestamp %d not after parent %d", h.Timestamp, parent.Timestamp)
	}
	if h.GetDifficulty().IsZero() {
		return newConnectError(ErrVerifyBlockFailed, id, "zero difficulty")
	}
	if h.BodyHash != b.Body.Hash() {
		return newConnectError(ErrVerifyBlockFailed, id, "body hash mismatch")
	}
	return nil
}

// FullVerifier runs BasicVerifier and then checks proof of work.
type FullVerifier struct{}

func (FullVerifier) Verify(parent *block.Header, b *block.Block, now uint64) error {
	if err := (BasicVerifier{}).Verify(parent, b, now); err != nil {
		return err
	}
	if !CheckPow(&b.Header) {
		return newConnectError(ErrVerifyBlockFailed, b.ID(), "proof of work below difficulty %s", b.Header.GetDifficulty().Dec())
	}
	return nil
}

// PowTarget is 2^256 / difficulty, saturated to the maximum 256-bit value.
func PowTarget(difficulty *uint256.Int) *uint256.Int {
	max := new(uint256.Int).SetAllOne()
	if difficulty.IsZero() || difficulty.IsUint64() && difficulty.Uint64() == 1 {
		return max
	}
	return new(uint256.Int).Div(max, difficulty)
}

// CheckPow reports whether the header id, read as a big-endian integer, is
// within the target for its difficulty.
func CheckPow(h *block.Header) bool {
	id := h.ID()
	value := new(uint256.Int).SetBytes32(id[:])
	return value.Cmp(PowTarget(h.GetDifficulty())) <= 0
}
