package block

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/holiman/uint256"
	"github.com/mezonai/chainsync/jsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockIDCoversHeader(t *testing.T) {
	b := NewBlock(Header{Number: 1, Timestamp: 1000, Difficulty: uint256.NewInt(10)}, Body{})
	id := b.ID()

	changed := *b
	changed.Header.Nonce++
	assert.NotEqual(t, id, changed.ID())

	changed = *b
	changed.Header.Difficulty = uint256.NewInt(11)
	assert.NotEqual(t, id, changed.ID())

	withTx := NewBlock(b.Header, Body{Transactions: [][]byte{[]byte("tx")}})
	assert.NotEqual(t, id, withTx.ID())
}

func TestBlockJSONRoundTrip(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 3)
	for i := 0; i < 50; i++ {
		var h Header
		var body Body
		var d uint64
		f.Fuzz(&h.Number)
		f.Fuzz(&h.ParentHash)
		f.Fuzz(&h.Timestamp)
		f.Fuzz(&h.Author)
		f.Fuzz(&h.Nonce)
		f.Fuzz(&body.Transactions)
		f.Fuzz(&d)
		h.Difficulty = uint256.NewInt(d)

		b := NewBlock(h, body)
		raw, err := jsonx.Marshal(b)
		require.NoError(t, err)
		out, err := jsonx.DecodeAs[*Block](raw)
		require.NoError(t, err)
		assert.Equal(t, b.ID(), out.ID())
		assert.Equal(t, b.Body.Hash(), out.Body.Hash())
	}
}
