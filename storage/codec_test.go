package storage

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/mezonai/chainsync/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string            `json:"name"`
	Count  uint64            `json:"count"`
	Tags   []string          `json:"tags"`
	Labels map[string]string `json:"labels"`
	Hash   types.HashValue   `json:"hash"`
}

func TestCodecRoundTrip(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 4)

	for i := 0; i < 200; i++ {
		var h types.HashValue
		var n uint64
		var s string
		var v sample
		f.Fuzz(&h)
		f.Fuzz(&n)
		f.Fuzz(&s)
		f.Fuzz(&v)

		hk, err := HashCodec{}.EncodeKey(h)
		require.NoError(t, err)
		hd, err := HashCodec{}.DecodeKey(hk)
		require.NoError(t, err)
		assert.Equal(t, h, hd)

		nk, err := Uint64Codec{}.EncodeKey(n)
		require.NoError(t, err)
		assert.Len(t, nk, 8)
		nd, err := Uint64Codec{}.DecodeKey(nk)
		require.NoError(t, err)
		assert.Equal(t, n, nd)

		sk, err := StringCodec{}.EncodeKey(s)
		require.NoError(t, err)
		sd, err := StringCodec{}.DecodeKey(sk)
		require.NoError(t, err)
		assert.Equal(t, s, sd)

		vb, err := JSONCodec[sample]{}.EncodeValue(v)
		require.NoError(t, err)
		vd, err := JSONCodec[sample]{}.DecodeValue(vb)
		require.NoError(t, err)
		assert.Equal(t, v, vd)
	}
}

func TestCodecDecodeFailureIsCorruption(t *testing.T) {
	_, err := HashCodec{}.DecodeValue([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruption)

	_, err = Uint64Codec{}.DecodeKey([]byte{1})
	assert.ErrorIs(t, err, ErrCorruption)

	_, err = JSONCodec[sample]{}.DecodeValue([]byte("{not json"))
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestCodecStorage(t *testing.T) {
	repo := NewDelegated("samples", newDurable())
	s := NewCodecStorage[uint64, sample](repo, Uint64Codec{}, JSONCodec[sample]{})

	_, ok, err := s.Get(7)
	require.NoError(t, err)
	assert.False(t, ok)

	in := sample{Name: "seven", Count: 7, Tags: []string{"x"}}
	require.NoError(t, s.Put(7, in))
	require.NoError(t, s.Put(3, sample{Name: "three"}))

	out, ok, err := s.Get(7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 7}, keys)

	// corrupt the stored value behind the typed view
	require.NoError(t, repo.Put([]byte{0, 0, 0, 0, 0, 0, 0, 3}, []byte("garbage")))
	_, _, err = s.Get(3)
	assert.ErrorIs(t, err, ErrCorruption)
}
