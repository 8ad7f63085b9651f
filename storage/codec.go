package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/mezonai/chainsync/jsonx"
	"github.com/mezonai/chainsync/types"
)

// KeyCodec converts keys to and from their stored form. DecodeKey must invert
// EncodeKey.
type KeyCodec[K any] interface {
	EncodeKey(key K) ([]byte, error)
	DecodeKey(data []byte) (K, error)
}

// ValueCodec converts values to and from their stored form. DecodeValue must
// invert EncodeValue.
type ValueCodec[V any] interface {
	EncodeValue(value V) ([]byte, error)
	DecodeValue(data []byte) (V, error)
}

// HashCodec stores a HashValue as its raw 32 bytes. It serves as both key and
// value codec.
type HashCodec struct{}

func (HashCodec) EncodeKey(h types.HashValue) ([]byte, error)   { return h.Bytes(), nil }
func (HashCodec) EncodeValue(h types.HashValue) ([]byte, error) { return h.Bytes(), nil }

func (HashCodec) DecodeKey(data []byte) (types.HashValue, error) {
	return decodeHash(data)
}

func (HashCodec) DecodeValue(data []byte) (types.HashValue, error) {
	return decodeHash(data)
}

func decodeHash(data []byte) (types.HashValue, error) {
	h, err := types.HashFromSlice(data)
	if err != nil {
		return h, fmt.Errorf("%w: %w", ErrCorruption, err)
	}
	return h, nil
}

// Uint64Codec stores a uint64 as 8 big-endian bytes, so keys sort numerically.
type Uint64Codec struct{}

func (Uint64Codec) EncodeKey(v uint64) ([]byte, error)   { return encodeUint64(v), nil }
func (Uint64Codec) EncodeValue(v uint64) ([]byte, error) { return encodeUint64(v), nil }

func (Uint64Codec) DecodeKey(data []byte) (uint64, error)   { return decodeUint64(data) }
func (Uint64Codec) DecodeValue(data []byte) (uint64, error) { return decodeUint64(data) }

func encodeUint64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func decodeUint64(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: expected 8 bytes, got %d", ErrCorruption, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// StringCodec stores strings as their UTF-8 bytes.
type StringCodec struct{}

func (StringCodec) EncodeKey(s string) ([]byte, error)      { return []byte(s), nil }
func (StringCodec) DecodeKey(data []byte) (string, error)   { return string(data), nil }
func (StringCodec) EncodeValue(s string) ([]byte, error)    { return []byte(s), nil }
func (StringCodec) DecodeValue(data []byte) (string, error) { return string(data), nil }

// JSONCodec stores values as JSON.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) EncodeValue(v V) ([]byte, error) {
	return jsonx.Marshal(v)
}

func (JSONCodec[V]) DecodeValue(data []byte) (V, error) {
	v, err := jsonx.DecodeAs[V](data)
	if err != nil {
		return v, fmt.Errorf("%w: %w", ErrCorruption, err)
	}
	return v, nil
}
