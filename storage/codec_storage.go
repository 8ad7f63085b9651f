package storage

import "fmt"

// CodecStorage is a typed view over a Repository.
type CodecStorage[K, V any] struct {
	repo   Repository
	keys   KeyCodec[K]
	values ValueCodec[V]
}

func NewCodecStorage[K, V any](repo Repository, keys KeyCodec[K], values ValueCodec[V]) *CodecStorage[K, V] {
	return &CodecStorage[K, V]{repo: repo, keys: keys, values: values}
}

// Get returns the value for key; ok is false when the key is absent.
func (s *CodecStorage[K, V]) Get(key K) (value V, ok bool, err error) {
	k, err := s.keys.EncodeKey(key)
	if err != nil {
		return value, false, fmt.Errorf("encode key: %w", err)
	}
	raw, err := s.repo.Get(k)
	if err != nil || raw == nil {
		return value, false, err
	}
	value, err = s.values.DecodeValue(raw)
	if err != nil {
		return value, false, fmt.Errorf("decode value: %w", err)
	}
	return value, true, nil
}

func (s *CodecStorage[K, V]) Put(key K, value V) error {
	k, err := s.keys.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	v, err := s.values.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return s.repo.Put(k, v)
}

func (s *CodecStorage[K, V]) ContainsKey(key K) (bool, error) {
	k, err := s.keys.EncodeKey(key)
	if err != nil {
		return false, fmt.Errorf("encode key: %w", err)
	}
	return s.repo.ContainsKey(k)
}

func (s *CodecStorage[K, V]) Remove(key K) error {
	k, err := s.keys.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	return s.repo.Remove(k)
}

func (s *CodecStorage[K, V]) Len() (int, error) {
	return s.repo.Len()
}

func (s *CodecStorage[K, V]) Keys() ([]K, error) {
	raw, err := s.repo.Keys()
	if err != nil {
		return nil, err
	}
	keys := make([]K, 0, len(raw))
	for _, r := range raw {
		k, err := s.keys.DecodeKey(r)
		if err != nil {
			return nil, fmt.Errorf("decode key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// EncodeOp renders a put of (key, value) as a WriteOp for namespace, for use
// with WriteBatch.
func (s *CodecStorage[K, V]) EncodeOp(namespace string, key K, value V) (WriteOp, error) {
	k, err := s.keys.EncodeKey(key)
	if err != nil {
		return WriteOp{}, fmt.Errorf("encode key: %w", err)
	}
	v, err := s.values.EncodeValue(value)
	if err != nil {
		return WriteOp{}, fmt.Errorf("encode value: %w", err)
	}
	return WriteOp{Namespace: namespace, Key: k, Value: v}, nil
}
