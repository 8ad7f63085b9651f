package storage

// Delegated exposes one namespace of an InnerRepository as a Repository.
type Delegated struct {
	namespace string
	inner     InnerRepository
}

func NewDelegated(namespace string, inner InnerRepository) *Delegated {
	return &Delegated{namespace: namespace, inner: inner}
}

func (d *Delegated) Namespace() string { return d.namespace }

func (d *Delegated) Get(key []byte) ([]byte, error) {
	return d.inner.Get(d.namespace, key)
}

func (d *Delegated) Put(key, value []byte) error {
	return d.inner.Put(d.namespace, key, value)
}

func (d *Delegated) ContainsKey(key []byte) (bool, error) {
	return d.inner.ContainsKey(d.namespace, key)
}

func (d *Delegated) Remove(key []byte) error {
	return d.inner.Remove(d.namespace, key)
}

func (d *Delegated) Len() (int, error) {
	return d.inner.Len(d.namespace)
}

func (d *Delegated) Keys() ([][]byte, error) {
	return d.inner.Keys(d.namespace)
}
