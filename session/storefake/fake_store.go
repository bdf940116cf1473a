package storefake

import (
	"sync"

	"github.com/jrsteele09/go-pos-client/session"
)

var _ session.Store = (*FakeStore)(nil)

// FakeStore is an in-memory session.Store, the equivalent of browser session storage.
type FakeStore struct {
	values map[string]string
	lock   sync.RWMutex
	Err    error // returned by every call when set
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string]string),
	}
}

func (fs *FakeStore) Get(key string) (string, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	if fs.Err != nil {
		return "", fs.Err
	}
	v, ok := fs.values[key]
	if !ok {
		return "", session.ErrNotFound
	}
	return v, nil
}

func (fs *FakeStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.Err != nil {
		return fs.Err
	}
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) Delete(keys ...string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.Err != nil {
		return fs.Err
	}
	for _, k := range keys {
		delete(fs.values, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (fs *FakeStore) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return len(fs.values)
}
