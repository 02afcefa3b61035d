package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/docquery/pkg/storage"
)

// ErrMockStore is the failure injected by MockDriver.
var ErrMockStore = errors.New("mock store failure")

// MockDriver wraps a storage.Driver and can be told to fail, recording the
// calls it forwards.
type MockDriver struct {
	storage.Driver

	mu sync.Mutex

	// FailPut causes Put to return an ErrUnavailable error.
	FailPut bool

	// FailGet causes Get to return an ErrUnavailable error.
	FailGet bool

	// FailDelete causes Delete to return an ErrUnavailable error.
	FailDelete bool

	// Corrupt, when set, is applied to the document Put returns. The
	// wrapped driver still stores what it was given.
	Corrupt func(*storage.Document)

	// Hide makes Get report NotFound for the listed ids while the wrapped
	// driver still holds them.
	Hide map[string]bool

	puts    int
	deletes int
}

// NewMockDriver wraps d.
func NewMockDriver(d storage.Driver) *MockDriver {
	return &MockDriver{Driver: d, Hide: make(map[string]bool)}
}

// Set updates a failure flag under the lock.
func (m *MockDriver) Set(fn func(m *MockDriver)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *MockDriver) Put(ctx context.Context, doc *storage.Document) (*storage.Document, error) {
	m.mu.Lock()
	fail, corrupt := m.FailPut, m.Corrupt
	m.puts++
	m.mu.Unlock()

	if fail {
		return nil, storage.Unavailable("put", ErrMockStore)
	}
	stored, err := m.Driver.Put(ctx, doc)
	if err == nil && corrupt != nil {
		stored = stored.Clone()
		corrupt(stored)
	}
	return stored, err
}

func (m *MockDriver) Get(ctx context.Context, id string) (*storage.Document, error) {
	m.mu.Lock()
	fail, hidden := m.FailGet, m.Hide[id]
	m.mu.Unlock()

	if fail {
		return nil, storage.Unavailable("get", ErrMockStore)
	}
	if hidden {
		return nil, storage.NotFoundError{ID: id}
	}
	return m.Driver.Get(ctx, id)
}

func (m *MockDriver) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	fail := m.FailDelete
	m.deletes++
	m.mu.Unlock()

	if fail {
		return false, storage.Unavailable("delete", ErrMockStore)
	}
	return m.Driver.Delete(ctx, id)
}

// Puts returns how many times Put was called.
func (m *MockDriver) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
