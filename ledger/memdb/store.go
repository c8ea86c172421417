// Package memdb implements an in-memory ledger store, used by tests and
// ephemeral runs. Unlike a cache it never evicts: the ledger is append-only.
package memdb

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	json "github.com/nikkolasg/hexjson"

	"github.com/eureka-network/proof-experiments/ledger"
	ledgererrors "github.com/eureka-network/proof-experiments/ledger/errors"
	"github.com/eureka-network/proof-experiments/trace"
)

// Store holds entries sorted by key.
type Store struct {
	storeMtx *sync.RWMutex
	store    []ledger.Entry
}

// NewStore returns an empty in-memory ledger store.
func NewStore() *Store {
	return &Store{
		storeMtx: &sync.RWMutex{},
		store:    []ledger.Entry{},
	}
}

func (m *Store) Len(_ context.Context) (int, error) {
	m.storeMtx.RLock()
	defer m.storeMtx.RUnlock()

	return len(m.store), nil
}

func (m *Store) Put(_ context.Context, e *ledger.Entry) error {
	m.storeMtx.Lock()
	defer m.storeMtx.Unlock()

	key := e.Key()
	idx := sort.Search(len(m.store), func(i int) bool {
		return bytes.Compare(m.store[i].Key(), key) >= 0
	})
	if idx < len(m.store) && bytes.Equal(m.store[idx].Key(), key) {
		if m.store[idx].ContentEqual(e) {
			return nil
		}
		return ledgererrors.ErrWriteConflict
	}

	m.store = append(m.store, ledger.Entry{})
	copy(m.store[idx+1:], m.store[idx:])
	m.store[idx] = *e
	return nil
}

func (m *Store) Last(_ context.Context) (*ledger.Entry, error) {
	m.storeMtx.RLock()
	defer m.storeMtx.RUnlock()

	if len(m.store) == 0 {
		return nil, ledgererrors.ErrNoEntry
	}

	result := m.store[len(m.store)-1]
	return &result, nil
}

func (m *Store) Get(_ context.Context, nodeID string, stage trace.StageID, seq uint64) (*ledger.Entry, error) {
	m.storeMtx.RLock()
	defer m.storeMtx.RUnlock()

	key := ledger.KeyOf(nodeID, stage, seq)
	idx := sort.Search(len(m.store), func(i int) bool {
		return bytes.Compare(m.store[i].Key(), key) >= 0
	})
	if idx == len(m.store) || !bytes.Equal(m.store[idx].Key(), key) {
		return nil, ledgererrors.ErrNoEntry
	}

	result := m.store[idx]
	return &result, nil
}

func (m *Store) Cursor(ctx context.Context, fn func(context.Context, ledger.Cursor) error) error {
	m.storeMtx.RLock()
	snapshot := make([]ledger.Entry, len(m.store))
	copy(snapshot, m.store)
	m.storeMtx.RUnlock()

	return fn(ctx, &memDBCursor{store: snapshot})
}

// SaveTo writes the entries as a JSON array.
func (m *Store) SaveTo(_ context.Context, w io.Writer) error {
	m.storeMtx.RLock()
	defer m.storeMtx.RUnlock()

	buf, err := json.Marshal(m.store)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func (m *Store) Close(_ context.Context) error {
	return nil
}

type memDBCursor struct {
	store []ledger.Entry
	pos   int
}

func (c *memDBCursor) First(_ context.Context) (*ledger.Entry, error) {
	if len(c.store) == 0 {
		return nil, ledgererrors.ErrNoEntry
	}

	c.pos = 0
	result := c.store[c.pos]
	return &result, nil
}

func (c *memDBCursor) Next(_ context.Context) (*ledger.Entry, error) {
	c.pos++
	if c.pos >= len(c.store) {
		return nil, ledgererrors.ErrNoEntry
	}

	result := c.store[c.pos]
	return &result, nil
}

func (c *memDBCursor) Seek(_ context.Context, prefix []byte) (*ledger.Entry, error) {
	idx := sort.Search(len(c.store), func(i int) bool {
		return bytes.Compare(c.store[i].Key(), prefix) >= 0
	})
	if idx == len(c.store) {
		return nil, ledgererrors.ErrNoEntry
	}

	c.pos = idx
	result := c.store[c.pos]
	return &result, nil
}

func (c *memDBCursor) Last(_ context.Context) (*ledger.Entry, error) {
	if len(c.store) == 0 {
		return nil, ledgererrors.ErrNoEntry
	}

	c.pos = len(c.store) - 1
	result := c.store[c.pos]
	return &result, nil
}
