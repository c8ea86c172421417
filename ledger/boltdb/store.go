// Package boltdb implements the ledger store on the bbolt key/value engine.
// Entries are stored JSON-encoded in a single bucket, keyed so that a node's
// stage history sits contiguously in key order.
package boltdb

import (
	"context"
	"errors"
	"io"
	"path"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/eureka-network/proof-experiments/common/log"
	"github.com/eureka-network/proof-experiments/ledger"
	ledgererrors "github.com/eureka-network/proof-experiments/ledger/errors"
	"github.com/eureka-network/proof-experiments/trace"
)

// BoltStore implements the ledger.Store interface using the kv storage
// boltdb (native golang implementation).
type BoltStore struct {
	sync.Mutex
	db *bolt.DB

	log log.Logger
}

var entryBucket = []byte("entries")

// BoltFileName is the name of the file boltdb writes to.
const BoltFileName = "ledger.db"

// BoltStoreOpenPerm is the permission we will use to read the bolt store file
// from disk.
const BoltStoreOpenPerm = 0660

// NewBoltStore returns a Store implementation using the boltdb storage
// engine.
func NewBoltStore(ctx context.Context, l log.Logger, folder string, opts *bolt.Options) (ledger.Store, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dbPath := path.Join(folder, BoltFileName)
	db, err := bolt.Open(dbPath, BoltStoreOpenPerm, opts)
	if err != nil {
		return nil, err
	}
	// create the bucket already
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entryBucket)
		return err
	})

	return &BoltStore{
		log: l,
		db:  db,
	}, err
}

// Len performs a big scan over the bucket and is _very_ slow - use sparingly!
func (b *BoltStore) Len(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	var length = 0
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entryBucket)
		// this `.Stats()` call is the particularly expensive one!
		length = bucket.Stats().KeyN
		return nil
	})
	if err != nil {
		b.log.Warnw("", "boltdb", "error getting length", "err", err)
	}
	return length, err
}

func (b *BoltStore) Close(context.Context) error {
	err := b.db.Close()
	if err != nil {
		b.log.Errorw("", "boltdb", "close", "err", err)
	}
	return err
}

// Put appends the entry. The ledger is append-only: re-appending identical
// content is a no-op, while a write to an existing key with different
// content fails with ErrWriteConflict.
func (b *BoltStore) Put(ctx context.Context, e *ledger.Entry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entryBucket)
		key := e.Key()

		if prev := bucket.Get(key); prev != nil {
			existing := &ledger.Entry{}
			if err := existing.Unmarshal(prev); err != nil {
				return err
			}
			if existing.ContentEqual(e) {
				return nil
			}
			return ledgererrors.ErrWriteConflict
		}

		buff, err := e.Marshal()
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		err = bucket.Put(key, buff)
		if err != nil {
			b.log.Debugw("storing ledger entry", "node", e.NodeID, "stage", e.Stage, "err", err)
		}
		return err
	})
}

// Last returns the last entry saved into the db.
func (b *BoltStore) Last(ctx context.Context) (*ledger.Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entry := &ledger.Entry{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entryBucket)
		cursor := bucket.Cursor()
		_, v := cursor.Last()
		if v == nil {
			return ledgererrors.ErrNoEntry
		}
		return entry.Unmarshal(v)
	})
	return entry, err
}

// Get returns the entry saved under the given key.
func (b *BoltStore) Get(ctx context.Context, nodeID string, stage trace.StageID, seq uint64) (*ledger.Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entry := &ledger.Entry{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entryBucket)
		v := bucket.Get(ledger.KeyOf(nodeID, stage, seq))
		if v == nil {
			return ledgererrors.ErrNoEntry
		}
		return entry.Unmarshal(v)
	})
	return entry, err
}

func (b *BoltStore) Cursor(ctx context.Context, fn func(context.Context, ledger.Cursor) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(entryBucket)
		c := bucket.Cursor()
		return fn(ctx, &boltCursor{Cursor: c})
	})
	if err != nil {
		// We omit the ErrNoEntry error as it is noisy and cursor.Next() will
		// use it as flag value for reaching the end of the database.
		if !errors.Is(err, ledgererrors.ErrNoEntry) {
			b.log.Errorw("", "boltdb", "error getting cursor", "err", err)
		}
	}
	return err
}

// SaveTo saves the bolt database to an alternate file.
func (b *BoltStore) SaveTo(ctx context.Context, w io.Writer) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return b.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(w)
		return err
	})
}

type boltCursor struct {
	*bolt.Cursor
}

func (c *boltCursor) First(ctx context.Context) (*ledger.Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	k, v := c.Cursor.First()
	if k == nil {
		return nil, ledgererrors.ErrNoEntry
	}
	e := &ledger.Entry{}
	err := e.Unmarshal(v)
	return e, err
}

// Next returns the next value in the database for the given cursor.
// When reaching the end of the database, it emits the ErrNoEntry error to
// flag that it finished the iteration.
func (c *boltCursor) Next(ctx context.Context) (*ledger.Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	k, v := c.Cursor.Next()
	if k == nil {
		return nil, ledgererrors.ErrNoEntry
	}
	e := &ledger.Entry{}
	err := e.Unmarshal(v)
	return e, err
}

func (c *boltCursor) Seek(ctx context.Context, prefix []byte) (*ledger.Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	k, v := c.Cursor.Seek(prefix)
	if k == nil {
		return nil, ledgererrors.ErrNoEntry
	}
	e := &ledger.Entry{}
	err := e.Unmarshal(v)
	return e, err
}

func (c *boltCursor) Last(ctx context.Context) (*ledger.Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	k, v := c.Cursor.Last()
	if k == nil {
		return nil, ledgererrors.ErrNoEntry
	}
	e := &ledger.Entry{}
	err := e.Unmarshal(v)
	return e, err
}
