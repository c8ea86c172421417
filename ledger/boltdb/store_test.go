package boltdb

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eureka-network/proof-experiments/common/testlogger"
	"github.com/eureka-network/proof-experiments/ledger"
	ledgererrors "github.com/eureka-network/proof-experiments/ledger/errors"
	"github.com/eureka-network/proof-experiments/trace"
)

func entry(node string, stage trace.StageID, seq uint64, accepted bool) *ledger.Entry {
	return &ledger.Entry{
		NodeID:     node,
		Stage:      stage,
		Seq:        seq,
		Commitment: bytes.Repeat([]byte{0xab}, 32),
		Backend:    "vm",
		Accepted:   accepted,
		Timestamp:  time.Unix(1700000000+int64(seq), 0).UTC(),
	}
}

func TestStoreBoltOrder(t *testing.T) {
	tmp := t.TempDir()
	ctx := context.Background()
	l := testlogger.New(t)
	store, err := NewBoltStore(ctx, l, tmp, nil)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close(ctx))
	}()

	e1 := entry("node-a", trace.StageExtract, 145, true)
	e2 := entry("node-a", trace.StageExtract, 146, true)

	// we store e2 and check if it is last
	require.NoError(t, store.Put(ctx, e2))
	le, err := store.Last(ctx)
	require.NoError(t, err)
	require.True(t, e2.ContentEqual(le))

	// then we store e1: last must stay e2 since keys sort by sequence
	require.NoError(t, store.Put(ctx, e1))
	le, err = store.Last(ctx)
	require.NoError(t, err)
	require.True(t, e2.ContentEqual(le))
}

func TestStoreBolt(t *testing.T) {
	tmp := t.TempDir()
	ctx := context.Background()
	l := testlogger.New(t)

	store, err := NewBoltStore(ctx, l, tmp, nil)
	require.NoError(t, err)

	sLen, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, sLen)

	e1 := entry("node-a", trace.StageExtract, 1, true)
	e2 := entry("node-a", trace.StageTransform, 1, false)

	require.NoError(t, store.Put(ctx, e1))
	sLen, err = store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sLen)

	// identical re-append is an idempotent no-op
	require.NoError(t, store.Put(ctx, e1))
	sLen, err = store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sLen)

	require.NoError(t, store.Put(ctx, e2))

	got, err := store.Get(ctx, "node-a", trace.StageExtract, 1)
	require.NoError(t, err)
	require.True(t, e1.ContentEqual(got))

	_, err = store.Get(ctx, "node-a", trace.StageQuery, 1)
	require.ErrorIs(t, err, ledgererrors.ErrNoEntry)

	require.NoError(t, store.Close(ctx))

	// re-open: entries persisted
	store, err = NewBoltStore(ctx, l, tmp, nil)
	require.NoError(t, err)
	got, err = store.Get(ctx, "node-a", trace.StageTransform, 1)
	require.NoError(t, err)
	require.True(t, e2.ContentEqual(got))
	require.NoError(t, store.Close(ctx))
}

func TestStoreBoltAppendOnly(t *testing.T) {
	tmp := t.TempDir()
	ctx := context.Background()
	store, err := NewBoltStore(ctx, testlogger.New(t), tmp, nil)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close(ctx))
	}()

	e := entry("node-a", trace.StageExtract, 7, true)
	require.NoError(t, store.Put(ctx, e))

	// same key, different outcome: the existing record must survive
	conflicting := entry("node-a", trace.StageExtract, 7, false)
	require.ErrorIs(t, store.Put(ctx, conflicting), ledgererrors.ErrWriteConflict)

	got, err := store.Get(ctx, "node-a", trace.StageExtract, 7)
	require.NoError(t, err)
	require.True(t, e.ContentEqual(got))
	require.True(t, got.Accepted)
}

func TestStoreBoltCursor(t *testing.T) {
	tmp := t.TempDir()
	ctx := context.Background()
	store, err := NewBoltStore(ctx, testlogger.New(t), tmp, nil)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close(ctx))
	}()

	stages := []trace.StageID{trace.StageExtract, trace.StageLoad, trace.StageQuery}
	for i, s := range stages {
		require.NoError(t, store.Put(ctx, entry("node-a", s, uint64(i), true)))
	}
	require.NoError(t, store.Put(ctx, entry("node-b", trace.StageExtract, 0, false)))

	var seen int
	err = store.Cursor(ctx, func(ctx context.Context, c ledger.Cursor) error {
		for e, err := c.First(ctx); err == nil; e, err = c.Next(ctx) {
			seen++
			require.NotEmpty(t, e.NodeID)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, seen)

	// seek to node-b's prefix
	err = store.Cursor(ctx, func(ctx context.Context, c ledger.Cursor) error {
		e, err := c.Seek(ctx, append([]byte("node-b"), 0))
		require.NoError(t, err)
		require.Equal(t, "node-b", e.NodeID)
		return nil
	})
	require.NoError(t, err)
}
