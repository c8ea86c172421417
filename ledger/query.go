package ledger

import (
	"context"
	"errors"
	"time"

	ledgererrors "github.com/eureka-network/proof-experiments/ledger/errors"
	"github.com/eureka-network/proof-experiments/trace"
)

// Filter narrows a ledger scan. Zero fields match everything; the time range
// is half-open [After, Before).
type Filter struct {
	NodeID string
	Stage  trace.StageID
	After  time.Time
	Before time.Time
}

// Match reports whether the entry passes the filter.
func (f Filter) Match(e *Entry) bool {
	if f.NodeID != "" && e.NodeID != f.NodeID {
		return false
	}
	if f.Stage != "" && e.Stage != f.Stage {
		return false
	}
	if !f.After.IsZero() && e.Timestamp.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && !e.Timestamp.Before(f.Before) {
		return false
	}
	return true
}

// prefix returns the key prefix the filter can seek to, if any.
func (f Filter) prefix() []byte {
	if f.NodeID == "" {
		return nil
	}
	p := append([]byte(f.NodeID), 0)
	if f.Stage != "" {
		p = append(p, f.Stage...)
		p = append(p, 0)
	}
	return p
}

// Select lazily walks the store in key order and calls fn for every entry
// matching the filter, until fn returns false or the store is exhausted. The
// walk is finite and restartable: calling Select again starts over.
func Select(ctx context.Context, s Store, f Filter, fn func(*Entry) bool) error {
	return s.Cursor(ctx, func(ctx context.Context, c Cursor) error {
		var e *Entry
		var err error
		if p := f.prefix(); p != nil {
			e, err = c.Seek(ctx, p)
		} else {
			e, err = c.First(ctx)
		}
		for ; err == nil; e, err = c.Next(ctx) {
			if f.Match(e) && !fn(e) {
				return nil
			}
		}
		if errors.Is(err, ledgererrors.ErrNoEntry) {
			return nil
		}
		return err
	})
}
