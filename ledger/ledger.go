// Package ledger defines the append-only accountability record. Every
// verified (or rejected) proof of a node's pipeline stage becomes an Entry
// keyed by (node, stage, sequence); once written an entry is never mutated or
// deleted. The ledger is the system's observable audit surface: external
// auditors read it without re-running any proof.
package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"time"

	json "github.com/nikkolasg/hexjson"

	"github.com/eureka-network/proof-experiments/trace"
)

// Entry associates a node and pipeline stage with a commitment and the
// outcome of verifying its proof.
type Entry struct {
	NodeID     string        `json:"node_id"`
	Stage      trace.StageID `json:"stage"`
	Seq        uint64        `json:"seq"`
	Commitment []byte        `json:"commitment"`
	Backend    string        `json:"backend"`
	Accepted   bool          `json:"accepted"`
	Reason     string        `json:"reason,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Key returns the storage key of the entry.
func (e *Entry) Key() []byte {
	return KeyOf(e.NodeID, e.Stage, e.Seq)
}

// KeyOf builds the (node, stage, seq) storage key. Keys of the same node and
// stage sort by sequence number.
func KeyOf(nodeID string, stage trace.StageID, seq uint64) []byte {
	key := make([]byte, 0, len(nodeID)+len(stage)+10)
	key = append(key, nodeID...)
	key = append(key, 0)
	key = append(key, stage...)
	key = append(key, 0)
	var seqb [8]byte
	binary.BigEndian.PutUint64(seqb[:], seq)
	return append(key, seqb[:]...)
}

// ContentEqual reports whether two entries record the same outcome,
// ignoring the append timestamp. Re-appending identical content is an
// idempotent no-op rather than a write conflict.
func (e *Entry) ContentEqual(o *Entry) bool {
	return e.NodeID == o.NodeID &&
		e.Stage == o.Stage &&
		e.Seq == o.Seq &&
		bytes.Equal(e.Commitment, o.Commitment) &&
		e.Backend == o.Backend &&
		e.Accepted == o.Accepted &&
		e.Reason == o.Reason
}

// Marshal encodes the entry for storage.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a stored entry.
func (e *Entry) Unmarshal(buf []byte) error {
	return json.Unmarshal(buf, e)
}

// Store is an interface to record ledger entries where they can also be
// retrieved for audit. There is no delete and no update path.
type Store interface {
	Len(ctx context.Context) (int, error)
	Put(ctx context.Context, e *Entry) error
	Last(ctx context.Context) (*Entry, error)
	Get(ctx context.Context, nodeID string, stage trace.StageID, seq uint64) (*Entry, error)
	Cursor(ctx context.Context, fn func(context.Context, Cursor) error) error
	SaveTo(ctx context.Context, w io.Writer) error
	Close(ctx context.Context) error
}

// Cursor iterates over entries in sorted key order. Iteration finishes when
// a call returns errors.ErrNoEntry.
type Cursor interface {
	First(ctx context.Context) (*Entry, error)
	Next(ctx context.Context) (*Entry, error)
	Seek(ctx context.Context, prefix []byte) (*Entry, error)
	Last(ctx context.Context) (*Entry, error)
}
