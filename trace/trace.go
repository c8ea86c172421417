// Package trace captures deterministic execution traces of ETLQ pipeline
// stages. A trace is an ordered list of per-stage records carrying the blake3
// digests of the stage's declared input and output, plus an auxiliary witness
// blob. Once finalized a trace is immutable and owned by the node that
// produced it until submitted for proving.
package trace

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// DigestLen is the length in bytes of all record digests.
const DigestLen = 32

// MaxWitnessLen bounds the auxiliary witness carried by a single record.
const MaxWitnessLen = 1 << 20

// ErrIncomplete is returned when a trace misses required stages, records or
// output digests, or when its records do not chain.
var ErrIncomplete = errors.New("execution trace incomplete")

// Digest is a blake3-256 digest of stage input or output bytes.
type Digest [DigestLen]byte

// DigestOf hashes the given bytes with blake3.
func DigestOf(data []byte) Digest {
	h := blake3.New()
	_, _ = h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// IsZero reports whether the digest is all zeroes, the encoding of an omitted
// input or output.
func (d Digest) IsZero() bool {
	var zero Digest
	return d == zero
}

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// StageID identifies one of the four ETLQ pipeline stages.
type StageID string

const (
	StageExtract   StageID = "extract"
	StageTransform StageID = "transform"
	StageLoad      StageID = "load"
	StageQuery     StageID = "query"
)

var stageOrder = map[StageID]int{
	StageExtract:   0,
	StageTransform: 1,
	StageLoad:      2,
	StageQuery:     3,
}

// Valid reports whether s is one of the four ETLQ stages.
func (s StageID) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Order returns the position of the stage in the ETLQ pipeline, or -1 for an
// unknown stage.
func (s StageID) Order() int {
	o, ok := stageOrder[s]
	if !ok {
		return -1
	}
	return o
}

// Record is one executed stage inside a trace.
type Record struct {
	Stage   StageID
	Index   uint64
	Input   Digest
	Output  Digest
	Witness []byte
}

// Equal reports whether two records carry identical content.
func (r *Record) Equal(o *Record) bool {
	return r.Stage == o.Stage &&
		r.Index == o.Index &&
		r.Input == o.Input &&
		r.Output == o.Output &&
		bytes.Equal(r.Witness, o.Witness)
}

// ExecutionTrace is the ordered evidence of one ETLQ run by a node. Callers
// must treat a validated trace as read-only.
type ExecutionTrace struct {
	NodeID  string
	Run     uint64
	Records []Record
}

// Validate checks the structural invariants of a trace: known stages in ETLQ
// order, dense indices, present output digests, records chained input to
// previous output, and bounded witnesses. All violations wrap ErrIncomplete.
func (t *ExecutionTrace) Validate() error {
	if t.NodeID == "" {
		return fmt.Errorf("%w: empty node id", ErrIncomplete)
	}
	if len(t.Records) == 0 {
		return fmt.Errorf("%w: no stage records", ErrIncomplete)
	}
	lastStage := -1
	for i := range t.Records {
		rec := &t.Records[i]
		order, ok := stageOrder[rec.Stage]
		if !ok {
			return fmt.Errorf("%w: unknown stage %q at record %d", ErrIncomplete, rec.Stage, i)
		}
		if order < lastStage {
			return fmt.Errorf("%w: stage %q out of pipeline order at record %d", ErrIncomplete, rec.Stage, i)
		}
		lastStage = order
		if rec.Index != uint64(i) {
			return fmt.Errorf("%w: record %d carries index %d", ErrIncomplete, i, rec.Index)
		}
		if rec.Output.IsZero() {
			return fmt.Errorf("%w: stage %q omitted its output digest", ErrIncomplete, rec.Stage)
		}
		if len(rec.Witness) > MaxWitnessLen {
			return fmt.Errorf("%w: witness of record %d exceeds %d bytes", ErrIncomplete, i, MaxWitnessLen)
		}
		if i > 0 && rec.Input != t.Records[i-1].Output {
			return fmt.Errorf("%w: record %d input does not extend record %d output", ErrIncomplete, i, i-1)
		}
	}
	return nil
}

// Equal reports whether two traces carry identical content.
func (t *ExecutionTrace) Equal(o *ExecutionTrace) bool {
	if t.NodeID != o.NodeID || t.Run != o.Run || len(t.Records) != len(o.Records) {
		return false
	}
	for i := range t.Records {
		if !t.Records[i].Equal(&o.Records[i]) {
			return false
		}
	}
	return true
}

// Stages returns the distinct stages present in the trace, in pipeline order.
func (t *ExecutionTrace) Stages() []StageID {
	var out []StageID
	for i := range t.Records {
		s := t.Records[i].Stage
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}
