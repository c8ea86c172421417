// Package commit binds execution traces to fixed-size cryptographic
// commitments. A commitment is the root of a MiMC Merkle tree over per-record
// leaves, where every leaf folds the record's index, stage, input and output
// digests and witness digest into the BN254 scalar field. MiMC keeps the same
// computation cheap to restate inside an arithmetic circuit, which is what
// lets the circuit proof backend re-derive the root the verifier checks
// against.
package commit

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/eureka-network/proof-experiments/trace"
)

// Size is the byte length of a commitment.
const Size = 32

// ErrMalformedTrace is returned when a trace violates the schema the
// commitment layer expects.
var ErrMalformedTrace = errors.New("malformed trace")

// Commitment is a binding, deterministic digest over a trace or a contiguous
// slice of its records.
type Commitment [Size]byte

// Hex returns the lowercase hex encoding of the commitment.
func (c Commitment) Hex() string {
	return hex.EncodeToString(c[:])
}

// String implements fmt.Stringer.
func (c Commitment) String() string {
	return c.Hex()
}

// IsZero reports whether the commitment is unset.
func (c Commitment) IsZero() bool {
	var zero Commitment
	return c == zero
}

// FromHex parses a hex-encoded commitment.
func FromHex(s string) (Commitment, error) {
	var c Commitment
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("commitment hex: %w", err)
	}
	if len(b) != Size {
		return c, fmt.Errorf("commitment hex: got %d bytes, want %d", len(b), Size)
	}
	copy(c[:], b)
	return c, nil
}

// Commit returns the commitment over all records of the trace.
func Commit(tr *trace.ExecutionTrace) (Commitment, error) {
	return CommitRange(tr, 0, len(tr.Records))
}

// CommitRange returns a partial commitment over records [lo, hi). It lets an
// auditor hold a node accountable for a single stage without re-committing
// the whole pipeline.
func CommitRange(tr *trace.ExecutionTrace, lo, hi int) (Commitment, error) {
	if err := checkSchema(tr); err != nil {
		return Commitment{}, err
	}
	if lo < 0 || hi > len(tr.Records) || lo >= hi {
		return Commitment{}, fmt.Errorf("%w: record range [%d, %d) out of bounds", ErrMalformedTrace, lo, hi)
	}

	leaves := make([]Commitment, 0, hi-lo)
	for i := lo; i < hi; i++ {
		leaves = append(leaves, LeafHash(&tr.Records[i]))
	}
	return Root(leaves), nil
}

// StageRange returns the record range covered by the given stage, or an error
// if the stage does not appear in the trace.
func StageRange(tr *trace.ExecutionTrace, stage trace.StageID) (lo, hi int, err error) {
	lo = -1
	for i := range tr.Records {
		if tr.Records[i].Stage != stage {
			continue
		}
		if lo < 0 {
			lo = i
		}
		hi = i + 1
	}
	if lo < 0 {
		return 0, 0, fmt.Errorf("%w: stage %q not present", ErrMalformedTrace, stage)
	}
	return lo, hi, nil
}

func checkSchema(tr *trace.ExecutionTrace) error {
	if tr == nil || len(tr.Records) == 0 {
		return fmt.Errorf("%w: no records", ErrMalformedTrace)
	}
	if len(tr.Records) > trace.MaxRecords {
		return fmt.Errorf("%w: %d records exceeds limit", ErrMalformedTrace, len(tr.Records))
	}
	for i := range tr.Records {
		rec := &tr.Records[i]
		if !rec.Stage.Valid() {
			return fmt.Errorf("%w: unknown stage %q at record %d", ErrMalformedTrace, rec.Stage, i)
		}
		if len(rec.Witness) > trace.MaxWitnessLen {
			return fmt.Errorf("%w: witness of record %d exceeds %d bytes", ErrMalformedTrace, i, trace.MaxWitnessLen)
		}
	}
	return nil
}
