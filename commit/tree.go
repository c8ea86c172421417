package commit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/eureka-network/proof-experiments/trace"
)

// PaddedWidth returns the number of leaf slots in the Merkle tree for n
// records: the next power of two, with a floor of two so a single-record
// trace still has a well-defined root.
func PaddedWidth(n int) int {
	w := 2
	for w < n {
		w <<= 1
	}
	return w
}

// Root computes the MiMC Merkle root over the given leaves, padding the level
// with zero leaves up to PaddedWidth.
func Root(leaves []Commitment) Commitment {
	level := make([]Commitment, PaddedWidth(len(leaves)))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]Commitment, len(level)/2)
		for i := range next {
			next[i] = nodeHash(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

func nodeHash(left, right Commitment) Commitment {
	h := mimc.NewMiMC()
	_, _ = h.Write(left[:])
	_, _ = h.Write(right[:])
	var out Commitment
	copy(out[:], h.Sum(nil))
	return out
}

// Opening is a Merkle membership proof for one record leaf under a
// commitment.
type Opening struct {
	Root  Commitment
	Leaf  Commitment
	Index uint64
	Path  []Commitment
}

// Open produces a membership proof for the record at index against the
// full-trace commitment.
func Open(tr *trace.ExecutionTrace, index int) (*Opening, error) {
	if err := checkSchema(tr); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(tr.Records) {
		return nil, fmt.Errorf("%w: record index %d out of bounds", ErrMalformedTrace, index)
	}

	level := make([]Commitment, PaddedWidth(len(tr.Records)))
	for i := range tr.Records {
		level[i] = LeafHash(&tr.Records[i])
	}

	o := &Opening{
		Leaf:  level[index],
		Index: uint64(index),
	}
	pos := index
	for len(level) > 1 {
		o.Path = append(o.Path, level[pos^1])
		next := make([]Commitment, len(level)/2)
		for i := range next {
			next[i] = nodeHash(level[2*i], level[2*i+1])
		}
		level = next
		pos >>= 1
	}
	o.Root = level[0]
	return o, nil
}

// Verify recomputes the root from the leaf and sibling path.
func (o *Opening) Verify() bool {
	cur := o.Leaf
	pos := o.Index
	for _, sib := range o.Path {
		if pos&1 == 0 {
			cur = nodeHash(cur, sib)
		} else {
			cur = nodeHash(sib, cur)
		}
		pos >>= 1
	}
	return cur == o.Root
}
