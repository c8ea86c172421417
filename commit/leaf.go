package commit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/eureka-network/proof-experiments/trace"
)

// LeafWidth is the number of field elements folded into one record leaf.
const LeafWidth = 5

// LeafElements maps a record onto the field elements hashed into its leaf:
// index, stage code, input digest, output digest and witness digest, each
// reduced into the BN254 scalar field. The reduction is what both proof
// backends restate, so it must never change shape without a new encoding
// version.
func LeafElements(rec *trace.Record) [LeafWidth]fr.Element {
	var els [LeafWidth]fr.Element
	els[0].SetUint64(rec.Index)
	els[1].SetUint64(uint64(rec.Stage.Order()))
	els[2].SetBytes(rec.Input[:])
	els[3].SetBytes(rec.Output[:])
	wit := trace.DigestOf(rec.Witness)
	els[4].SetBytes(wit[:])
	return els
}

// LeafHash returns the MiMC hash of the record's leaf elements.
func LeafHash(rec *trace.Record) Commitment {
	els := LeafElements(rec)
	h := mimc.NewMiMC()
	for i := range els {
		b := els[i].Bytes()
		_, _ = h.Write(b[:])
	}
	var out Commitment
	copy(out[:], h.Sum(nil))
	return out
}

// DigestToElement reduces a raw 32-byte digest into the scalar field the same
// way LeafElements does. Proof backends use it to restate public inputs.
func DigestToElement(d trace.Digest) fr.Element {
	var e fr.Element
	e.SetBytes(d[:])
	return e
}
