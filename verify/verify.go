// Package verify checks proof envelopes against commitments and public
// statements, independent of which backend produced them. Verification is
// stateless and side-effect free: it never touches the accountability ledger,
// the caller records the outcome.
package verify

import (
	"bytes"
	"errors"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/prover"
	"github.com/eureka-network/proof-experiments/prover/circuit"
	"github.com/eureka-network/proof-experiments/prover/vm"
)

// Rejection reasons surfaced in results and ledger entries.
const (
	ReasonBackendMismatch = "backend mismatch"
	ReasonMalformedProof  = "malformed proof"
	ReasonRejected        = "verification failed"
)

// Result is the terminal outcome of one verification. It is immutable once
// produced.
type Result struct {
	Accepted bool
	Reason   string
	Detail   string
}

func accept() Result {
	return Result{Accepted: true}
}

func reject(reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// Verifier dispatches envelopes to backend verification. It needs the circuit
// backend to reach the verifying keys for the proof's shape; the VM
// transcript check is self-contained.
type Verifier struct {
	circuit *circuit.Backend
}

// New returns a verifier using the given circuit backend's key material.
func New(circuitBackend *circuit.Backend) *Verifier {
	return &Verifier{circuit: circuitBackend}
}

// Verify checks the envelope against the claimed commitment and public
// statement. It rejects, never panics, on mismatched pairs, malformed
// payloads and failed cryptographic checks.
func (v *Verifier) Verify(env *prover.Envelope, com commit.Commitment, public [][]byte) Result {
	if env == nil || len(env.Payload) == 0 {
		return reject(ReasonMalformedProof, "empty proof envelope")
	}
	if env.Commitment != com {
		return reject(ReasonBackendMismatch, "proof bound to a different commitment")
	}
	if !statementEqual(env.PublicInputs, public) {
		return reject(ReasonBackendMismatch, "proof bound to a different public statement")
	}

	var err error
	switch env.Backend {
	case prover.KindCircuit:
		if v.circuit == nil {
			return reject(ReasonBackendMismatch, "circuit backend not configured")
		}
		err = v.circuit.Verify(env, public)
	case prover.KindVM:
		err = vm.Verify(env, public)
	default:
		return reject(ReasonBackendMismatch, "unknown backend kind")
	}

	if err == nil {
		return accept()
	}
	if errors.Is(err, prover.ErrMalformedProof) {
		return reject(ReasonMalformedProof, err.Error())
	}
	return reject(ReasonRejected, err.Error())
}

func statementEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
