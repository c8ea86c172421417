// Package prover defines the uniform contract over interchangeable proving
// systems. A pipeline requests a proof for a (trace, commitment) pair without
// depending on which backend generates it: the circuit backend and the
// replay-VM backend have incompatible internal representations but expose the
// same external contract, and the verifier only dispatches on the envelope's
// declared kind.
package prover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/trace"
)

// ErrProofGenerationFailed wraps any backend-internal proving failure,
// including deadline expiry. It is never retried silently: a failed proof may
// indicate a misbehaving node, which is itself an accountability signal.
var ErrProofGenerationFailed = errors.New("proof generation failed")

// ErrUnknownBackend is returned when resolving a kind no backend serves.
var ErrUnknownBackend = errors.New("unknown proof backend")

// ErrMalformedProof is returned by backend verification when a payload does
// not decode to a structurally valid proof. Cryptographic rejection of a
// well-formed proof is reported separately.
var ErrMalformedProof = errors.New("malformed proof")

// BackendKind discriminates the proving systems.
type BackendKind uint8

const (
	// KindUnknown is the zero value and never a valid backend.
	KindUnknown BackendKind = iota
	// KindCircuit is the arithmetic-circuit SNARK backend.
	KindCircuit
	// KindVM is the replay virtual-machine transcript backend.
	KindVM
)

func (k BackendKind) String() string {
	switch k {
	case KindCircuit:
		return "circuit"
	case KindVM:
		return "vm"
	default:
		return "unknown"
	}
}

// ParseKind resolves a backend name from config or CLI flags.
func ParseKind(s string) (BackendKind, error) {
	switch s {
	case "circuit":
		return KindCircuit, nil
	case "vm":
		return KindVM, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// Backend turns a finalized trace and its commitment into a proof envelope.
// Prove must honor ctx cancellation and must not retain the trace.
type Backend interface {
	Kind() BackendKind
	Prove(ctx context.Context, tr *trace.ExecutionTrace, com commit.Commitment) (*Envelope, error)
}

// PublicInputs derives the public statement of a trace: the digest of what
// the pipeline consumed and the digest of what it finally produced.
func PublicInputs(tr *trace.ExecutionTrace) [][]byte {
	if tr == nil || len(tr.Records) == 0 {
		return nil
	}
	first := tr.Records[0].Input
	last := tr.Records[len(tr.Records)-1].Output
	return [][]byte{first[:], last[:]}
}

// Registry holds the configured backends keyed by kind.
type Registry struct {
	mu       sync.RWMutex
	backends map[BackendKind]Backend
}

// NewRegistry returns a registry serving the given backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[BackendKind]Backend)}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds or replaces the backend for its kind.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Kind()] = b
}

// Get resolves the backend serving the given kind.
func (r *Registry) Get(kind BackendKind) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, kind)
	}
	return b, nil
}

// Kinds lists the registered kinds in stable order.
func (r *Registry) Kinds() []BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BackendKind, 0, len(r.backends))
	for k := range r.backends {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
