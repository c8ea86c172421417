package circuit

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/common/log"
	"github.com/eureka-network/proof-experiments/prover"
	"github.com/eureka-network/proof-experiments/trace"
)

const payloadVersion = byte(1)

// Backend is the groth16 circuit prover. Compiled constraint systems and key
// material are cached per circuit shape (record count) and optionally
// persisted under a key directory so that verification can happen in a
// separate process.
type Backend struct {
	shapes *shapeCache
	log    log.Logger
}

// Option configures the backend.
type Option func(*Backend)

// WithKeyDir persists per-shape proving and verifying keys under dir.
func WithKeyDir(dir string) Option {
	return func(b *Backend) {
		b.shapes.keyDir = dir
	}
}

// WithLogger sets the backend logger.
func WithLogger(l log.Logger) Option {
	return func(b *Backend) {
		b.log = l
	}
}

// New returns the circuit backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		shapes: newShapeCache(),
		log:    log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.shapes.log = b.log.Named("circuit")
	return b
}

// Kind implements prover.Backend.
func (*Backend) Kind() prover.BackendKind {
	return prover.KindCircuit
}

// Prove implements prover.Backend.
func (b *Backend) Prove(ctx context.Context, tr *trace.ExecutionTrace, com commit.Commitment) (*prover.Envelope, error) {
	if err := tr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", prover.ErrProofGenerationFailed, err)
	}
	if native, err := commit.Commit(tr); err != nil {
		return nil, fmt.Errorf("%w: %v", prover.ErrProofGenerationFailed, err)
	} else if native != com {
		return nil, fmt.Errorf("%w: trace does not match commitment %s", prover.ErrProofGenerationFailed, com)
	}

	n := len(tr.Records)
	shape, err := b.shapes.get(n)
	if err != nil {
		return nil, fmt.Errorf("%w: circuit shape %d: %v", prover.ErrProofGenerationFailed, n, err)
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", prover.ErrProofGenerationFailed, ctx.Err())
	default:
	}

	assignment := newPipelineCircuit(n)
	assignment.Root = new(big.Int).SetBytes(com[:])
	public := prover.PublicInputs(tr)
	assignment.FirstInput = reduceDigest(public[0])
	assignment.LastOutput = reduceDigest(public[1])
	for i := range tr.Records {
		rec := &tr.Records[i]
		els := commit.LeafElements(rec)
		assignment.Indices[i] = els[0].BigInt(new(big.Int))
		assignment.Stages[i] = els[1].BigInt(new(big.Int))
		assignment.Inputs[i] = els[2].BigInt(new(big.Int))
		assignment.Outputs[i] = els[3].BigInt(new(big.Int))
		assignment.Witnesses[i] = els[4].BigInt(new(big.Int))
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: witness: %v", prover.ErrProofGenerationFailed, err)
	}
	proof, err := groth16.Prove(shape.ccs, shape.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", prover.ErrProofGenerationFailed, err)
	}

	var payload bytes.Buffer
	payload.WriteByte(payloadVersion)
	payload.Write(binary.AppendUvarint(nil, uint64(n)))
	if _, err := proof.WriteTo(&payload); err != nil {
		return nil, fmt.Errorf("%w: encoding proof: %v", prover.ErrProofGenerationFailed, err)
	}

	return &prover.Envelope{
		Backend:      prover.KindCircuit,
		Commitment:   com,
		PublicInputs: public,
		Payload:      payload.Bytes(),
	}, nil
}

// Verify checks a groth16 envelope against its commitment and the given
// public statement. It only needs the verifying key for the proof's shape.
func (b *Backend) Verify(env *prover.Envelope, public [][]byte) error {
	r := bytes.NewReader(env.Payload)
	version, err := r.ReadByte()
	if err != nil || version != payloadVersion {
		return fmt.Errorf("%w: bad payload version", prover.ErrMalformedProof)
	}
	n, err := binary.ReadUvarint(r)
	if err != nil || n == 0 || n > trace.MaxRecords {
		return fmt.Errorf("%w: bad record count", prover.ErrMalformedProof)
	}
	if len(public) != 2 || len(public[0]) != trace.DigestLen || len(public[1]) != trace.DigestLen {
		return fmt.Errorf("%w: bad public statement", prover.ErrMalformedProof)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(r); err != nil {
		return fmt.Errorf("%w: %v", prover.ErrMalformedProof, err)
	}

	shape, err := b.shapes.get(int(n))
	if err != nil {
		return fmt.Errorf("circuit shape %d: %w", n, err)
	}

	assignment := newPipelineCircuit(int(n))
	assignment.Root = new(big.Int).SetBytes(env.Commitment[:])
	assignment.FirstInput = reduceDigest(public[0])
	assignment.LastOutput = reduceDigest(public[1])

	pubWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: public witness: %v", prover.ErrMalformedProof, err)
	}
	return groth16.Verify(proof, shape.vk, pubWitness)
}

func reduceDigest(raw []byte) *big.Int {
	var d trace.Digest
	copy(d[:], raw)
	e := commit.DigestToElement(d)
	return e.BigInt(new(big.Int))
}
