// Package vm implements the replay virtual-machine proof backend. Instead of
// an arithmetic circuit it re-executes the trace's digest transitions step by
// step and emits a hash-chain transcript over the committed leaves, folded
// with the public statement. The transcript is verifiable from the envelope
// alone: the verifier rebuilds the Merkle root from the disclosed leaves and
// replays the chain, so a proof cannot be rebound to a different commitment
// or statement.
package vm

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/prover"
	"github.com/eureka-network/proof-experiments/trace"
)

const payloadVersion = byte(1)

// linkLen is the transcript link size, one blake3 digest.
const linkLen = 32

// Backend is the replay-VM prover.
type Backend struct{}

// New returns the replay-VM backend.
func New() *Backend {
	return &Backend{}
}

// Kind implements prover.Backend.
func (*Backend) Kind() prover.BackendKind {
	return prover.KindVM
}

// Prove replays the trace and emits the transcript envelope. It fails when
// the trace does not replay cleanly or does not belong to the commitment.
func (*Backend) Prove(ctx context.Context, tr *trace.ExecutionTrace, com commit.Commitment) (*prover.Envelope, error) {
	if err := tr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: replay: %v", prover.ErrProofGenerationFailed, err)
	}

	public := prover.PublicInputs(tr)
	leaves := make([]commit.Commitment, len(tr.Records))
	link := chainSeed()
	for i := range tr.Records {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", prover.ErrProofGenerationFailed, ctx.Err())
		default:
		}
		leaves[i] = commit.LeafHash(&tr.Records[i])
		link = nextLink(link, leaves[i][:])
	}

	if commit.Root(leaves) != com {
		return nil, fmt.Errorf("%w: trace does not match commitment %s", prover.ErrProofGenerationFailed, com)
	}
	final := foldPublic(link, public)

	payload := []byte{payloadVersion}
	payload = binary.AppendUvarint(payload, uint64(len(leaves)))
	for i := range leaves {
		payload = append(payload, leaves[i][:]...)
	}
	payload = append(payload, final...)

	return &prover.Envelope{
		Backend:      prover.KindVM,
		Commitment:   com,
		PublicInputs: public,
		Payload:      payload,
	}, nil
}

// Verify checks a transcript envelope against its commitment and the given
// public statement. It is stateless and never panics on malformed payloads.
func Verify(env *prover.Envelope, public [][]byte) error {
	leaves, final, err := decodePayload(env.Payload)
	if err != nil {
		return err
	}

	if commit.Root(leaves) != env.Commitment {
		return fmt.Errorf("transcript leaves do not rebuild commitment %s", env.Commitment)
	}

	link := chainSeed()
	for i := range leaves {
		link = nextLink(link, leaves[i][:])
	}
	if !bytes.Equal(foldPublic(link, public), final) {
		return fmt.Errorf("transcript link does not match public statement")
	}
	return nil
}

func decodePayload(payload []byte) ([]commit.Commitment, []byte, error) {
	r := bytes.NewReader(payload)
	version, err := r.ReadByte()
	if err != nil || version != payloadVersion {
		return nil, nil, fmt.Errorf("%w: bad transcript version", prover.ErrMalformedProof)
	}
	n, err := binary.ReadUvarint(r)
	if err != nil || n == 0 || n > trace.MaxRecords {
		return nil, nil, fmt.Errorf("%w: bad leaf count", prover.ErrMalformedProof)
	}
	if uint64(r.Len()) != n*linkLen+linkLen {
		return nil, nil, fmt.Errorf("%w: transcript length mismatch", prover.ErrMalformedProof)
	}

	leaves := make([]commit.Commitment, n)
	for i := range leaves {
		_, _ = r.Read(leaves[i][:])
	}
	final := make([]byte, linkLen)
	_, _ = r.Read(final)
	return leaves, final, nil
}

func chainSeed() []byte {
	h := blake3.New()
	return h.Sum(nil)
}

func nextLink(prev, val []byte) []byte {
	h := blake3.New()
	_, _ = h.Write(prev)
	_, _ = h.Write(val)
	return h.Sum(nil)
}

func foldPublic(link []byte, public [][]byte) []byte {
	h := blake3.New()
	_, _ = h.Write(link)
	for _, pub := range public {
		_, _ = h.Write(pub)
	}
	return h.Sum(nil)
}
