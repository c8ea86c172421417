package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/prover"
	"github.com/eureka-network/proof-experiments/trace"
)

func provenTrace(t *testing.T) (*trace.ExecutionTrace, commit.Commitment, *prover.Envelope) {
	t.Helper()
	rec := trace.NewRecorder("node-a", 1)
	ctx := context.Background()
	input := []byte("dataset")
	for _, stage := range []trace.StageID{
		trace.StageExtract, trace.StageTransform, trace.StageLoad, trace.StageQuery,
	} {
		out, err := rec.RunStage(ctx, stage, func(_ context.Context, in []byte) ([]byte, []byte, error) {
			return append([]byte(stage), in...), []byte("step"), nil
		}, input)
		require.NoError(t, err)
		input = out
	}
	tr, err := rec.Finalize()
	require.NoError(t, err)

	com, err := commit.Commit(tr)
	require.NoError(t, err)

	env, err := New().Prove(ctx, tr, com)
	require.NoError(t, err)
	return tr, com, env
}

func TestProveVerify(t *testing.T) {
	tr, com, env := provenTrace(t)

	require.Equal(t, prover.KindVM, env.Backend)
	require.Equal(t, com, env.Commitment)
	require.NoError(t, Verify(env, prover.PublicInputs(tr)))
}

func TestProveRejectsWrongCommitment(t *testing.T) {
	rec := trace.NewRecorder("node-a", 1)
	out, err := rec.RunStage(context.Background(), trace.StageExtract,
		func(_ context.Context, in []byte) ([]byte, []byte, error) {
			return append([]byte("x"), in...), nil, nil
		}, []byte("dataset"))
	require.NoError(t, err)
	require.NotNil(t, out)
	tr, err := rec.Finalize()
	require.NoError(t, err)

	_, err = New().Prove(context.Background(), tr, commit.Commitment{0xde, 0xad})
	require.ErrorIs(t, err, prover.ErrProofGenerationFailed)
}

func TestProveHonorsContext(t *testing.T) {
	tr, com, _ := provenTrace(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Prove(ctx, tr, com)
	require.ErrorIs(t, err, prover.ErrProofGenerationFailed)
}

func TestVerifyRejectsTampering(t *testing.T) {
	tr, _, env := provenTrace(t)
	public := prover.PublicInputs(tr)

	// Flip one transcript leaf byte: root no longer matches.
	tampered := *env
	tampered.Payload = append([]byte(nil), env.Payload...)
	tampered.Payload[2] ^= 1
	require.Error(t, Verify(&tampered, public))

	// Claim a different commitment for the same transcript.
	swapped := *env
	swapped.Commitment = commit.Commitment{1}
	require.Error(t, Verify(&swapped, public))

	// Claim a different public statement.
	wrongPublic := [][]byte{public[1], public[0]}
	require.Error(t, Verify(env, wrongPublic))
}

func TestVerifyRejectsMalformedPayload(t *testing.T) {
	tr, _, env := provenTrace(t)
	public := prover.PublicInputs(tr)

	for _, payload := range [][]byte{
		nil,
		{},
		{0xff},
		{payloadVersion},
		{payloadVersion, 0},
		env.Payload[:len(env.Payload)-1],
	} {
		bad := *env
		bad.Payload = payload
		require.ErrorIs(t, Verify(&bad, public), prover.ErrMalformedProof)
	}
}
