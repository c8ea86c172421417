package circuit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/common/testlogger"
	"github.com/eureka-network/proof-experiments/prover"
	"github.com/eureka-network/proof-experiments/trace"
)

func pipelineTrace(t *testing.T, seed string) (*trace.ExecutionTrace, commit.Commitment) {
	t.Helper()
	rec := trace.NewRecorder("node-a", 1)
	ctx := context.Background()
	input := []byte(seed)
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
	return tr, com
}

// The groth16 setup dominates this test so everything shares one backend and
// one circuit shape.
func TestProveVerify(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	b := New(WithKeyDir(t.TempDir()), WithLogger(testlogger.New(t)))
	ctx := context.Background()

	tr, com := pipelineTrace(t, "dataset")
	public := prover.PublicInputs(tr)

	env, err := b.Prove(ctx, tr, com)
	require.NoError(t, err)
	require.Equal(t, prover.KindCircuit, env.Backend)
	require.Equal(t, com, env.Commitment)
	require.NoError(t, b.Verify(env, public))

	t.Run("wrong public statement", func(t *testing.T) {
		swapped := [][]byte{public[1], public[0]}
		require.Error(t, b.Verify(env, swapped))
	})

	t.Run("wrong commitment", func(t *testing.T) {
		forged := *env
		forged.Commitment = commit.Commitment{1}
		require.Error(t, b.Verify(&forged, public))
	})

	t.Run("proof does not transfer between traces", func(t *testing.T) {
		other, otherCom := pipelineTrace(t, "different dataset")
		forged := *env
		forged.Commitment = otherCom
		require.Error(t, b.Verify(&forged, prover.PublicInputs(other)))
	})

	t.Run("malformed payload", func(t *testing.T) {
		for _, payload := range [][]byte{nil, {}, {0xff, 0x01}, {payloadVersion}} {
			bad := *env
			bad.Payload = payload
			require.ErrorIs(t, b.Verify(&bad, public), prover.ErrMalformedProof)
		}
	})
}

func TestProveRejectsMismatchedCommitment(t *testing.T) {
	b := New(WithLogger(testlogger.New(t)))
	tr, _ := pipelineTrace(t, "dataset")

	_, err := b.Prove(context.Background(), tr, commit.Commitment{0xde, 0xad})
	require.ErrorIs(t, err, prover.ErrProofGenerationFailed)
}

func TestKeysPersistAcrossBackends(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	keyDir := t.TempDir()
	ctx := context.Background()
	tr, com := pipelineTrace(t, "dataset")

	env, err := New(WithKeyDir(keyDir)).Prove(ctx, tr, com)
	require.NoError(t, err)

	// A fresh backend over the same key directory loads the persisted keys
	// instead of running a new setup, so the old proof still verifies.
	reloaded := New(WithKeyDir(keyDir))
	require.NoError(t, reloaded.Verify(env, prover.PublicInputs(tr)))
}
