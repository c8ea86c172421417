package commit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eureka-network/proof-experiments/trace"
)

func pipelineTrace(t *testing.T, node string, run uint64) *trace.ExecutionTrace {
	t.Helper()

	rec := trace.NewRecorder(node, run)
	ctx := context.Background()
	stage := func(tag string) trace.StageFunc {
		return func(_ context.Context, input []byte) ([]byte, []byte, error) {
			return append([]byte(tag+"|"), input...), []byte("w:" + tag), nil
		}
	}

	out, err := rec.RunStage(ctx, trace.StageExtract, stage("e"), []byte("corpus"))
	require.NoError(t, err)
	out, err = rec.RunStage(ctx, trace.StageTransform, stage("t"), out)
	require.NoError(t, err)
	out, err = rec.RunStage(ctx, trace.StageLoad, stage("l"), out)
	require.NoError(t, err)
	_, err = rec.RunStage(ctx, trace.StageQuery, stage("q"), out)
	require.NoError(t, err)

	tr, err := rec.Finalize()
	require.NoError(t, err)
	return tr
}

func TestCommitDeterminism(t *testing.T) {
	tr1 := pipelineTrace(t, "node-a", 3)
	tr2 := pipelineTrace(t, "node-a", 3)

	c1, err := Commit(tr1)
	require.NoError(t, err)
	c2, err := Commit(tr2)
	require.NoError(t, err)

	require.Equal(t, c1, c2)
	require.False(t, c1.IsZero())
}

func TestCommitBinding(t *testing.T) {
	base := pipelineTrace(t, "node-a", 3)
	root, err := Commit(base)
	require.NoError(t, err)

	mutations := []struct {
		name   string
		mutate func(*trace.ExecutionTrace)
	}{
		{"input digest", func(tr *trace.ExecutionTrace) { tr.Records[1].Input = trace.DigestOf([]byte("x")) }},
		{"output digest", func(tr *trace.ExecutionTrace) { tr.Records[2].Output = trace.DigestOf([]byte("y")) }},
		{"witness", func(tr *trace.ExecutionTrace) { tr.Records[0].Witness = []byte("other") }},
		{"index", func(tr *trace.ExecutionTrace) { tr.Records[3].Index = 12 }},
		{"stage", func(tr *trace.ExecutionTrace) { tr.Records[3].Stage = trace.StageLoad }},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			tr := pipelineTrace(t, "node-a", 3)
			m.mutate(tr)
			mutated, err := Commit(tr)
			require.NoError(t, err)
			require.NotEqual(t, root, mutated)
		})
	}
}

func TestCommitRangeMatchesFullCommit(t *testing.T) {
	tr := pipelineTrace(t, "node-a", 1)

	full, err := Commit(tr)
	require.NoError(t, err)
	ranged, err := CommitRange(tr, 0, len(tr.Records))
	require.NoError(t, err)
	require.Equal(t, full, ranged)

	partial, err := CommitRange(tr, 1, 3)
	require.NoError(t, err)
	require.NotEqual(t, full, partial)
}

func TestCommitRangeBounds(t *testing.T) {
	tr := pipelineTrace(t, "node-a", 1)

	_, err := CommitRange(tr, -1, 2)
	require.ErrorIs(t, err, ErrMalformedTrace)
	_, err = CommitRange(tr, 2, 2)
	require.ErrorIs(t, err, ErrMalformedTrace)
	_, err = CommitRange(tr, 0, len(tr.Records)+1)
	require.ErrorIs(t, err, ErrMalformedTrace)
}

func TestCommitRejectsMalformed(t *testing.T) {
	_, err := Commit(&trace.ExecutionTrace{NodeID: "n"})
	require.ErrorIs(t, err, ErrMalformedTrace)

	tr := pipelineTrace(t, "node-a", 1)
	tr.Records[0].Stage = "shuffle"
	_, err = Commit(tr)
	require.ErrorIs(t, err, ErrMalformedTrace)

	tr = pipelineTrace(t, "node-a", 1)
	tr.Records[0].Witness = make([]byte, trace.MaxWitnessLen+1)
	_, err = Commit(tr)
	require.ErrorIs(t, err, ErrMalformedTrace)
}

func TestStageRange(t *testing.T) {
	tr := pipelineTrace(t, "node-a", 1)

	lo, hi, err := StageRange(tr, trace.StageTransform)
	require.NoError(t, err)
	require.Equal(t, 1, lo)
	require.Equal(t, 2, hi)

	// a single record pads to a two-wide tree with a zero sibling
	stageCom, err := CommitRange(tr, lo, hi)
	require.NoError(t, err)
	require.Equal(t, nodeHash(LeafHash(&tr.Records[1]), Commitment{}), stageCom)

	_, _, err = StageRange(&trace.ExecutionTrace{Records: tr.Records[:1]}, trace.StageQuery)
	require.ErrorIs(t, err, ErrMalformedTrace)
}

func TestOpeningVerify(t *testing.T) {
	tr := pipelineTrace(t, "node-a", 1)
	root, err := Commit(tr)
	require.NoError(t, err)

	for i := range tr.Records {
		o, err := Open(tr, i)
		require.NoError(t, err)
		require.Equal(t, root, o.Root)
		require.True(t, o.Verify())

		// tampering with any part of the opening must fail
		bad := *o
		bad.Leaf[0] ^= 1
		require.False(t, bad.Verify())

		bad = *o
		bad.Index ^= 1
		require.False(t, bad.Verify())
	}

	_, err = Open(tr, len(tr.Records))
	require.ErrorIs(t, err, ErrMalformedTrace)
}

func TestFromHexRoundTrip(t *testing.T) {
	tr := pipelineTrace(t, "node-a", 1)
	c, err := Commit(tr)
	require.NoError(t, err)

	parsed, err := FromHex(c.Hex())
	require.NoError(t, err)
	require.Equal(t, c, parsed)

	_, err = FromHex("zz")
	require.Error(t, err)
	_, err = FromHex("abcd")
	require.Error(t, err)
}
