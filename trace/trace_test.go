package trace

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func validTrace(t *testing.T) *ExecutionTrace {
	t.Helper()

	rec := NewRecorder("node-1", 7)
	ctx := context.Background()

	out, err := rec.RunStage(ctx, StageExtract, echoStage("extracted"), []byte("raw documents"))
	require.NoError(t, err)
	out, err = rec.RunStage(ctx, StageTransform, echoStage("transformed"), out)
	require.NoError(t, err)
	out, err = rec.RunStage(ctx, StageLoad, echoStage("loaded"), out)
	require.NoError(t, err)
	_, err = rec.RunStage(ctx, StageQuery, echoStage("answer"), out)
	require.NoError(t, err)

	tr, err := rec.Finalize()
	require.NoError(t, err)
	return tr
}

func echoStage(out string) StageFunc {
	return func(_ context.Context, input []byte) ([]byte, []byte, error) {
		return append([]byte(out+":"), input...), []byte("aux"), nil
	}
}

func TestDigestDeterminism(t *testing.T) {
	d1 := DigestOf([]byte("hello"))
	d2 := DigestOf([]byte("hello"))
	require.Equal(t, d1, d2)
	require.NotEqual(t, d1, DigestOf([]byte("hellp")))
	require.False(t, d1.IsZero())

	var zero Digest
	require.True(t, zero.IsZero())
}

func TestRecorderChainsStages(t *testing.T) {
	tr := validTrace(t)
	require.NoError(t, tr.Validate())
	require.Len(t, tr.Records, 4)
	require.Equal(t, []StageID{StageExtract, StageTransform, StageLoad, StageQuery}, tr.Stages())

	for i := 1; i < len(tr.Records); i++ {
		require.Equal(t, tr.Records[i-1].Output, tr.Records[i].Input)
	}
}

func TestRecorderRejectsOutOfOrderStage(t *testing.T) {
	rec := NewRecorder("node-1", 1)
	ctx := context.Background()

	out, err := rec.RunStage(ctx, StageTransform, echoStage("t"), []byte("in"))
	require.NoError(t, err)

	_, err = rec.RunStage(ctx, StageExtract, echoStage("e"), out)
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestRecorderRejectsBrokenChain(t *testing.T) {
	rec := NewRecorder("node-1", 1)
	ctx := context.Background()

	_, err := rec.RunStage(ctx, StageExtract, echoStage("e"), []byte("in"))
	require.NoError(t, err)

	_, err = rec.RunStage(ctx, StageTransform, echoStage("t"), []byte("not the extract output"))
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestRecorderPropagatesStageError(t *testing.T) {
	rec := NewRecorder("node-1", 1)
	boom := errors.New("boom")
	failing := func(context.Context, []byte) ([]byte, []byte, error) {
		return nil, nil, boom
	}

	_, err := rec.RunStage(context.Background(), StageExtract, failing, []byte("in"))
	require.ErrorIs(t, err, boom)

	_, err = rec.Finalize()
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestValidateTable(t *testing.T) {
	base := validTrace(t)

	tests := []struct {
		name   string
		mutate func(*ExecutionTrace)
	}{
		{"empty node id", func(tr *ExecutionTrace) { tr.NodeID = "" }},
		{"no records", func(tr *ExecutionTrace) { tr.Records = nil }},
		{"unknown stage", func(tr *ExecutionTrace) { tr.Records[0].Stage = "shuffle" }},
		{"out of order", func(tr *ExecutionTrace) { tr.Records[3].Stage = StageExtract }},
		{"sparse index", func(tr *ExecutionTrace) { tr.Records[2].Index = 9 }},
		{"missing output", func(tr *ExecutionTrace) { tr.Records[1].Output = Digest{} }},
		{"broken chain", func(tr *ExecutionTrace) { tr.Records[2].Input = DigestOf([]byte("x")) }},
		{"oversized witness", func(tr *ExecutionTrace) { tr.Records[0].Witness = make([]byte, MaxWitnessLen+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := cloneTrace(base)
			tt.mutate(tr)
			require.ErrorIs(t, tr.Validate(), ErrIncomplete)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	tr := validTrace(t)
	buf := tr.Marshal()

	var decoded ExecutionTrace
	require.NoError(t, decoded.Unmarshal(buf))
	require.True(t, tr.Equal(&decoded))
	require.NoError(t, decoded.Validate())
}

func TestMarshalIsByteStable(t *testing.T) {
	tr1 := validTrace(t)
	tr2 := validTrace(t)
	require.True(t, bytes.Equal(tr1.Marshal(), tr2.Marshal()))

	require.True(t, bytes.Equal(
		MarshalRecord(&tr1.Records[0]),
		MarshalRecord(&tr2.Records[0]),
	))
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var tr ExecutionTrace
	require.Error(t, tr.Unmarshal(nil))
	require.Error(t, tr.Unmarshal([]byte{0xff, 0x01, 0x02}))

	// trailing bytes after a valid encoding
	buf := append(validTrace(t).Marshal(), 0x00)
	require.Error(t, tr.Unmarshal(buf))
}

func cloneTrace(t *ExecutionTrace) *ExecutionTrace {
	out := &ExecutionTrace{NodeID: t.NodeID, Run: t.Run}
	out.Records = make([]Record, len(t.Records))
	copy(out.Records, t.Records)
	for i := range out.Records {
		if t.Records[i].Witness != nil {
			out.Records[i].Witness = append([]byte(nil), t.Records[i].Witness...)
		}
	}
	return out
}
