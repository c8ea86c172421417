package prover

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/trace"
)

func TestParseKind(t *testing.T) {
	for _, tc := range []struct {
		in   string
		kind BackendKind
		ok   bool
	}{
		{"circuit", KindCircuit, true},
		{"vm", KindVM, true},
		{"", KindUnknown, false},
		{"snark", KindUnknown, false},
	} {
		k, err := ParseKind(tc.in)
		require.Equal(t, tc.kind, k, tc.in)
		if tc.ok {
			require.NoError(t, err)
			require.Equal(t, tc.in, k.String())
		} else {
			require.ErrorIs(t, err, ErrUnknownBackend)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := &Envelope{
		Backend:      KindCircuit,
		Commitment:   commit.Commitment{1, 2, 3},
		PublicInputs: [][]byte{{0xaa}, {0xbb, 0xcc}},
		Payload:      []byte("opaque proof bytes"),
	}

	var got Envelope
	require.NoError(t, got.Unmarshal(env.Marshal()))
	require.True(t, env.Equal(&got))
}

func TestEnvelopeUnmarshalRejectsGarbage(t *testing.T) {
	var env Envelope
	require.Error(t, env.Unmarshal(nil))
	require.Error(t, env.Unmarshal([]byte{envelopeVersion}))
	require.Error(t, env.Unmarshal([]byte("definitely not an envelope")))

	// Trailing bytes after a well-formed encoding are rejected.
	good := (&Envelope{Backend: KindVM, Payload: []byte{1}}).Marshal()
	require.Error(t, env.Unmarshal(append(good, 0)))
}

func TestPublicInputs(t *testing.T) {
	require.Nil(t, PublicInputs(nil))
	require.Nil(t, PublicInputs(&trace.ExecutionTrace{}))

	tr := &trace.ExecutionTrace{
		NodeID: "node-a",
		Records: []trace.Record{
			{Stage: trace.StageExtract, Input: trace.DigestOf([]byte("in")), Output: trace.DigestOf([]byte("mid"))},
			{Stage: trace.StageTransform, Index: 1, Input: trace.DigestOf([]byte("mid")), Output: trace.DigestOf([]byte("out"))},
		},
	}
	pub := PublicInputs(tr)
	require.Len(t, pub, 2)
	in := trace.DigestOf([]byte("in"))
	out := trace.DigestOf([]byte("out"))
	require.Equal(t, in[:], pub[0])
	require.Equal(t, out[:], pub[1])
}

type fakeBackend struct{ kind BackendKind }

func (f *fakeBackend) Kind() BackendKind { return f.kind }

func (f *fakeBackend) Prove(context.Context, *trace.ExecutionTrace, commit.Commitment) (*Envelope, error) {
	return &Envelope{Backend: f.kind}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&fakeBackend{KindVM})

	_, err := r.Get(KindCircuit)
	require.ErrorIs(t, err, ErrUnknownBackend)

	b, err := r.Get(KindVM)
	require.NoError(t, err)
	require.Equal(t, KindVM, b.Kind())

	r.Register(&fakeBackend{KindCircuit})
	require.Equal(t, []BackendKind{KindCircuit, KindVM}, r.Kinds())

	// Registering the same kind again replaces the backend.
	other := &fakeBackend{KindVM}
	r.Register(other)
	b, err = r.Get(KindVM)
	require.NoError(t, err)
	require.Same(t, other, b)
}
