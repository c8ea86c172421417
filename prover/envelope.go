package prover

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/eureka-network/proof-experiments/commit"
)

const envelopeVersion = byte(1)

// maxPublicInputs bounds the decoded public input count.
const maxPublicInputs = 64

// Envelope is the backend-agnostic proof artifact: an opaque payload plus the
// metadata binding it to a commitment and a public statement. An envelope is
// meaningless without its paired commitment; the verifier rejects mismatched
// pairs before touching the payload.
type Envelope struct {
	Backend      BackendKind
	Commitment   commit.Commitment
	PublicInputs [][]byte
	Payload      []byte
}

// Equal reports whether two envelopes carry identical content.
func (e *Envelope) Equal(o *Envelope) bool {
	if e.Backend != o.Backend || e.Commitment != o.Commitment ||
		len(e.PublicInputs) != len(o.PublicInputs) ||
		!bytes.Equal(e.Payload, o.Payload) {
		return false
	}
	for i := range e.PublicInputs {
		if !bytes.Equal(e.PublicInputs[i], o.PublicInputs[i]) {
			return false
		}
	}
	return true
}

// Marshal returns the envelope's canonical byte encoding.
func (e *Envelope) Marshal() []byte {
	buf := []byte{envelopeVersion, byte(e.Backend)}
	buf = append(buf, e.Commitment[:]...)
	buf = binary.AppendUvarint(buf, uint64(len(e.PublicInputs)))
	for _, pub := range e.PublicInputs {
		buf = binary.AppendUvarint(buf, uint64(len(pub)))
		buf = append(buf, pub...)
	}
	buf = binary.AppendUvarint(buf, uint64(len(e.Payload)))
	buf = append(buf, e.Payload...)
	return buf
}

// Unmarshal decodes an envelope encoding produced by Marshal.
func (e *Envelope) Unmarshal(data []byte) error {
	r := bytes.NewReader(data)

	var hdr [2 + commit.Size]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil || hdr[0] != envelopeVersion {
		return fmt.Errorf("proof envelope: bad header")
	}
	e.Backend = BackendKind(hdr[1])
	copy(e.Commitment[:], hdr[2:])

	nPub, err := binary.ReadUvarint(r)
	if err != nil || nPub > maxPublicInputs {
		return fmt.Errorf("proof envelope: bad public input count")
	}
	e.PublicInputs = make([][]byte, 0, nPub)
	for i := uint64(0); i < nPub; i++ {
		pub, err := readBlob(r)
		if err != nil {
			return fmt.Errorf("proof envelope: public input %d: %w", i, err)
		}
		e.PublicInputs = append(e.PublicInputs, pub)
	}

	e.Payload, err = readBlob(r)
	if err != nil {
		return fmt.Errorf("proof envelope: payload: %w", err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("proof envelope: %d trailing bytes", r.Len())
	}
	return nil
}

func readBlob(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("bad length prefix")
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("length %d overruns buffer", n)
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
