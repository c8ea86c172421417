package trace

import (
	"encoding/binary"
	"fmt"
)

// encodingVersion prefixes every canonical encoding so the layout can be
// migrated without colliding digests across versions.
const encodingVersion = byte(1)

// MaxRecords bounds the number of records a decoded trace may carry.
const MaxRecords = 1 << 16

// MarshalRecord returns the canonical byte encoding of a single record. The
// layout is fixed-order and length-prefixed so that equal records always
// produce equal bytes.
func MarshalRecord(r *Record) []byte {
	buf := make([]byte, 0, 2*DigestLen+len(r.Stage)+len(r.Witness)+16)
	buf = append(buf, encodingVersion)
	buf = appendBytes(buf, []byte(r.Stage))
	buf = binary.AppendUvarint(buf, r.Index)
	buf = append(buf, r.Input[:]...)
	buf = append(buf, r.Output[:]...)
	buf = appendBytes(buf, r.Witness)
	return buf
}

// Marshal returns the canonical byte encoding of the whole trace.
func (t *ExecutionTrace) Marshal() []byte {
	buf := []byte{encodingVersion}
	buf = appendBytes(buf, []byte(t.NodeID))
	buf = binary.AppendUvarint(buf, t.Run)
	buf = binary.AppendUvarint(buf, uint64(len(t.Records)))
	for i := range t.Records {
		buf = appendBytes(buf, MarshalRecord(&t.Records[i]))
	}
	return buf
}

// Unmarshal decodes a canonical trace encoding. It only checks the framing;
// callers wanting the structural invariants must run Validate afterwards.
func (t *ExecutionTrace) Unmarshal(data []byte) error {
	d := decoder{buf: data}
	if v := d.byte(); v != encodingVersion {
		return fmt.Errorf("trace encoding: unsupported version %d", v)
	}
	t.NodeID = string(d.bytes())
	t.Run = d.uvarint()
	n := d.uvarint()
	if n > MaxRecords {
		return fmt.Errorf("trace encoding: %d records exceeds limit", n)
	}
	t.Records = make([]Record, 0, n)
	for i := uint64(0); i < n; i++ {
		var rec Record
		if err := unmarshalRecord(d.bytes(), &rec); err != nil {
			return fmt.Errorf("trace encoding: record %d: %w", i, err)
		}
		t.Records = append(t.Records, rec)
	}
	if d.err != nil {
		return fmt.Errorf("trace encoding: %w", d.err)
	}
	if d.off != len(data) {
		return fmt.Errorf("trace encoding: %d trailing bytes", len(data)-d.off)
	}
	return nil
}

func unmarshalRecord(data []byte, r *Record) error {
	d := decoder{buf: data}
	if v := d.byte(); v != encodingVersion {
		return fmt.Errorf("unsupported version %d", v)
	}
	r.Stage = StageID(d.bytes())
	r.Index = d.uvarint()
	copy(r.Input[:], d.raw(DigestLen))
	copy(r.Output[:], d.raw(DigestLen))
	if w := d.bytes(); len(w) > 0 {
		r.Witness = append([]byte(nil), w...)
	}
	if d.err != nil {
		return d.err
	}
	if d.off != len(data) {
		return fmt.Errorf("%d trailing bytes", len(data)-d.off)
	}
	return nil
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// decoder reads the length-prefixed framing, latching the first error so call
// sites stay linear.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) byte() byte {
	b := d.raw(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) raw(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = fmt.Errorf("truncated at offset %d", d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		d.err = fmt.Errorf("bad uvarint at offset %d", d.off)
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) bytes() []byte {
	n := d.uvarint()
	if d.err == nil && n > uint64(len(d.buf)-d.off) {
		d.err = fmt.Errorf("length %d overruns buffer at offset %d", n, d.off)
		return nil
	}
	return d.raw(int(n))
}
