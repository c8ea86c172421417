package trace

import (
	"context"
	"fmt"

	"github.com/eureka-network/proof-experiments/common/log"
)

// StageFunc is the unit of node work the recorder observes. It must be
// deterministic in its input: re-running the same stage on the same bytes has
// to produce the same output and witness for downstream commitments to match.
type StageFunc func(ctx context.Context, input []byte) (output, witness []byte, err error)

// Recorder builds an ExecutionTrace by running ETLQ stages one at a time and
// capturing the digests of what each stage consumed and produced.
type Recorder struct {
	nodeID  string
	run     uint64
	records []Record
	lastOut Digest
	log     log.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the recorder logger.
func WithLogger(l log.Logger) RecorderOption {
	return func(r *Recorder) {
		r.log = l
	}
}

// NewRecorder returns a recorder for one ETLQ run of the given node.
func NewRecorder(nodeID string, run uint64, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		nodeID: nodeID,
		run:    run,
		log:    log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunStage executes fn on input and appends the resulting record. Stages must
// be run in ETLQ order; after the first stage, input must be byte-identical
// to the previous stage's output so the trace chains.
func (r *Recorder) RunStage(ctx context.Context, stage StageID, fn StageFunc, input []byte) ([]byte, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrIncomplete, stage)
	}
	if n := len(r.records); n > 0 {
		if stageOrder[stage] < stageOrder[r.records[n-1].Stage] {
			return nil, fmt.Errorf("%w: stage %q cannot follow %q", ErrIncomplete, stage, r.records[n-1].Stage)
		}
		if DigestOf(input) != r.lastOut {
			return nil, fmt.Errorf("%w: stage %q input does not extend previous output", ErrIncomplete, stage)
		}
	}

	output, witness, err := fn(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w", stage, err)
	}
	if output == nil {
		return nil, fmt.Errorf("%w: stage %q omitted its output", ErrIncomplete, stage)
	}
	if len(witness) > MaxWitnessLen {
		return nil, fmt.Errorf("%w: stage %q witness exceeds %d bytes", ErrIncomplete, stage, MaxWitnessLen)
	}

	rec := Record{
		Stage:  stage,
		Index:  uint64(len(r.records)),
		Input:  DigestOf(input),
		Output: DigestOf(output),
	}
	if len(witness) > 0 {
		rec.Witness = append([]byte(nil), witness...)
	}
	r.records = append(r.records, rec)
	r.lastOut = rec.Output
	r.log.Debugw("stage recorded", "node", r.nodeID, "run", r.run, "stage", stage, "index", rec.Index)

	return output, nil
}

// Finalize validates the accumulated records and returns the immutable trace.
// The recorder must not be reused afterwards.
func (r *Recorder) Finalize() (*ExecutionTrace, error) {
	t := &ExecutionTrace{
		NodeID:  r.nodeID,
		Run:     r.run,
		Records: r.records,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	r.records = nil
	return t, nil
}
