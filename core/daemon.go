package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/common/log"
	"github.com/eureka-network/proof-experiments/fs"
	"github.com/eureka-network/proof-experiments/ledger"
	"github.com/eureka-network/proof-experiments/ledger/boltdb"
	lerrors "github.com/eureka-network/proof-experiments/ledger/errors"
	"github.com/eureka-network/proof-experiments/ledger/memdb"
	"github.com/eureka-network/proof-experiments/metrics"
	"github.com/eureka-network/proof-experiments/prover"
	"github.com/eureka-network/proof-experiments/prover/circuit"
	"github.com/eureka-network/proof-experiments/prover/vm"
	"github.com/eureka-network/proof-experiments/trace"
	"github.com/eureka-network/proof-experiments/verify"
)

const (
	maxAppendRetries = 3
	conflictBackoff  = 50 * time.Millisecond
)

// Daemon is the accountability service. It turns submitted execution traces
// into commitments, proofs and append-only ledger entries.
type Daemon struct {
	opts     *Config
	log      log.Logger
	store    ledger.Store
	registry *prover.Registry
	verifier *verify.Verifier
	locks    *keyedMutex
}

// NewDaemon creates the folders the daemon needs, opens the ledger store and
// wires the proof backends configured in c.
func NewDaemon(ctx context.Context, c *Config) (*Daemon, error) {
	l := c.Logger().Named("daemon")
	metrics.Bind(l)

	if _, err := fs.CreateSecureFolder(c.ConfigFolder()); err != nil {
		return nil, fmt.Errorf("creating config folder: %w", err)
	}
	if _, err := fs.CreateSecureFolder(c.KeyFolder()); err != nil {
		return nil, fmt.Errorf("creating key folder: %w", err)
	}

	var store ledger.Store
	if c.memoryStore {
		store = memdb.NewStore()
	} else {
		if _, err := fs.CreateSecureFolder(c.DBFolder()); err != nil {
			return nil, fmt.Errorf("creating db folder: %w", err)
		}
		var err error
		store, err = boltdb.NewBoltStore(ctx, l, c.DBFolder(), c.boltOpts)
		if err != nil {
			return nil, fmt.Errorf("opening ledger store: %w", err)
		}
	}

	circuitBackend := circuit.New(circuit.WithKeyDir(c.KeyFolder()), circuit.WithLogger(l))
	registry := prover.NewRegistry(circuitBackend, vm.New())
	for _, b := range c.backends {
		registry.Register(b)
	}
	if _, err := registry.Get(c.BackendKind()); err != nil {
		store.Close(ctx)
		return nil, err
	}

	return &Daemon{
		opts:     c,
		log:      l,
		store:    store,
		registry: registry,
		verifier: verify.New(circuitBackend),
		locks:    newKeyedMutex(),
	}, nil
}

// Store exposes the underlying ledger store, mainly for the HTTP surface.
func (d *Daemon) Store() ledger.Store {
	return d.store
}

// Verifier returns the verifier bound to this daemon's key material.
func (d *Daemon) Verifier() *verify.Verifier {
	return d.verifier
}

// Close releases the ledger store.
func (d *Daemon) Close(ctx context.Context) error {
	return d.store.Close(ctx)
}

// Submit runs the full accountability flow for one execution trace: validate,
// commit, prove under the configured deadline, verify and append one ledger
// entry per stage present in the trace. Schema violations abort before any
// entry is written. Proving failures and verification rejections still
// produce entries, marked rejected, so that misbehavior is recorded rather
// than dropped.
func (d *Daemon) Submit(ctx context.Context, tr *trace.ExecutionTrace) ([]*ledger.Entry, error) {
	if err := tr.Validate(); err != nil {
		metrics.SubmissionCounter.WithLabelValues("malformed").Inc()
		return nil, err
	}
	com, err := commit.Commit(tr)
	if err != nil {
		metrics.SubmissionCounter.WithLabelValues("malformed").Inc()
		return nil, err
	}

	backend, err := d.registry.Get(d.opts.BackendKind())
	if err != nil {
		return nil, err
	}

	accepted := true
	reason := ""
	env, err := d.prove(ctx, backend, tr, com)
	if err != nil {
		accepted = false
		reason = err.Error()
		d.log.Errorw("proof generation failed", "node", tr.NodeID, "run", tr.Run, "err", err)
	} else {
		res := d.verifier.Verify(env, com, prover.PublicInputs(tr))
		outcome := "accepted"
		if !res.Accepted {
			accepted = false
			reason = res.Reason
			if res.Detail != "" {
				reason = res.Reason + ": " + res.Detail
			}
			outcome = "rejected"
		}
		metrics.ProofOutcomeCounter.WithLabelValues(backend.Kind().String(), outcome).Inc()
	}

	entries, err := d.record(ctx, tr, backend.Kind(), accepted, reason)
	if err != nil {
		metrics.SubmissionCounter.WithLabelValues("errored").Inc()
		return entries, err
	}
	if accepted {
		metrics.SubmissionCounter.WithLabelValues("accepted").Inc()
	} else {
		metrics.SubmissionCounter.WithLabelValues("rejected").Inc()
	}
	return entries, nil
}

// prove bounds proof generation by the configured timeout. The backend keeps
// the context so a timed out job stops doing work soon after we give up on
// it.
func (d *Daemon) prove(ctx context.Context, b prover.Backend, tr *trace.ExecutionTrace, com commit.Commitment) (*prover.Envelope, error) {
	pctx, cancel := context.WithTimeout(ctx, d.opts.ProvingTimeout())
	defer cancel()

	type result struct {
		env *prover.Envelope
		err error
	}
	ch := make(chan result, 1)
	start := d.opts.clock.Now()
	go func() {
		env, err := b.Prove(pctx, tr, com)
		ch <- result{env, err}
	}()

	var res result
	select {
	case <-pctx.Done():
		res.err = fmt.Errorf("%w: %v", prover.ErrProofGenerationFailed, pctx.Err())
	case res = <-ch:
	}
	metrics.ProvingDuration.
		WithLabelValues(b.Kind().String()).
		Observe(d.opts.clock.Now().Sub(start).Seconds())
	return res.env, res.err
}

// record appends one entry per stage of the trace, each carrying the
// commitment over that stage's records.
func (d *Daemon) record(ctx context.Context, tr *trace.ExecutionTrace, kind prover.BackendKind, accepted bool, reason string) ([]*ledger.Entry, error) {
	var errs error
	entries := make([]*ledger.Entry, 0, len(tr.Stages()))
	for _, stage := range tr.Stages() {
		lo, hi, err := commit.StageRange(tr, stage)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		stageCom, err := commit.CommitRange(tr, lo, hi)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		e := &ledger.Entry{
			NodeID:     tr.NodeID,
			Stage:      stage,
			Seq:        tr.Run,
			Commitment: stageCom[:],
			Backend:    kind.String(),
			Accepted:   accepted,
			Reason:     reason,
			Timestamp:  d.opts.clock.Now(),
		}
		if err := d.append(ctx, e); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("stage %s: %w", stage, err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, errs
}

// append serializes writes per (node, stage) stream and retries conflicting
// appends a few times. A conflict can be transient when another process races
// us to the same key with the same content; genuinely divergent content keeps
// conflicting and surfaces after the retries are spent.
func (d *Daemon) append(ctx context.Context, e *ledger.Entry) error {
	unlock := d.locks.lock(e.NodeID + "/" + string(e.Stage))
	defer unlock()

	backoff := conflictBackoff
	var err error
	for i := 0; i < maxAppendRetries; i++ {
		err = d.store.Put(ctx, e)
		if err == nil {
			d.opts.callbacks(e)
			return nil
		}
		if !errors.Is(err, lerrors.ErrWriteConflict) {
			return err
		}
		metrics.LedgerWriteConflicts.Inc()
		d.log.Warnw("ledger append conflict", "node", e.NodeID, "stage", e.Stage, "seq", e.Seq, "attempt", i+1)
		d.opts.clock.Sleep(backoff)
		backoff *= 2
	}
	return err
}
