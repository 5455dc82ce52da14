package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/devprint/internal/canonical"
	"github.com/nao1215/devprint/internal/digest"
	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/probe"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds how long a single probe may take before it is
// recorded as failed with reason "timeout".
const DefaultProbeTimeout = 5 * time.Second

var (
	// ErrRunInProgress is returned when Run is called while another run of
	// the same Aggregator has not finished.
	ErrRunInProgress = errors.New("aggregation already running")

	// ErrInvalidProbe is returned when registering a nil or unnamed probe.
	ErrInvalidProbe = errors.New("invalid probe")

	// ErrDuplicateProbe is returned when two probes share a name.
	ErrDuplicateProbe = errors.New("duplicate probe name")

	// ErrProbePanic wraps the value recovered from a panicking probe.
	ErrProbePanic = errors.New("panic")

	// ErrInconsistentRecord is returned if merged signals cannot be
	// canonicalized even though every probe's signals could. It indicates a
	// defect in the aggregator, never a probe failure.
	ErrInconsistentRecord = errors.New("inconsistent fingerprint record")
)

// Aggregator runs a set of probes concurrently and condenses their signals
// into a FingerprintRecord.
//
// Every probe settles on its own: it either returns, fails, panics or
// times out. None of these aborts the run, so Run always yields a complete
// record. Results are merged only by the goroutine that called Run.
type Aggregator struct {
	// probes holds the registered probes in registration order.
	// When two probes report the same category, the earlier one wins.
	probes []probe.Probe

	// logger is used for structured logging during runs.
	logger *slog.Logger

	// hasher produces the per-probe and overall digests.
	hasher digest.Hasher

	// timeout is the default per-probe timeout.
	timeout time.Duration

	// concurrency caps the number of probes running at once; 0 means no cap.
	concurrency int

	// observer receives probe and run measurements.
	observer Observer

	// now is the clock used for durations and timestamps.
	now func() time.Time

	// newRunID generates run identifiers.
	newRunID func() string

	// state is the State of the current or most recent run.
	state atomic.Int32
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets a custom logger. If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithHasher sets the digest algorithm. The default is SHA-256.
func WithHasher(h digest.Hasher) Option {
	return func(a *Aggregator) {
		a.hasher = h
	}
}

// WithProbeTimeout sets the default per-probe timeout. Probes implementing
// probe.TimeoutProbe override it. Non-positive values are ignored.
func WithProbeTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithConcurrency caps how many probes run at the same time.
// Zero or negative means all probes start at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.concurrency = max(n, 0)
	}
}

// WithObserver sets the receiver of probe and run measurements.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		a.observer = o
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithRunIDFunc replaces the random UUID run identifiers.
func WithRunIDFunc(fn func() string) Option {
	return func(a *Aggregator) {
		a.newRunID = fn
	}
}

// New creates an Aggregator with the given options.
// Probes are added with Register.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		probes:  make([]probe.Probe, 0),
		timeout: DefaultProbeTimeout,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.hasher == nil {
		a.hasher = digest.New()
	}
	if a.observer == nil {
		a.observer = nopObserver{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newRunID == nil {
		a.newRunID = uuid.NewString
	}

	return a
}

// Register appends probes. Names must be non-empty and unique.
// Register must not be called while a run is in progress.
func (a *Aggregator) Register(probes ...probe.Probe) error {
	seen := make(map[string]bool, len(a.probes)+len(probes))
	for _, p := range a.probes {
		seen[p.Name()] = true
	}

	for _, p := range probes {
		if p == nil || p.Name() == "" {
			return ErrInvalidProbe
		}
		if seen[p.Name()] {
			return fmt.Errorf("%w: %q", ErrDuplicateProbe, p.Name())
		}
		seen[p.Name()] = true
	}

	a.probes = append(a.probes, probes...)
	return nil
}

// ProbeNames returns the names of the registered probes in registration order.
func (a *Aggregator) ProbeNames() []string {
	return probe.Names(a.probes)
}

// ProbeCount returns the number of registered probes.
func (a *Aggregator) ProbeCount() int {
	return len(a.probes)
}

// State returns the state of the current or most recent run.
func (a *Aggregator) State() State {
	return State(a.state.Load())
}

// Algorithm returns the name of the configured digest algorithm.
func (a *Aggregator) Algorithm() string {
	return a.hasher.Name()
}

// settled carries one probe's outcome from its goroutine to the merge point.
type settled struct {
	index  int
	result model.ProbeResult
}

// Run executes every registered probe and returns the resulting record.
//
// Probe failures never produce an error; they are recorded in the record.
// The error return is reserved for ErrRunInProgress and ErrInconsistentRecord.
// Canceling ctx makes unfinished probes fail promptly, and a record is
// still returned.
func (a *Aggregator) Run(ctx context.Context) (*model.FingerprintRecord, error) {
	if !a.begin() {
		return nil, ErrRunInProgress
	}

	probes := slices.Clone(a.probes)
	runID := a.newRunID()
	start := a.now()

	a.logger.Debug("starting aggregation",
		"run_id", runID,
		"probes", len(probes),
		"concurrency", a.concurrency,
		"timeout", a.timeout,
	)

	// Buffered so probe goroutines never block on the merge loop.
	outcomes := make(chan settled, len(probes))

	go func() {
		var g errgroup.Group
		if a.concurrency > 0 {
			g.SetLimit(a.concurrency)
		}
		for i, p := range probes {
			g.Go(func() error {
				outcomes <- settled{index: i, result: a.runProbe(ctx, p)}
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // probe goroutines never return errors
		close(outcomes)
	}()

	results := make([]model.ProbeResult, len(probes))
	partial := false
	for s := range outcomes {
		res := a.settle(s.result)
		results[s.index] = res

		a.observer.ObserveProbe(res.Probe, res.Status, res.Duration)
		if res.Failed() {
			if !partial {
				partial = true
				a.state.CompareAndSwap(int32(StateRunning), int32(StatePartialFailure))
			}
			a.logger.Warn("probe failed",
				"run_id", runID,
				"probe", res.Probe,
				"reason", res.Reason,
				"duration", res.Duration,
			)
		} else {
			a.logger.Debug("probe completed",
				"run_id", runID,
				"probe", res.Probe,
				"signals", len(res.Signals),
				"duration", res.Duration,
			)
		}
	}

	record, err := a.finalize(runID, results, partial)
	elapsed := a.now().Sub(start)
	a.state.Store(int32(StateComplete))
	a.observer.ObserveRun(partial, elapsed)
	if err != nil {
		a.logger.Error("aggregation failed", "run_id", runID, "error", err)
		return nil, err
	}

	a.logger.Info("aggregation complete",
		"run_id", runID,
		"fingerprint", record.Fingerprint,
		"signals", len(record.Signals),
		"failed_probes", len(record.FailedProbes()),
		"elapsed", elapsed,
	)
	return record, nil
}

// begin moves the aggregator into StateRunning unless a run is in progress.
func (a *Aggregator) begin() bool {
	for {
		cur := State(a.state.Load())
		if cur == StateRunning || cur == StatePartialFailure {
			return false
		}
		if a.state.CompareAndSwap(int32(cur), int32(StateRunning)) {
			return true
		}
	}
}

// timeoutFor returns the timeout that applies to p.
func (a *Aggregator) timeoutFor(p probe.Probe) time.Duration {
	if tp, ok := p.(probe.TimeoutProbe); ok && tp.Timeout() > 0 {
		return tp.Timeout()
	}
	return a.timeout
}

// runProbe executes one probe in isolation. A probe that ignores its
// context is abandoned once the timeout fires; its eventual result is
// discarded.
func (a *Aggregator) runProbe(ctx context.Context, p probe.Probe) model.ProbeResult {
	name := p.Name()
	pctx, cancel := context.WithTimeout(ctx, a.timeoutFor(p))
	defer cancel()

	type outcome struct {
		signals model.Signals
		err     error
	}
	done := make(chan outcome, 1)
	started := a.now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrProbePanic, r)}
			}
		}()
		signals, err := p.Collect(pctx)
		done <- outcome{signals: signals, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-pctx.Done():
		select {
		case out = <-done:
		default:
			out = outcome{err: contextFailure(ctx, pctx)}
		}
	}

	res := model.ProbeResult{
		Probe:    name,
		Status:   model.ProbeOK,
		Signals:  maps.Clone(out.signals),
		Duration: a.now().Sub(started),
	}
	if out.err != nil {
		res.Status = model.ProbeFailed
		res.Reason = out.err.Error()
	}
	if res.Signals == nil {
		res.Signals = model.Signals{}
	}
	return res
}

// contextFailure names why a probe context ended: the probe's own
// deadline, or cancellation of the whole run.
func contextFailure(parent, pctx context.Context) error {
	if parent.Err() == nil || errors.Is(pctx.Err(), context.DeadlineExceeded) {
		return probe.ErrTimeout
	}
	return parent.Err()
}

// settle validates a probe's signals and computes its sub-hash. Signals that
// cannot be canonicalized turn the probe into a failure and are dropped.
func (a *Aggregator) settle(res model.ProbeResult) model.ProbeResult {
	form, err := canonical.CanonicalizeSignals(res.Signals)
	if err != nil {
		reasons := []string{}
		if res.Reason != "" {
			reasons = append(reasons, res.Reason)
		}
		reasons = append(reasons, "canonicalization: "+err.Error())

		res.Status = model.ProbeFailed
		res.Reason = strings.Join(reasons, "; ")
		res.Signals = model.Signals{}
		form = ""
	}
	res.Hash = a.hasher.Digest(form)
	return res
}

// finalize merges settled results in registration order and derives the
// overall fingerprint.
func (a *Aggregator) finalize(runID string, results []model.ProbeResult, partial bool) (*model.FingerprintRecord, error) {
	merged := make(map[string]model.Signal)
	owners := make(map[string]string)
	probeHashes := make(map[string]string, len(results))

	for _, res := range results {
		probeHashes[res.Probe] = res.Hash
		for _, category := range res.Signals.Categories() {
			key, err := canonical.Key(category)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInconsistentRecord, err)
			}
			if owner, taken := owners[key]; taken {
				a.logger.Warn("conflicting category",
					"run_id", runID,
					"category", category,
					"kept", owner,
					"dropped", res.Probe,
				)
				continue
			}
			owners[key] = res.Probe
			merged[category] = model.Signal{
				Category: category,
				Value:    res.Signals[category],
				Source:   res.Probe,
			}
		}
	}

	signals := make([]model.Signal, 0, len(merged))
	for _, s := range merged {
		signals = append(signals, s)
	}
	form, err := canonical.Canonicalize(signals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInconsistentRecord, err)
	}

	probes := slices.Clone(results)
	slices.SortFunc(probes, func(x, y model.ProbeResult) int {
		return strings.Compare(x.Probe, y.Probe)
	})

	return &model.FingerprintRecord{
		RunID:          runID,
		CollectedAt:    a.now().UTC(),
		Algorithm:      a.hasher.Name(),
		Fingerprint:    a.hasher.Digest(form),
		Signals:        merged,
		ProbeHashes:    probeHashes,
		Probes:         probes,
		PartialFailure: partial,
	}, nil
}
