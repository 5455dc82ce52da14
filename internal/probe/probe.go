package probe

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/nao1215/devprint/internal/model"
)

// ErrTimeout is the failure recorded for a probe that did not settle in time.
var ErrTimeout = errors.New("timeout")

// Probe is an independent signal producer.
//
// Collect returns the signals the probe observed. A missing capability is
// reported as an Unavailable value, not as an error. A non-nil error marks
// the probe as failed; any signals returned alongside it are kept as
// best-effort partial output.
//
// Collect must honor ctx and must not retain or share the returned map.
type Probe interface {
	// Name returns the probe's unique name within an aggregation run.
	Name() string

	// Collect gathers the probe's signals.
	Collect(ctx context.Context) (model.Signals, error)
}

// TimeoutProbe is implemented by probes that need a timeout other than the
// aggregator default.
type TimeoutProbe interface {
	Probe

	// Timeout returns the maximum time Collect may take.
	Timeout() time.Duration
}

// CollectFunc is the signature of Func probes.
type CollectFunc func(ctx context.Context) (model.Signals, error)

type funcProbe struct {
	name string
	fn   CollectFunc
}

// Func adapts a function into a Probe.
func Func(name string, fn CollectFunc) Probe {
	return &funcProbe{name: name, fn: fn}
}

func (p *funcProbe) Name() string {
	return p.name
}

func (p *funcProbe) Collect(ctx context.Context) (model.Signals, error) {
	return p.fn(ctx)
}

type staticProbe struct {
	name    string
	signals model.Signals
	err     error
}

// Static returns a probe that always reports the given signals.
func Static(name string, signals model.Signals) Probe {
	return &staticProbe{name: name, signals: maps.Clone(signals)}
}

// Failing returns a probe that always fails with err, reporting partial
// signals if any are given.
func Failing(name string, err error, partial model.Signals) Probe {
	return &staticProbe{name: name, signals: maps.Clone(partial), err: err}
}

func (p *staticProbe) Name() string {
	return p.name
}

func (p *staticProbe) Collect(ctx context.Context) (model.Signals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return maps.Clone(p.signals), p.err
}

type timeoutProbe struct {
	Probe
	timeout time.Duration
}

// WithTimeout overrides the aggregator's default timeout for p.
func WithTimeout(p Probe, timeout time.Duration) TimeoutProbe {
	return &timeoutProbe{Probe: p, timeout: timeout}
}

func (p *timeoutProbe) Timeout() time.Duration {
	return p.timeout
}

// Names returns the names of probes in order.
func Names(probes []Probe) []string {
	names := make([]string, len(probes))
	for i, p := range probes {
		names[i] = p.Name()
	}
	return names
}
