package model

import (
	"maps"
	"slices"
	"time"
)

// Signal is a single named observation attributed to the probe that produced it.
type Signal struct {
	// Category is the stable name of the observed attribute (e.g. "Device OS").
	Category string `json:"category"`

	// Value is the observed value or Unavailable.
	Value Value `json:"value"`

	// Source is the name of the probe that produced the signal.
	Source string `json:"source"`
}

// Signals is the flat category to value mapping returned by one probe.
type Signals map[string]Value

// Set stores value under category and returns s for chaining.
func (s Signals) Set(category string, value Value) Signals {
	s[category] = value
	return s
}

// Categories returns the categories in sorted order.
func (s Signals) Categories() []string {
	return slices.Sorted(maps.Keys(s))
}

// Attribute converts the mapping into Signals attributed to source,
// ordered by category.
func (s Signals) Attribute(source string) []Signal {
	out := make([]Signal, 0, len(s))
	for _, category := range s.Categories() {
		out = append(out, Signal{Category: category, Value: s[category], Source: source})
	}
	return out
}

// ProbeStatus is the settled outcome of one probe.
type ProbeStatus string

const (
	// ProbeOK means the probe returned its signals. Some may be Unavailable.
	ProbeOK ProbeStatus = "ok"

	// ProbeFailed means the probe errored, panicked, timed out or produced
	// signals that cannot be canonicalized. Partial signals may still be kept.
	ProbeFailed ProbeStatus = "failed"
)

// ProbeResult records how a probe settled during an aggregation run.
type ProbeResult struct {
	// Probe is the probe's unique name.
	Probe string `json:"probe"`

	// Status is ok or failed.
	Status ProbeStatus `json:"status"`

	// Reason explains a failure. Empty when Status is ok.
	Reason string `json:"reason,omitempty"`

	// Signals holds what the probe contributed to the record.
	Signals Signals `json:"signals,omitempty"`

	// Hash is the digest of the canonical form of Signals.
	Hash string `json:"hash"`

	// Duration is how long the probe took to settle.
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the probe did not complete successfully.
func (r ProbeResult) Failed() bool {
	return r.Status == ProbeFailed
}
