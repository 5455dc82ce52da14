package model

import (
	"maps"
	"slices"
	"time"
)

// FingerprintRecord is the immutable outcome of one aggregation run.
//
// It is built once by the aggregator and must not be modified afterwards.
// Every field is JSON serializable so the record can be handed to sinks,
// stored and reloaded without changing its digests.
type FingerprintRecord struct {
	// RunID uniquely identifies the aggregation run. It is not part of the hash.
	RunID string `json:"run_id"`

	// CollectedAt is when the run finished.
	CollectedAt time.Time `json:"collected_at"`

	// Algorithm is the name of the digest algorithm used for every hash in the record.
	Algorithm string `json:"algorithm"`

	// Fingerprint is the digest of the canonical form of all merged signals.
	Fingerprint string `json:"fingerprint"`

	// Signals is the merged category to signal mapping.
	Signals map[string]Signal `json:"signals"`

	// ProbeHashes maps each probe name to the digest of its own signals.
	ProbeHashes map[string]string `json:"probe_hashes"`

	// Probes lists how every probe settled, ordered by probe name.
	Probes []ProbeResult `json:"probes"`

	// PartialFailure is true when at least one probe failed.
	PartialFailure bool `json:"partial_failure"`
}

// Get returns the signal recorded under category.
func (r *FingerprintRecord) Get(category string) (Signal, bool) {
	s, ok := r.Signals[category]
	return s, ok
}

// Categories returns all recorded categories in sorted order.
func (r *FingerprintRecord) Categories() []string {
	return slices.Sorted(maps.Keys(r.Signals))
}

// SignalList returns the recorded signals ordered by category.
func (r *FingerprintRecord) SignalList() []Signal {
	out := make([]Signal, 0, len(r.Signals))
	for _, category := range r.Categories() {
		out = append(out, r.Signals[category])
	}
	return out
}

// FailedProbes returns the results of probes that did not succeed.
func (r *FingerprintRecord) FailedProbes() []ProbeResult {
	var failed []ProbeResult
	for _, p := range r.Probes {
		if p.Failed() {
			failed = append(failed, p)
		}
	}
	return failed
}

// Probe returns the result of the named probe.
func (r *FingerprintRecord) Probe(name string) (ProbeResult, bool) {
	for _, p := range r.Probes {
		if p.Probe == name {
			return p, true
		}
	}
	return ProbeResult{}, false
}

// ShortFingerprint returns the first 12 hex digits of the fingerprint for display.
func (r *FingerprintRecord) ShortFingerprint() string {
	if len(r.Fingerprint) <= 12 {
		return r.Fingerprint
	}
	return r.Fingerprint[:12]
}
