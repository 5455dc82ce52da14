package compare

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/devprint/internal/canonical"
	"github.com/nao1215/devprint/internal/model"
)

// ErrNilRecord is returned when either side of a comparison is missing.
var ErrNilRecord = errors.New("record is nil")

// ChangeKind describes how a category differs between two records.
type ChangeKind string

const (
	// Changed means the category is present in both records with different values.
	Changed ChangeKind = "changed"

	// Added means the category is only present in the newer record.
	Added ChangeKind = "added"

	// Removed means the category is only present in the older record.
	Removed ChangeKind = "removed"
)

// RecordSummary identifies one side of a comparison.
type RecordSummary struct {
	RunID          string    `json:"run_id"`
	CollectedAt    time.Time `json:"collected_at"`
	Algorithm      string    `json:"algorithm"`
	Fingerprint    string    `json:"fingerprint"`
	PartialFailure bool      `json:"partial_failure"`
}

// ProbeMatch compares the sub-hash of one probe.
type ProbeMatch struct {
	Probe string `json:"probe"`

	// Before and After are the probe hashes, empty when the probe is
	// missing on that side.
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`

	// Match is true when both hashes exist, use the same algorithm and are equal.
	Match bool `json:"match"`
}

// CategoryChange is one category whose value differs.
type CategoryChange struct {
	Category string     `json:"category"`
	Kind     ChangeKind `json:"kind"`

	// Before and After are canonical renderings of the values.
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`

	// Source is the probe that produced the newer value, or the older one
	// when the category was removed.
	Source string `json:"source"`
}

// Result holds the differences between two fingerprint records.
type Result struct {
	Before RecordSummary `json:"before"`
	After  RecordSummary `json:"after"`

	// SameAlgorithm is false when the records were hashed differently.
	// Hashes of such records are never considered equal.
	SameAlgorithm bool `json:"same_algorithm"`

	// SameFingerprint is true when both records identify the same device.
	SameFingerprint bool `json:"same_fingerprint"`

	Probes         []ProbeMatch `json:"probes"`
	MatchingProbes int          `json:"matching_probes"`

	Changes   []CategoryChange `json:"changes,omitempty"`
	Unchanged int              `json:"unchanged"`
}

// ProbeMatchRatio returns the share of probes whose sub-hash matched, in [0, 1].
func (r *Result) ProbeMatchRatio() float64 {
	if len(r.Probes) == 0 {
		return 0
	}
	return float64(r.MatchingProbes) / float64(len(r.Probes))
}

// MismatchedProbes returns the names of probes whose sub-hash differs.
func (r *Result) MismatchedProbes() []string {
	var names []string
	for _, p := range r.Probes {
		if !p.Match {
			names = append(names, p.Probe)
		}
	}
	return names
}

// Count returns the number of changes of the given kind.
func (r *Result) Count(kind ChangeKind) int {
	n := 0
	for _, c := range r.Changes {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Records compares an older record with a newer one.
//
// Probe sub-hashes tell which probes drifted when the overall fingerprint
// changed. Category values are compared in canonical form, so the result
// does not depend on the digest algorithm.
func Records(before, after *model.FingerprintRecord) (*Result, error) {
	if before == nil || after == nil {
		return nil, ErrNilRecord
	}

	result := &Result{
		Before:        summarize(before),
		After:         summarize(after),
		SameAlgorithm: before.Algorithm == after.Algorithm,
	}
	result.SameFingerprint = result.SameAlgorithm && before.Fingerprint == after.Fingerprint

	result.Probes = matchProbes(before.ProbeHashes, after.ProbeHashes, result.SameAlgorithm)
	for _, p := range result.Probes {
		if p.Match {
			result.MatchingProbes++
		}
	}

	changes, unchanged, err := diffSignals(before.Signals, after.Signals)
	if err != nil {
		return nil, err
	}
	result.Changes = changes
	result.Unchanged = unchanged
	return result, nil
}

func summarize(r *model.FingerprintRecord) RecordSummary {
	return RecordSummary{
		RunID:          r.RunID,
		CollectedAt:    r.CollectedAt,
		Algorithm:      r.Algorithm,
		Fingerprint:    r.Fingerprint,
		PartialFailure: r.PartialFailure,
	}
}

func matchProbes(before, after map[string]string, sameAlgorithm bool) []ProbeMatch {
	names := make([]string, 0, len(before)+len(after))
	for name := range before {
		names = append(names, name)
	}
	for name := range after {
		if _, ok := before[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	matches := make([]ProbeMatch, 0, len(names))
	for _, name := range names {
		b, inBefore := before[name]
		a, inAfter := after[name]
		matches = append(matches, ProbeMatch{
			Probe:  name,
			Before: b,
			After:  a,
			Match:  sameAlgorithm && inBefore && inAfter && a == b,
		})
	}
	return matches
}

// diffSignals compares categories by their normalized key so that records
// written with different Unicode forms line up.
func diffSignals(before, after map[string]model.Signal) ([]CategoryChange, int, error) {
	older, err := index(before)
	if err != nil {
		return nil, 0, fmt.Errorf("older record: %w", err)
	}
	newer, err := index(after)
	if err != nil {
		return nil, 0, fmt.Errorf("newer record: %w", err)
	}

	keys := make([]string, 0, len(older)+len(newer))
	for k := range older {
		keys = append(keys, k)
	}
	for k := range newer {
		if _, ok := older[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var changes []CategoryChange
	unchanged := 0
	for _, k := range keys {
		o, inOld := older[k]
		n, inNew := newer[k]
		switch {
		case inOld && inNew && o.value == n.value:
			unchanged++
		case inOld && inNew:
			changes = append(changes, CategoryChange{Category: n.category, Kind: Changed, Before: o.value, After: n.value, Source: n.source})
		case inNew:
			changes = append(changes, CategoryChange{Category: n.category, Kind: Added, After: n.value, Source: n.source})
		default:
			changes = append(changes, CategoryChange{Category: o.category, Kind: Removed, Before: o.value, Source: o.source})
		}
	}
	return changes, unchanged, nil
}

type rendered struct {
	category string
	value    string
	source   string
}

func index(signals map[string]model.Signal) (map[string]rendered, error) {
	out := make(map[string]rendered, len(signals))
	for category, s := range signals {
		key, err := canonical.Key(category)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", category, err)
		}
		value, err := canonical.CanonicalizeValue(s.Value)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", category, err)
		}
		out[key] = rendered{category: category, value: value, source: s.Source}
	}
	return out, nil
}
