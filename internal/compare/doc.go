// Package compare explains how two fingerprint records differ.
//
// A fingerprint changes as soon as any signal changes. Records compares the
// per-probe sub-hashes to tell which probes drifted and lists the categories
// whose canonical values were changed, added or removed.
package compare
