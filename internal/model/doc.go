// Package model defines the data structures shared by every devprint package.
//
// This package contains the following main types:
//   - Value: the closed set of signal shapes (scalar, list, map, Unavailable)
//   - Signal and Signals: observations produced by probes
//   - ProbeResult: how a single probe settled during a run
//   - FingerprintRecord: the immutable outcome of one aggregation run
//
// Values are built through constructors or Normalize, never from native Go
// types directly, so the canonicalizer sees a fixed set of variants. All
// types serialize to JSON; Value uses a tagged encoding so that a stored
// record reproduces the same canonical form and digests when reloaded.
package model
