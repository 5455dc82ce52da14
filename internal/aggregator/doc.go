// Package aggregator runs probes concurrently and merges their signals into
// a single FingerprintRecord.
//
// # Run lifecycle
//
// A run moves through the states idle, running, partial-failure and
// complete. Each probe executes in its own goroutine under its own
// timeout. A probe that errors, panics or exceeds its timeout is recorded
// as failed and the run carries on; a run therefore always produces a
// record, flagged with PartialFailure when any probe failed.
//
// # Merging
//
// Settled probes send their results over a channel to the goroutine that
// called Run, which alone builds the record. Signals are merged in probe
// registration order: when two probes report the same category the first
// registered probe wins and the conflict is logged.
//
// # Batches
//
// BatchProcessor runs several independent probe sets, for example one per
// capture file, each with a fresh Aggregator.
package aggregator
