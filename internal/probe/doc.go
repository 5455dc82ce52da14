// Package probe defines the contract between the aggregator and the
// independent signal producers it runs.
//
// A probe has a unique name and a Collect method. It reports an absent
// capability as an Unavailable value and anything else that goes wrong as
// an error; the aggregator never lets either abort a run.
//
// Concrete producers live in subpackages:
//   - host: signals observable from the local machine
//   - browser: signals evaluated inside headless Chrome
//
// Capture files replay probe output recorded by a page-side collector.
package probe
