// Package canonical turns a set of signals into a single deterministic text.
//
// The canonical form is byte-identical for the same (category, value) pairs
// on every run and every host:
//   - categories and map keys are NFC-normalized and sorted byte-wise
//   - strings are quoted with only '\' and '"' escaped
//   - integers are base-10 and floats use a fixed 6-digit precision
//   - Unavailable is the literal token "#unavailable", never the empty string
//   - lists keep their order, entries are joined with ';'
//
// Example:
//
//	"OS"="Linux";"Screen"={"Height"=1080,"Width"=1920};"Touch"=#unavailable
//
// Any value that cannot be rendered (invalid UTF-8, non-finite floats,
// duplicate categories) is reported as an error, which the aggregator
// records as a probe failure.
package canonical
