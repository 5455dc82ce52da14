package report

import (
	"io"

	"github.com/nao1215/devprint/internal/canonical"
	"github.com/nao1215/devprint/internal/compare"
	"github.com/nao1215/devprint/internal/model"
)

// Writer defines the interface for report output.
// Implementations render records and comparisons in various formats.
type Writer interface {
	// Write outputs a fingerprint record to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(record *model.FingerprintRecord) (int, error)

	// WriteComparison outputs the differences between two records.
	WriteComparison(result *compare.Result) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the record to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(record *model.FingerprintRecord) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(record)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteComparison outputs the comparison to all configured Writers.
func (m *MultiWriter) WriteComparison(result *compare.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteComparison(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// displayValue renders v the way it enters the fingerprint.
func displayValue(v model.Value) string {
	text, err := canonical.CanonicalizeValue(v)
	if err != nil {
		return "(invalid: " + err.Error() + ")"
	}
	return text
}

// statusText summarizes how a run settled.
func statusText(record *model.FingerprintRecord) string {
	failed := len(record.FailedProbes())
	switch {
	case len(record.Probes) == 0:
		return "No probes"
	case failed == 0:
		return "Complete"
	case failed == len(record.Probes):
		return "All probes failed"
	default:
		return "Partial failure"
	}
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
