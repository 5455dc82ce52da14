package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/devprint/internal/compare"
	"github.com/nao1215/devprint/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to show are printed.
	showEmpty bool

	// verbose enables signal values and probe hashes in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the record in human-readable format.
func (w *SimpleWriter) Write(record *model.FingerprintRecord) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, record)
	w.writeProbes(&sb, record)
	w.writeSignals(&sb, record)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the record overview.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, record *model.FingerprintRecord) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        DEVICE FINGERPRINT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Fingerprint: %s\n", record.Fingerprint)
	fmt.Fprintf(sb, "Algorithm:   %s\n", record.Algorithm)
	fmt.Fprintf(sb, "Run:         %s\n", record.RunID)
	fmt.Fprintf(sb, "Collected:   %s\n", record.CollectedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Signals:     %d\n", len(record.Signals))
	fmt.Fprintf(sb, "Status:      %s\n", statusText(record))
	sb.WriteString("\n")
}

// writeProbes writes how every probe settled.
func (w *SimpleWriter) writeProbes(sb *strings.Builder, record *model.FingerprintRecord) {
	if len(record.Probes) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "PROBES")
	if len(record.Probes) == 0 {
		sb.WriteString("  No probes registered\n\n")
		return
	}

	for _, p := range record.Probes {
		indicator := "+"
		if p.Failed() {
			indicator = "!"
		}
		fmt.Fprintf(sb, "  [%s] %-14s %-7s %3d signal(s)  %s\n",
			indicator, p.Probe, p.Status, len(p.Signals), p.Duration.Round(time.Microsecond))
		if p.Reason != "" {
			fmt.Fprintf(sb, "      Reason: %s\n", p.Reason)
		}
		if w.verbose {
			fmt.Fprintf(sb, "      Hash:   %s\n", p.Hash)
		}
	}
	sb.WriteString("\n")
}

// writeSignals writes the merged signals. Values are only shown in verbose
// mode because they can be long.
func (w *SimpleWriter) writeSignals(sb *strings.Builder, record *model.FingerprintRecord) {
	if len(record.Signals) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "SIGNALS")
	if len(record.Signals) == 0 {
		sb.WriteString("  No signals collected\n\n")
		return
	}

	for _, s := range record.SignalList() {
		if w.verbose {
			fmt.Fprintf(sb, "  * %s = %s (%s)\n", s.Category, displayValue(s.Value), s.Source)
			continue
		}
		fmt.Fprintf(sb, "  * %s = %s\n", s.Category, truncateString(displayValue(s.Value), 60))
	}
	sb.WriteString("\n")
}

// WriteComparison outputs the comparison in human-readable format.
func (w *SimpleWriter) WriteComparison(result *compare.Result) (int, error) {
	var sb strings.Builder

	sb.WriteString("Fingerprint Comparison\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	switch {
	case !result.SameAlgorithm:
		fmt.Fprintf(&sb, "Status: DIFFERENT ALGORITHMS (%s, %s)\n", result.Before.Algorithm, result.After.Algorithm)
	case result.SameFingerprint:
		sb.WriteString("Status: SAME DEVICE\n")
	default:
		sb.WriteString("Status: CHANGED\n")
	}

	fmt.Fprintf(&sb, "\nPrevious: %s  %s\n", result.Before.CollectedAt.Format("2006-01-02 15:04:05"), result.Before.Fingerprint)
	fmt.Fprintf(&sb, "Current:  %s  %s\n", result.After.CollectedAt.Format("2006-01-02 15:04:05"), result.After.Fingerprint)

	fmt.Fprintf(&sb, "\nProbe hashes matching: %d/%d (%.0f%%)\n",
		result.MatchingProbes, len(result.Probes), result.ProbeMatchRatio()*100)
	for _, name := range result.MismatchedProbes() {
		fmt.Fprintf(&sb, "  [~] %s\n", name)
	}

	if len(result.Changes) > 0 {
		fmt.Fprintf(&sb, "\nChanges (%d):\n", len(result.Changes))
		for _, c := range result.Changes {
			switch c.Kind {
			case compare.Added:
				fmt.Fprintf(&sb, "  [+] %s: %s\n", c.Category, c.After)
			case compare.Removed:
				fmt.Fprintf(&sb, "  [-] %s: %s\n", c.Category, c.Before)
			default:
				fmt.Fprintf(&sb, "  [~] %s: %s -> %s\n", c.Category, c.Before, c.After)
			}
		}
	}

	if result.Unchanged > 0 {
		fmt.Fprintf(&sb, "\nUnchanged: %d signals\n", result.Unchanged)
	}

	return w.output.Write([]byte(sb.String()))
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by devprint\n")
	sb.WriteString("https://github.com/nao1215/devprint\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
