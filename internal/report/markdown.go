package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/devprint/internal/compare"
	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs records in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the record in Markdown format.
func (w *MarkdownWriter) Write(record *model.FingerprintRecord) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, record)
	w.writeProbes(md, record)
	w.writeSignals(md, record)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the record overview.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, record *model.FingerprintRecord) {
	md.H1("Device Fingerprint")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Fingerprint", "`" + record.Fingerprint + "`"},
			{"Algorithm", record.Algorithm},
			{"Run", "`" + record.RunID + "`"},
			{"Collected", record.CollectedAt.Format("2006-01-02 15:04:05 MST")},
			{"Signals", strconv.Itoa(len(record.Signals))},
			{"Status", statusText(record)},
		},
	})
	md.PlainText("")

	failed := record.FailedProbes()
	switch {
	case len(record.Probes) > 0 && len(failed) == len(record.Probes):
		md.Cautionf("Every probe failed. The fingerprint only identifies an empty signal set.")
	case len(failed) > 0:
		md.Warningf("%d of %d probe(s) failed. Their signals are not part of the fingerprint.",
			len(failed), len(record.Probes))
	default:
		md.Tip("All probes completed.")
	}
	md.PlainText("")
}

// writeProbes writes the per-probe outcome table and a status chart.
func (w *MarkdownWriter) writeProbes(md *markdown.Markdown, record *model.FingerprintRecord) {
	md.H2("Probes")
	md.PlainText("")

	if len(record.Probes) == 0 {
		md.PlainText("No probes were registered.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(record.Probes))
	for _, p := range record.Probes {
		reason := p.Reason
		if reason == "" {
			reason = "-"
		}
		rows = append(rows, []string{
			p.Probe,
			string(p.Status),
			strconv.Itoa(len(p.Signals)),
			"`" + shortHash(p.Hash) + "`",
			p.Duration.String(),
			truncateString(reason, 60),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Probe", "Status", "Signals", "Hash", "Duration", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, record)
}

// writePieChart writes a mermaid pie chart of probe outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, record *model.FingerprintRecord) {
	failed := len(record.FailedProbes())
	ok := len(record.Probes) - failed

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Probe Status"),
		piechart.WithShowData(true),
	)
	if ok > 0 {
		chart.LabelAndIntValue("ok", uint64(ok))
	}
	if failed > 0 {
		chart.LabelAndIntValue("failed", uint64(failed))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeSignals writes every merged signal.
func (w *MarkdownWriter) writeSignals(md *markdown.Markdown, record *model.FingerprintRecord) {
	md.H2("Signals")
	md.PlainText("")

	if len(record.Signals) == 0 {
		md.PlainText("No signals were collected.")
		md.PlainText("")
		return
	}

	signals := record.SignalList()
	rows := make([][]string, 0, len(signals))
	for _, s := range signals {
		rows = append(rows, []string{s.Category, truncateString(displayValue(s.Value), 80), s.Source})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Value", "Source"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteComparison outputs the comparison in Markdown format.
func (w *MarkdownWriter) WriteComparison(result *compare.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Fingerprint Comparison")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"", "Previous", "Current"},
		Rows: [][]string{
			{"Fingerprint", "`" + shortHash(result.Before.Fingerprint) + "`", "`" + shortHash(result.After.Fingerprint) + "`"},
			{"Algorithm", result.Before.Algorithm, result.After.Algorithm},
			{"Collected", result.Before.CollectedAt.Format("2006-01-02 15:04"), result.After.CollectedAt.Format("2006-01-02 15:04")},
		},
	})
	md.PlainText("")

	switch {
	case !result.SameAlgorithm:
		md.Importantf("The records use different digest algorithms (%s, %s); hashes cannot match.",
			result.Before.Algorithm, result.After.Algorithm)
	case result.SameFingerprint:
		md.Tip("The fingerprints are identical.")
	default:
		md.Warningf("The fingerprint changed. %d of %d probe hash(es) match.",
			result.MatchingProbes, len(result.Probes))
	}
	md.PlainText("")

	if len(result.Probes) > 0 {
		md.H2("Probes")
		md.PlainText("")
		rows := make([][]string, 0, len(result.Probes))
		for _, p := range result.Probes {
			match := "no"
			if p.Match {
				match = "yes"
			}
			rows = append(rows, []string{p.Probe, "`" + shortHash(p.Before) + "`", "`" + shortHash(p.After) + "`", match})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Probe", "Previous", "Current", "Match"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	md.H2(fmt.Sprintf("Changes (%d)", len(result.Changes)))
	md.PlainText("")
	if len(result.Changes) == 0 {
		md.PlainText("No signal changed.")
	} else {
		rows := make([][]string, 0, len(result.Changes))
		for _, c := range result.Changes {
			rows = append(rows, []string{
				c.Category,
				string(c.Kind),
				orDash(truncateString(c.Before, 50)),
				orDash(truncateString(c.After, 50)),
				c.Source,
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Category", "Change", "Previous", "Current", "Source"},
			Rows:   rows,
		})
	}
	md.PlainText("")
	if result.Unchanged > 0 {
		md.PlainTextf("*%d signals unchanged*", result.Unchanged)
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [devprint](https://github.com/nao1215/devprint)*")
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
