package report

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/nao1215/devprint/internal/compare"
	"github.com/nao1215/devprint/internal/model"
)

// ErrNotARecord is returned by ReadRecord for JSON without a fingerprint.
var ErrNotARecord = errors.New("not a fingerprint record")

// JSONWriter outputs records in JSON format.
// This format is designed for tool integration and can be loaded back
// by the compare command.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the record in JSON format.
func (w *JSONWriter) Write(record *model.FingerprintRecord) (int, error) {
	return w.writeJSON(record)
}

// WriteComparison outputs the comparison in JSON format.
func (w *JSONWriter) WriteComparison(result *compare.Result) (int, error) {
	return w.writeJSON(result)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps a record with the version of the tool that produced it.
type JSONReport struct {
	// Version is the devprint version that generated this report.
	Version string `json:"version"`

	// Record is the fingerprint record.
	Record *model.FingerprintRecord `json:"record"`

	// FailedProbes lists the names of probes that did not succeed.
	FailedProbes []string `json:"failed_probes,omitempty"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(record *model.FingerprintRecord, version string) *JSONReport {
	report := &JSONReport{
		Version: version,
		Record:  record,
	}
	for _, p := range record.FailedProbes() {
		report.FailedProbes = append(report.FailedProbes, p.Probe)
	}
	return report
}

// FullJSONWriter outputs records with a metadata wrapper.
type FullJSONWriter struct {
	*JSONWriter

	// version is the devprint version string.
	version string
}

// NewFullJSONWriter creates a writer for records with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the record wrapped with metadata.
func (w *FullJSONWriter) Write(record *model.FingerprintRecord) (int, error) {
	return w.writeJSON(NewJSONReport(record, w.version))
}

// ReadRecord decodes a record written by JSONWriter or FullJSONWriter.
func ReadRecord(r io.Reader) (*model.FingerprintRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Record *model.FingerprintRecord `json:"record"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	record := wrapped.Record
	if record == nil {
		record = &model.FingerprintRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return nil, err
		}
	}
	if record.Fingerprint == "" {
		return nil, ErrNotARecord
	}
	return record, nil
}
