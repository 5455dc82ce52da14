package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/devprint/internal/compare"
	"github.com/nao1215/devprint/internal/model"
)

// createTestRecord creates a record with one successful and one failed probe.
func createTestRecord() *model.FingerprintRecord {
	return &model.FingerprintRecord{
		RunID:       "run-123",
		CollectedAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		Algorithm:   "sha256",
		Fingerprint: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Signals: map[string]model.Signal{
			"OS":            {Category: "OS", Value: model.String("Linux"), Source: "host"},
			"Device Memory": {Category: "Device Memory", Value: model.Unavailable(), Source: "host"},
		},
		ProbeHashes: map[string]string{"host": "aaaa", "canvas": "bbbb"},
		Probes: []model.ProbeResult{
			{Probe: "canvas", Status: model.ProbeFailed, Reason: "timeout", Hash: "bbbb", Duration: 5 * time.Second},
			{
				Probe:    "host",
				Status:   model.ProbeOK,
				Hash:     "aaaa",
				Duration: 3 * time.Millisecond,
				Signals:  model.Signals{"OS": model.String("Linux"), "Device Memory": model.Unavailable()},
			},
		},
		PartialFailure: true,
	}
}

func createTestComparison(t *testing.T) *compare.Result {
	t.Helper()

	before := createTestRecord()
	after := createTestRecord()
	after.Fingerprint = "fedcba9876543210"
	after.ProbeHashes = map[string]string{"host": "cccc", "canvas": "bbbb"}
	after.Signals = map[string]model.Signal{
		"OS":            {Category: "OS", Value: model.String("Windows"), Source: "host"},
		"Device Memory": {Category: "Device Memory", Value: model.Unavailable(), Source: "host"},
	}

	result, err := compare.Records(before, after)
	if err != nil {
		t.Fatalf("compare.Records() error = %v", err)
	}
	return result
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes record overview", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"DEVICE FINGERPRINT",
			"0123456789abcdef",
			"Partial failure",
			"[!] canvas",
			"Reason: timeout",
			`* OS = "Linux"`,
			"* Device Memory = #unavailable",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "Hash:") {
			t.Error("probe hashes should only be shown in verbose mode")
		}
	})

	t.Run("verbose shows hashes and sources", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "Hash:   aaaa") {
			t.Error("expected probe hash in verbose output")
		}
		if !strings.Contains(output, `"Linux" (host)`) {
			t.Error("expected signal source in verbose output")
		}
	})

	t.Run("empty sections", func(t *testing.T) {
		t.Parallel()

		empty := &model.FingerprintRecord{Fingerprint: "e3b0", Algorithm: "sha256"}

		var hidden bytes.Buffer
		if _, err := NewSimpleWriter(&hidden).Write(empty); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(hidden.String(), "PROBES") {
			t.Error("empty probe section should be hidden by default")
		}

		var shown bytes.Buffer
		if _, err := NewSimpleWriter(&shown, WithShowEmpty(true)).Write(empty); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(shown.String(), "No probes registered") {
			t.Error("expected empty probe section with WithShowEmpty")
		}
	})

	t.Run("writes comparison", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteComparison(createTestComparison(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{
			"Status: CHANGED",
			"Probe hashes matching: 1/2 (50%)",
			"[~] host",
			`[~] OS: "Linux" -> "Windows"`,
			"Unchanged: 1 signals",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("round trips through ReadRecord", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		record := createTestRecord()
		if _, err := NewJSONWriter(&buf).Write(record); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := ReadRecord(&buf)
		if err != nil {
			t.Fatalf("ReadRecord() error = %v", err)
		}
		if got.Fingerprint != record.Fingerprint {
			t.Errorf("Fingerprint = %q, want %q", got.Fingerprint, record.Fingerprint)
		}
		sig, ok := got.Get("Device Memory")
		if !ok || !sig.Value.IsUnavailable() {
			t.Errorf("Device Memory = %+v, want Unavailable", sig)
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"run_id\"") {
			t.Error("expected indented output")
		}
		if !strings.HasSuffix(buf.String(), "\n") {
			t.Error("expected trailing newline")
		}
	})

	t.Run("compact output is one line", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected compact single-line output")
		}
	})

	t.Run("writes comparison", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteComparison(createTestComparison(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded compare.Result
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.MatchingProbes != 1 || len(decoded.Changes) != 1 {
			t.Errorf("unexpected comparison: %+v", decoded)
		}
	})
}

func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewFullJSONWriter(&buf, "v1.2.3").Write(createTestRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wrapped JSONReport
	if err := json.Unmarshal(buf.Bytes(), &wrapped); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if wrapped.Version != "v1.2.3" {
		t.Errorf("Version = %q", wrapped.Version)
	}
	if len(wrapped.FailedProbes) != 1 || wrapped.FailedProbes[0] != "canvas" {
		t.Errorf("FailedProbes = %v", wrapped.FailedProbes)
	}

	got, err := ReadRecord(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadRecord() error = %v", err)
	}
	if got.RunID != "run-123" {
		t.Errorf("RunID = %q", got.RunID)
	}
}

func TestReadRecordRejectsOtherJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty object", `{}`},
		{"unrelated", `{"name": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ReadRecord(strings.NewReader(tt.input)); !errors.Is(err, ErrNotARecord) {
				t.Errorf("ReadRecord() error = %v, want ErrNotARecord", err)
			}
		})
	}

	if _, err := ReadRecord(strings.NewReader("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes record", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestRecord())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero length")
		}

		output := buf.String()
		for _, want := range []string{
			"# Device Fingerprint",
			"## Probes",
			"```mermaid",
			"Probe Status",
			"## Signals",
			"1 of 2 probe(s) failed",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("writes comparison", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteComparison(createTestComparison(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"# Fingerprint Comparison", "## Changes (1)", "1 of 2 probe hash(es) match"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	w := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

	n, err := w.Write(createTestRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != text.Len()+js.Len() {
		t.Errorf("bytes written = %d, want %d", n, text.Len()+js.Len())
	}
	if text.Len() == 0 || js.Len() == 0 {
		t.Error("expected both writers to receive output")
	}

	if _, err := w.WriteComparison(createTestComparison(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
