//go:build e2e

package browser

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nao1215/devprint/internal/aggregator"
)

// TestSessionFingerprint runs every browser probe against a real Chrome.
// Set DEVPRINT_CHROME_PATH to use a specific binary.
func TestSessionFingerprint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var opts []SessionOption
	if path := os.Getenv("DEVPRINT_CHROME_PATH"); path != "" {
		opts = append(opts, WithExecPath(path))
	}
	session, err := NewSession(ctx, opts...)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	defer session.Close()

	run := func() string {
		agg := aggregator.New(aggregator.WithProbeTimeout(15 * time.Second))
		if err := agg.Register(All(session)...); err != nil {
			t.Fatal(err)
		}
		record, err := agg.Run(ctx)
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		for _, p := range record.FailedProbes() {
			t.Logf("probe %s failed: %s", p.Probe, p.Reason)
		}
		if s, ok := record.Get("Screen Width"); !ok || s.Value.IsUnavailable() {
			t.Error("expected a screen width")
		}
		if _, ok := record.Get(CategoryHTTPUserAgent); !ok {
			t.Error("expected the HTTP user agent")
		}
		return record.Fingerprint
	}

	first, second := run(), run()
	if first != second {
		t.Errorf("fingerprint changed between runs: %s != %s", first, second)
	}
}
