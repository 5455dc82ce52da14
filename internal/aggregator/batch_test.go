package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/probe"
)

// TestNewBatchProcessor tests the BatchProcessor constructor.
func TestNewBatchProcessor(t *testing.T) {
	t.Parallel()

	t.Run("default concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Aggregator { return New() })
		if bp.concurrency != 4 {
			t.Errorf("expected concurrency 4, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Aggregator { return New() }, WithBatchConcurrency(0))
		if bp.concurrency != 4 {
			t.Errorf("expected concurrency 4, got %d", bp.concurrency)
		}

		bp = NewBatchProcessor(func() *Aggregator { return New() }, WithBatchConcurrency(2))
		if bp.concurrency != 2 {
			t.Errorf("expected concurrency 2, got %d", bp.concurrency)
		}
	})
}

// TestProcessBatch tests fingerprinting several probe sets.
func TestProcessBatch(t *testing.T) {
	t.Parallel()

	factory := func() *Aggregator { return New(WithLogger(quietLogger())) }
	bp := NewBatchProcessor(factory, WithBatchLogger(quietLogger()), WithBatchConcurrency(2))

	items := []BatchItem{
		{Name: "laptop", Probes: []probe.Probe{probe.Static("device", model.Signals{"OS": model.String("Linux")})}},
		{Name: "phone", Probes: []probe.Probe{probe.Static("device", model.Signals{"OS": model.String("Android")})}},
		{Name: "broken", Probes: []probe.Probe{probe.Static("x", nil), probe.Static("x", nil)}},
		{Name: "laptop-again", Probes: []probe.Probe{probe.Static("device", model.Signals{"OS": model.String("Linux")})}},
	}

	results, err := bp.ProcessBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}

	for i, res := range results {
		if res.Name != items[i].Name {
			t.Errorf("result %d: expected %q, got %q", i, items[i].Name, res.Name)
		}
	}
	if !errors.Is(results[2].Err, ErrDuplicateProbe) {
		t.Errorf("expected ErrDuplicateProbe, got %v", results[2].Err)
	}
	if results[0].Record.Fingerprint != results[3].Record.Fingerprint {
		t.Error("identical probe sets must share a fingerprint")
	}
	if results[0].Record.Fingerprint == results[1].Record.Fingerprint {
		t.Error("different probe sets must not share a fingerprint")
	}
}

// TestProcessBatchWithCallback tests streaming of batch results.
func TestProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	bp := NewBatchProcessor(func() *Aggregator { return New(WithLogger(quietLogger())) },
		WithBatchLogger(quietLogger()))

	items := make([]BatchItem, 5)
	for i := range items {
		items[i] = BatchItem{Name: string(rune('a' + i)), Probes: []probe.Probe{probe.Static("p", nil)}}
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	err := bp.ProcessBatchWithCallback(context.Background(), items, func(res BatchResult, index int) {
		mu.Lock()
		defer mu.Unlock()
		if res.Err != nil {
			t.Errorf("item %d: %v", index, res.Err)
		}
		seen[index] = true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != len(items) {
		t.Errorf("expected %d callbacks, got %d", len(items), len(seen))
	}
}

// TestProcessBatchCanceled tests that a canceled batch reports the cancellation.
func TestProcessBatchCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bp := NewBatchProcessor(func() *Aggregator { return New(WithLogger(quietLogger())) },
		WithBatchLogger(quietLogger()))
	results, err := bp.ProcessBatch(ctx, []BatchItem{{Name: "a"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("expected the item to carry the cancellation, got %v", results[0].Err)
	}
}
