package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/devprint/internal/model"
	"github.com/nao1215/devprint/internal/probe"
	"golang.org/x/sync/errgroup"
)

// BatchItem is one probe set to fingerprint, for example a capture file.
type BatchItem struct {
	// Name identifies the item in logs and results.
	Name string

	// Probes are registered on a fresh Aggregator for this item.
	Probes []probe.Probe
}

// BatchResult is the outcome of one BatchItem.
type BatchResult struct {
	// Name is the item name.
	Name string

	// Record is nil when Err is set.
	Record *model.FingerprintRecord

	// Err reports why no record could be built.
	Err error
}

// BatchProcessor fingerprints several independent probe sets concurrently.
type BatchProcessor struct {
	// factory creates a new aggregator for each item so that no run state
	// leaks between items.
	factory func() *Aggregator

	// concurrency is the maximum number of items processed at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithBatchConcurrency sets the maximum number of concurrent items.
// Default is 4 if not specified.
func WithBatchConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory func() *Aggregator, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: 4,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch fingerprints every item and returns results in item order.
// A failing item does not stop the others; its error is kept in its result.
// The returned error is non-nil only when ctx was canceled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	bp.logger.Info("starting batch",
		"items", len(items),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	// Each goroutine writes only its own index.
	results := make([]BatchResult, len(items))
	err := bp.ProcessBatchWithCallback(ctx, items, func(res BatchResult, index int) {
		results[index] = res
	})

	bp.logger.Info("batch complete",
		"items", len(items),
		"elapsed", time.Since(start),
	)
	return results, err
}

// ProcessBatchWithCallback fingerprints every item and calls callback as each
// one finishes. The callback runs on the goroutine that processed the item,
// so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	items []BatchItem,
	callback func(res BatchResult, index int),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, item := range items {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				callback(BatchResult{Name: item.Name, Err: ctx.Err()}, i)
				return ctx.Err()
			default:
			}

			res := bp.process(ctx, item)
			if res.Err != nil {
				bp.logger.Warn("batch item failed", "item", item.Name, "error", res.Err)
			} else {
				bp.logger.Debug("batch item fingerprinted",
					"item", item.Name,
					"fingerprint", res.Record.ShortFingerprint(),
				)
			}
			callback(res, i)
			return nil
		})
	}

	return g.Wait()
}

func (bp *BatchProcessor) process(ctx context.Context, item BatchItem) BatchResult {
	agg := bp.factory()
	if err := agg.Register(item.Probes...); err != nil {
		return BatchResult{Name: item.Name, Err: fmt.Errorf("failed to register probes: %w", err)}
	}
	record, err := agg.Run(ctx)
	return BatchResult{Name: item.Name, Record: record, Err: err}
}
