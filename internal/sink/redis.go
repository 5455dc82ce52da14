package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/devprint/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix namespaces every key written by RedisSink.
	DefaultKeyPrefix = "devprint"

	// DefaultRecordTTL is how long record payloads are kept.
	DefaultRecordTTL = 30 * 24 * time.Hour
)

// RedisSink keeps a visit counter per fingerprint and caches the full
// record under its run id.
//
// Keys:
//
//	<prefix>:fp:<fingerprint>  hash with visits, first_seen, last_seen, algorithm, last_run
//	<prefix>:record:<run_id>   record JSON, expires after the TTL
type RedisSink struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// RedisSinkOption configures a RedisSink.
type RedisSinkOption func(*RedisSink)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisSinkOption {
	return func(s *RedisSink) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRecordTTL sets how long record payloads are kept. Zero keeps them forever.
func WithRecordTTL(ttl time.Duration) RedisSinkOption {
	return func(s *RedisSink) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisLogger sets a custom logger.
func WithRedisLogger(logger *slog.Logger) RedisSinkOption {
	return func(s *RedisSink) {
		s.logger = logger
	}
}

// NewRedisSink creates a sink writing to client.
func NewRedisSink(client redis.Cmdable, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    DefaultRecordTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Sink.
func (s *RedisSink) Name() string {
	return "redis"
}

// FingerprintKey returns the key of the visit hash for fingerprint.
func (s *RedisSink) FingerprintKey(fingerprint string) string {
	return s.prefix + ":fp:" + fingerprint
}

// RecordKey returns the key of the record payload for runID.
func (s *RedisSink) RecordKey(runID string) string {
	return s.prefix + ":record:" + runID
}

// Deliver implements Sink. All writes happen in one MULTI/EXEC transaction.
func (s *RedisSink) Deliver(ctx context.Context, record *model.FingerprintRecord) error {
	if record == nil {
		return ErrNilRecord
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	seen := record.CollectedAt.UTC().Format(time.RFC3339Nano)
	fpKey := s.FingerprintKey(record.Fingerprint)

	var visits *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		visits = pipe.HIncrBy(ctx, fpKey, "visits", 1)
		pipe.HSetNX(ctx, fpKey, "first_seen", seen)
		pipe.HSet(ctx, fpKey,
			"last_seen", seen,
			"algorithm", record.Algorithm,
			"last_run", record.RunID,
		)
		pipe.Set(ctx, s.RecordKey(record.RunID), payload, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write to redis: %w", err)
	}

	s.logger.Debug("record cached",
		"fingerprint", record.Fingerprint,
		"visits", visits.Val(),
		"run_id", record.RunID,
	)
	return nil
}

// Visits returns how often fingerprint was delivered. Zero means never.
func (s *RedisSink) Visits(ctx context.Context, fingerprint string) (int64, error) {
	n, err := s.client.HGet(ctx, s.FingerprintKey(fingerprint), "visits").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read visits: %w", err)
	}
	return n, nil
}

// Record loads a cached record by run id. Returns nil, nil if it expired
// or never existed.
func (s *RedisSink) Record(ctx context.Context, runID string) (*model.FingerprintRecord, error) {
	data, err := s.client.Get(ctx, s.RecordKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var record model.FingerprintRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &record, nil
}
