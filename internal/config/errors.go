package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoSource is returned when no probe source is selected.
	ErrNoSource = errors.New("no probe source selected: use --source host, browser or capture")

	// ErrUnknownSource is returned for a source other than host, browser or capture.
	ErrUnknownSource = errors.New("unknown probe source: must be host, browser or capture")

	// ErrNoCaptureFile is returned when the capture source has no files to replay.
	ErrNoCaptureFile = errors.New("capture source selected but no capture file given: use --capture")

	// ErrCaptureWithoutSource is returned when capture files are given but the
	// capture source is not selected.
	ErrCaptureWithoutSource = errors.New("capture files given but the capture source is not selected")

	// ErrUnknownAlgorithm is returned for an unsupported digest algorithm.
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm: must be sha256, blake2b-256 or sha3-256")

	// ErrInvalidTimeout is returned when the probe timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid probe timeout: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency limit is negative.
	// Use 0 to run every probe at once.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidRedisTTL is returned when the Redis TTL is negative.
	// Use 0 to keep records without expiry.
	ErrInvalidRedisTTL = errors.New("invalid redis ttl: must be non-negative")
)
