package aggregator

import (
	"time"

	"github.com/nao1215/devprint/internal/model"
)

// State is the lifecycle stage of an Aggregator.
type State int32

const (
	// StateIdle means no run has started yet.
	StateIdle State = iota

	// StateRunning means probes are being collected and none has failed so far.
	StateRunning

	// StatePartialFailure means a run is in progress and at least one probe failed.
	StatePartialFailure

	// StateComplete means the most recent run has produced its record.
	StateComplete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePartialFailure:
		return "partial-failure"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Observer receives measurements while an Aggregator runs.
// Implementations are called from the goroutine that called Run.
type Observer interface {
	// ObserveProbe is called once per probe after it settles.
	ObserveProbe(probe string, status model.ProbeStatus, d time.Duration)

	// ObserveRun is called once per run after the record is built.
	ObserveRun(partial bool, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveProbe(string, model.ProbeStatus, time.Duration) {}
func (nopObserver) ObserveRun(bool, time.Duration)                        {}
