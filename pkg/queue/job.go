// Package queue provides the in-process job queue abstraction the engine
// runs on: named queues with bounded worker pools, delayed admission,
// priority ordering, and retry with exponential backoff.
package queue

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusDelayed   Status = "delayed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one unit of queued work. Payload is a queue-specific struct; see
// payloads.go for the four shapes this service carries.
type Job struct {
	ID          string
	Queue       string
	Payload     any
	Priority    int // lower value runs earlier
	DelayUntil  time.Time
	Attempts    int // attempts already started
	MaxAttempts int
	Status      Status
	LastError   string
	EnqueuedAt  time.Time

	seq uint64 // FIFO tiebreak within a priority band

	progressMu sync.Mutex
	progress   int
}

// SetProgress reports handler progress. Values are clamped to 0..100 and the
// reported value never decreases within a job invocation.
func (j *Job) SetProgress(value int) {
	j.progressMu.Lock()
	defer j.progressMu.Unlock()

	if value > 100 {
		value = 100
	}

	if value > j.progress {
		j.progress = value
	}
}

// Progress returns the last reported progress value.
func (j *Job) Progress() int {
	j.progressMu.Lock()
	defer j.progressMu.Unlock()

	return j.progress
}
