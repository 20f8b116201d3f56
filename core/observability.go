package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Pool       string
	WorkerID   int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Stolen     bool
	Failed     bool
}

// WorkerStats represents runtime observability state for one worker.
type WorkerStats struct {
	Index    int
	QueueLen int
	InboxLen int
	Steals   uint64
	Executed uint64
}

// PoolStats represents runtime observability state for a pool.
type PoolStats struct {
	Name    string
	Workers int
	Queued  int
	Active  int
	Steals  uint64
	Running bool
}
