package jobqueue

import (
	"github.com/riverqueue/river"
)

const (
	// maxJobAttempts bounds retries of a whole review job. Transient host
	// or model failures get three more tries; anything still failing after
	// that lands in River's discarded set with its error chain intact.
	maxJobAttempts = 4

	defaultMaxWorkers    = 4
	defaultJobsPerMinute = 30
	defaultJobBurst      = 2
)

// QueueConfig holds the tunables for the review queue.
type QueueConfig struct {
	// MaxWorkers bounds how many reviews run concurrently.
	MaxWorkers int

	// JobsPerMinute caps how fast workers may pick up new jobs.
	JobsPerMinute int

	// JobBurst allows a short run of job starts above the steady rate.
	JobBurst int
}

// DefaultQueueConfig returns conservative defaults sized for a single
// model-provider API key.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:    defaultMaxWorkers,
		JobsPerMinute: defaultJobsPerMinute,
		JobBurst:      defaultJobBurst,
	}
}

// Normalize fills zero values with defaults.
func (c *QueueConfig) Normalize() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.JobsPerMinute <= 0 {
		c.JobsPerMinute = defaultJobsPerMinute
	}
	if c.JobBurst <= 0 {
		c.JobBurst = defaultJobBurst
	}
}

// RiverQueueConfig maps the tunables onto River's queue table.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}
