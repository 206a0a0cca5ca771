package rafflequeue

// UpkeepJob asks a worker to run check+perform once.
type UpkeepJob struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// Kind returns the job type identifier for River
func (UpkeepJob) Kind() string { return "raffle_upkeep" }

// JobInfo describes a recent upkeep job.
type JobInfo struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	ScheduledAt string `json:"scheduled_at"`
	CreatedAt   string `json:"created_at"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}
