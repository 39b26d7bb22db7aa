package domain

import "time"

// EventStatus is the lifecycle state reported by a progress event.
type EventStatus string

const (
	StatusStarted  EventStatus = "started"
	StatusFinished EventStatus = "finished"
	StatusFailed   EventStatus = "failed"
)

// ProgressEvent is emitted on every stage and item transition.
type ProgressEvent struct {
	Item     WorkItem
	Stage    Stage
	Status   EventStatus
	Bytes    int64
	Duration float64 // media seconds
	Attempts int
	Message  string
	At       time.Time
}

// IsItemLevel reports whether the event marks an item boundary rather than a stage.
func (e ProgressEvent) IsItemLevel() bool {
	return e.Stage == StageItem
}

// ProgressSnapshot is a point-in-time read of aggregate batch progress.
type ProgressSnapshot struct {
	Total                     int
	Completed                 int
	Succeeded                 int
	Failed                    int
	InFlight                  int
	CumulativeBytes           int64
	CumulativeDurationSeconds float64
	EstimatedRemaining        time.Duration
	ETAKnown                  bool
	Elapsed                   time.Duration
}

// Percent returns completion as 0-100.
func (s ProgressSnapshot) Percent() float64 {
	if s.Total <= 0 {
		return 100
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Done reports whether every item has completed.
func (s ProgressSnapshot) Done() bool {
	return s.Completed >= s.Total
}
