package entity

import "time"

// JobEvent is published to observers after every applied change of a job.
type JobEvent struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Output   bool      `json:"has_output"`
	Error    *JobError `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// EventFrom builds the event describing the latest state of j.
func EventFrom(j Job) JobEvent {
	ev := JobEvent{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Output:   j.Output != "",
		Error:    j.Error,
		At:       j.UpdatedAt,
	}
	if n := len(j.Log); n > 0 {
		ev.Message = j.Log[n-1].Message
	}
	return ev
}
