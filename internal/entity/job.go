package entity

import (
	"errors"
	"fmt"
	"time"
)

type JobStatus string

const (
	StatusQueued           JobStatus = "queued"
	StatusDownloading      JobStatus = "downloading"
	StatusFinishedDownload JobStatus = "finished_download"
	StatusDone             JobStatus = "done"
	StatusError            JobStatus = "error"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// IsTerminal reports whether no further transition can leave s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// CanTransition reports whether from -> to is an edge of the job state machine.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusDownloading
	case StatusDownloading:
		return to == StatusDownloading || to == StatusFinishedDownload
	case StatusFinishedDownload:
		return to == StatusDone
	}
	return false
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Job is the in-memory record of one fetch request.
type Job struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	Status    JobStatus  `json:"status"`
	Progress  float64    `json:"progress"`
	Log       []LogEntry `json:"log"`
	Output    string     `json:"output,omitempty"`
	Error     *JobError  `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewJob(id, url string, now time.Time) *Job {
	return &Job{
		ID:        id,
		URL:       url,
		Status:    StatusQueued,
		Log:       []LogEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() Job {
	c := *j
	c.Log = make([]LogEntry, len(j.Log))
	copy(c.Log, j.Log)
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return c
}

func (j *Job) Logf(now time.Time, format string, args ...any) {
	j.Log = append(j.Log, LogEntry{Time: now, Message: fmt.Sprintf(format, args...)})
	j.UpdatedAt = now
}

// Transition moves the job to status to, leaving it untouched when the edge is not allowed.
func (j *Job) Transition(to JobStatus, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}

// Complete sets the terminal Done state together with the artifact reference.
func (j *Job) Complete(output string, now time.Time) error {
	if output == "" {
		return errors.New("empty output")
	}
	if err := j.Transition(StatusDone, now); err != nil {
		return err
	}
	j.Output = output
	j.Progress = 100
	return nil
}

// Fail sets the terminal Error state. Output is never set on a failed job.
func (j *Job) Fail(kind ErrorKind, msg string, now time.Time) error {
	if err := j.Transition(StatusError, now); err != nil {
		return err
	}
	j.Error = &JobError{Kind: kind, Message: msg}
	j.Output = ""
	return nil
}

var forward = []JobStatus{StatusQueued, StatusDownloading, StatusFinishedDownload, StatusDone}

func forwardIndex(s JobStatus) int {
	for i, f := range forward {
		if f == s {
			return i
		}
	}
	return -1
}

// Step moves the job one forward state closer to to and reports whether to is reached.
// Being at to already is a no-op that reports true.
func (j *Job) Step(to JobStatus, now time.Time) (bool, error) {
	if j.Status == to && !to.IsTerminal() {
		return true, nil
	}
	target := forwardIndex(to)
	cur := forwardIndex(j.Status)
	if target < 0 || j.Status.IsTerminal() {
		if err := j.Transition(to, now); err != nil {
			return false, err
		}
		return true, nil
	}
	if cur < 0 || cur > target {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	next := forward[cur+1]
	if err := j.Transition(next, now); err != nil {
		return false, err
	}
	return next == to, nil
}

// Advance walks the job forward to status to, visiting every intermediate state.
// Callers that publish snapshots should use Step so each state is observable.
func (j *Job) Advance(to JobStatus, now time.Time) error {
	for {
		reached, err := j.Step(to, now)
		if err != nil || reached {
			return err
		}
	}
}
