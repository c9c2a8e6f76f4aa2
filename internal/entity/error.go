package entity

// ErrorKind is the closed set of failure classes a job or request can end in.
type ErrorKind string

const (
	KindSubmission   ErrorKind = "submission"
	KindLookup       ErrorKind = "lookup"
	KindNetwork      ErrorKind = "network"
	KindAuthRequired ErrorKind = "auth_required"
	KindResolution   ErrorKind = "resolution"
	KindInternal     ErrorKind = "internal"
)

type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *JobError) Error() string {
	return string(e.Kind) + ": " + e.Message
}
