package domain

// Job status values as stored in the jobs table.
const (
	JobStatusPending = "PENDING"
	JobStatusDone    = "DONE"
	JobStatusFailed  = "FAILED"
)

// JobState is a tagged variant of a job's lifecycle position. A result is
// only carried by the Done state, a failure reason only by Failed, so a
// "done without result" row cannot be expressed.
type JobState struct {
	status string
	result string
	reason string
}

// Pending is the initial state of every job.
func Pending() JobState {
	return JobState{status: JobStatusPending}
}

// Done is the successful terminal state carrying the result payload.
func Done(result string) JobState {
	return JobState{status: JobStatusDone, result: result}
}

// Failed is the unsuccessful terminal state carrying the failure reason.
func Failed(reason string) JobState {
	return JobState{status: JobStatusFailed, reason: reason}
}

// StateFromRow rebuilds a JobState from its stored columns, dropping any
// field the status does not own.
func StateFromRow(status, result, errorMessage string) JobState {
	switch status {
	case JobStatusDone:
		return Done(result)
	case JobStatusFailed:
		return Failed(errorMessage)
	default:
		return Pending()
	}
}

// Status returns the stored status string.
func (s JobState) Status() string {
	if s.status == "" {
		return JobStatusPending
	}
	return s.status
}

// Terminal reports whether the state is Done or Failed.
func (s JobState) Terminal() bool {
	return s.status == JobStatusDone || s.status == JobStatusFailed
}

// Result returns the result payload and whether the state carries one.
func (s JobState) Result() (string, bool) {
	return s.result, s.status == JobStatusDone
}

// Reason returns the failure reason and whether the state carries one.
func (s JobState) Reason() (string, bool) {
	return s.reason, s.status == JobStatusFailed
}
