// Package message defines the wire format shared by the api and worker
// services. Both topics carry JSON-encoded payloads.
package message

import "time"

// Topic names as declared in configuration.
const (
	TopicTasks  = "tasks"
	TopicStatus = "status"
)

// ContentTypeJSON is the content type used for all published messages.
const ContentTypeJSON = "application/json"

// Task is published once per accepted job on the tasks topic. It carries
// the full input so workers need no access to the job store.
type Task struct {
	JobID       string    `json:"job_id"`
	OwnerID     string    `json:"owner_id"`
	Operation   string    `json:"operation"`
	Payload     string    `json:"payload"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Status is published on the status topic when a worker finishes a task.
// Delivery is at-least-once and unordered; consumers must apply it
// idempotently.
type Status struct {
	JobID      string    `json:"job_id"`
	Success    bool      `json:"success"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
