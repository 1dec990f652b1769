// Package recipe defines core types shared across subsystems.
package recipe

import (
	"encoding/json"
	"time"
)

// Key is a canonical 11-character video identifier. It is derived from raw
// caller input exactly once at the API boundary; internal components never
// see the raw input except the executor, which needs the original URL for
// the enrichment call.
type Key string

// String returns the key as a plain string.
func (k Key) String() string { return string(k) }

// JobStatus represents the lifecycle state of an enrichment job.
type JobStatus string

// Job status values held in the job table.
const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state. A terminal record is
// never mutated again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is the structured result produced by the enrichment collaborator.
// The schema is owned by the collaborator; this service only guarantees it is
// a well-formed JSON object.
type Payload = json.RawMessage

// JobRecord is the unit of state tracked per key. It is owned by the job
// table and mutated only by the executor working that key.
type JobRecord struct {
	Key         Key        `json:"job_id"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Result      Payload    `json:"result,omitempty"`
	ArtifactURI string     `json:"artifact_uri,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// StatusEvent is one emission on a status stream. Terminal events never carry
// the result payload; clients fetch it separately so event size stays bounded.
type StatusEvent struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
}

// EventNotFound is the status reported when a streamed key is unknown to both
// the job table and the cache.
const EventNotFound JobStatus = "not_found"

// Transcript is what the retrieval collaborator returns for a video. Text may
// be empty when the video has no captions; that is not an error.
type Transcript struct {
	Key  Key
	Text string
}

// QueueItem wraps an admitted job ready for an executor.
type QueueItem struct {
	Key       Key
	RawInput  string
	Submitted int64
}
