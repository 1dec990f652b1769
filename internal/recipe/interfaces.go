package recipe

import (
	"context"
	"time"
)

// JobTable is the process-wide mapping from key to job state. Admit is the
// single-flight primitive: for concurrent calls on the same unseen key,
// exactly one caller gets a fresh record and every other caller gets
// ErrAlreadyProcessing with the live snapshot.
type JobTable interface {
	Admit(key Key) (JobRecord, error)
	Update(key Key, progress int, message string) error
	Complete(key Key, result Payload, artifactURI string) error
	Fail(key Key, message string) error
	Snapshot(key Key) (JobRecord, error)
	Delete(key Key)
	ActiveCount() int
}

// Cache is the two-tier result store. Implementations must absorb remote-tier
// failures; Get and Set never fail because the remote store is down.
type Cache interface {
	Get(ctx context.Context, key Key) (Payload, bool)
	Set(ctx context.Context, key Key, value Payload, ttl time.Duration)
	Delete(ctx context.Context, key Key)
}

// RemoteCache is the optional durable tier behind Cache. Unlike Cache it
// surfaces errors so the wrapper can log and degrade.
type RemoteCache interface {
	Get(ctx context.Context, key Key) (Payload, bool, error)
	Set(ctx context.Context, key Key, value Payload, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
}

// RetrievalService resolves raw input into retrieval context for enrichment.
type RetrievalService interface {
	Fetch(ctx context.Context, rawInput string) (Transcript, error)
}

// EnrichmentService runs the multimodal analysis call.
type EnrichmentService interface {
	Analyze(ctx context.Context, key Key, rawInput string, transcript string) (Payload, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes terminal job events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for admitted jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
