package queue

import (
	"context"
	"encoding/json"
)

// Job handles every message of one type.
type Job interface {
	// Type is the message type routed to this job.
	Type() string

	// Handle processes one payload. A returned error schedules a retry until
	// the retry limit is reached.
	Handle(ctx context.Context, payload json.RawMessage) error
}
