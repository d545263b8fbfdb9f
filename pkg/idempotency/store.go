package idempotency

import "context"

// Response is the cached outcome of a completed mutating request.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// BeginState describes what Begin found for a key.
type BeginState int

const (
	// StateStarted means a processing placeholder was inserted and the caller
	// owns the key until Complete or Abort.
	StateStarted BeginState = iota
	// StateReplay means a completed response is cached for the key.
	StateReplay
	// StateInFlight means another request holds the processing placeholder.
	StateInFlight
)

// BeginResult is the outcome of claiming a key.
type BeginResult struct {
	State    BeginState
	Response *Response
}

// Store tracks in-flight and completed requests per idempotency key. The
// memory implementation is process-local; deployments running more than one
// instance should use the Redis implementation so peers share one view.
type Store interface {
	// Begin atomically claims the key: absent keys gain a processing
	// placeholder, completed keys replay their stored response, and keys
	// still processing report in-flight.
	Begin(ctx context.Context, key string) (BeginResult, error)
	// Complete replaces the placeholder with the response to replay.
	Complete(ctx context.Context, key string, resp Response) error
	// Abort removes the placeholder so the key can be retried.
	Abort(ctx context.Context, key string) error
}

// Key builds the tenant-scoped store key for a client-supplied value.
func Key(tenantID, clientKey string) string {
	return tenantID + ":" + clientKey
}
