// Package messagequeue defines the message queue port (interface) used to
// publish the coordinator's job, agent and state events and to fan out
// agent output streams. The scheduler's loop does not subscribe to these
// events; it ticks at its rate limiter's pace.
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the coordinator's job, agent and state events
// (§4.4/§5) and for agent output streams.
const (
	SubjectJobSubmitted    = "grid.job.submitted"    // new job entered the registry
	SubjectAgentRegistered = "grid.agent.registered" // register_agent or re-registration
	SubjectStateUpdated    = "grid.state.updated"    // a job/task state update released resources
	SubjectAgentLost       = "grid.agent.lost"       // heartbeat timeout fired
	SubjectTaskOutput      = "grid.task.output"      // streaming stdout/stderr line from a worker
)
