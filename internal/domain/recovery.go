package domain

import "time"

// NodeState is the recovery state of a storage node.
type NodeState string

const (
	NodeHealthy NodeState = "healthy"
	NodeQueued  NodeState = "queued"
	NodeActive  NodeState = "active"
	NodeFailed  NodeState = "failed"
)

// NodeRecord is a logical storage location and its recovery state.
type NodeRecord struct {
	Name  string    `json:"name"`
	State NodeState `json:"state"`
}

// Recovering reports whether the node is queued for or undergoing recovery.
func (n NodeRecord) Recovering() bool {
	return n.State == NodeQueued || n.State == NodeActive
}

// SessionState is the lifecycle state of a RecoverySession.
type SessionState string

const (
	SessionQueued SessionState = "queued"
	SessionActive SessionState = "active"
	SessionDone   SessionState = "done"
)

// RecoverySession tracks one recovery request for a node.
type RecoverySession struct {
	ID          string       `json:"id"`
	Node        string       `json:"node"`
	State       SessionState `json:"state"`
	RequestedAt time.Time    `json:"requested_at"`
	StartedAt   time.Time    `json:"started_at,omitempty"`
}
