// Package cluster is the boundary to the container scheduler that runs the
// storage nodes: it lists nodes, cordons them and evicts their workloads.
package cluster

import "context"

// NodeInfo is the scheduler's view of a node.
type NodeInfo struct {
	Name          string
	Ready         bool
	Unschedulable bool
}

// PodRef identifies a workload running on a node.
type PodRef struct {
	Namespace string
	Name      string
}

// PodStatus is the health of one pod as reported by the scheduler.
type PodStatus struct {
	Namespace string
	Name      string
	Node      string
	Phase     string
	// Restarts is the restart count of the pod's first container.
	Restarts int32
}

// Running reports whether the pod is in the Running phase.
func (p PodStatus) Running() bool {
	return p.Phase == PodRunning
}

// PodRunning is the phase of a pod whose containers have started.
const PodRunning = "Running"

// Client is implemented by the Kubernetes and simulated clusters. Every
// failure is returned as an errors.CollaboratorError.
type Client interface {
	// ListNodes returns the nodes matching a label selector such as
	// "role=worker". An empty selector matches every node.
	ListNodes(ctx context.Context, selector string) ([]NodeInfo, error)
	// SetUnschedulable cordons (true) or uncordons (false) a node.
	SetUnschedulable(ctx context.Context, node string, unschedulable bool) error
	// ListPodsOnNode returns the pods scheduled on node in every namespace.
	ListPodsOnNode(ctx context.Context, node string) ([]PodRef, error)
	DeletePod(ctx context.Context, namespace, name string) error
	// ListPods returns the status of every pod in namespace.
	ListPods(ctx context.Context, namespace string) ([]PodStatus, error)
}
