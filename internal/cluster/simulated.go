package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"k8s.io/apimachinery/pkg/labels"

	zerrors "github.com/zzenonn/zraid/internal/errors"
)

type simNode struct {
	info   NodeInfo
	labels labels.Set
}

// SimulatedCluster is an in-memory Client for local runs and tests. Nodes
// start Ready; SetReady flips them to emulate failures.
type SimulatedCluster struct {
	mu    sync.Mutex
	nodes map[string]*simNode
	pods  map[PodRef]*simPod
}

type simPod struct {
	node     string
	phase    string
	restarts int32
}

// NewSimulatedCluster creates a cluster whose nodes all carry nodeLabels.
func NewSimulatedCluster(nodeLabels map[string]string, nodes ...string) *SimulatedCluster {
	c := &SimulatedCluster{
		nodes: make(map[string]*simNode),
		pods:  make(map[PodRef]*simPod),
	}
	for _, n := range nodes {
		c.AddNode(n, nodeLabels)
	}
	return c
}

// AddNode registers a Ready node.
func (c *SimulatedCluster) AddNode(name string, nodeLabels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[name] = &simNode{
		info:   NodeInfo{Name: name, Ready: true},
		labels: labels.Set(nodeLabels),
	}
}

// SetReady changes the Ready condition of a node.
func (c *SimulatedCluster) SetReady(name string, ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[name]; ok {
		n.info.Ready = ready
	}
}

// AddPod schedules a Running pod on node.
func (c *SimulatedCluster) AddPod(namespace, name, node string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pods[PodRef{Namespace: namespace, Name: name}] = &simPod{node: node, phase: PodRunning}
}

// SetPodStatus changes the phase and restart count of a pod.
func (c *SimulatedCluster) SetPodStatus(namespace, name, phase string, restarts int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pods[PodRef{Namespace: namespace, Name: name}]; ok {
		p.phase = phase
		p.restarts = restarts
	}
}

// Node returns the current state of a node.
func (c *SimulatedCluster) Node(name string) (NodeInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[name]
	if !ok {
		return NodeInfo{}, false
	}
	return n.info, true
}

func (c *SimulatedCluster) ListNodes(ctx context.Context, selector string) ([]NodeInfo, error) {
	sel, err := labels.Parse(selector)
	if err != nil {
		return nil, zerrors.Collaborator("list nodes", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var nodes []NodeInfo
	for _, n := range c.nodes {
		if sel.Matches(n.labels) {
			nodes = append(nodes, n.info)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes, nil
}

func (c *SimulatedCluster) SetUnschedulable(ctx context.Context, node string, unschedulable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[node]
	if !ok {
		return zerrors.Collaborator("patch node "+node, fmt.Errorf("node %s: %w", node, zerrors.ErrNotFound))
	}
	n.info.Unschedulable = unschedulable
	return nil
}

func (c *SimulatedCluster) ListPodsOnNode(ctx context.Context, node string) ([]PodRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pods []PodRef
	for pod, p := range c.pods {
		if p.node == node {
			pods = append(pods, pod)
		}
	}
	sort.Slice(pods, func(i, j int) bool {
		if pods[i].Namespace != pods[j].Namespace {
			return pods[i].Namespace < pods[j].Namespace
		}
		return pods[i].Name < pods[j].Name
	})
	return pods, nil
}

func (c *SimulatedCluster) DeletePod(ctx context.Context, namespace, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pods, PodRef{Namespace: namespace, Name: name})
	return nil
}

func (c *SimulatedCluster) ListPods(ctx context.Context, namespace string) ([]PodStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pods []PodStatus
	for ref, p := range c.pods {
		if ref.Namespace != namespace {
			continue
		}
		pods = append(pods, PodStatus{
			Namespace: ref.Namespace,
			Name:      ref.Name,
			Node:      p.node,
			Phase:     p.phase,
			Restarts:  p.restarts,
		})
	}
	sort.Slice(pods, func(i, j int) bool { return pods[i].Name < pods[j].Name })
	return pods, nil
}
