package placement

import (
	"fmt"
	"sync"
)

// RoundRobinPlacer implements round-robin shard placement
type RoundRobinPlacer struct {
	mu         sync.RWMutex
	nodes      map[string]struct{}
	nodeNames  []string
	parityNode string
}

// NewRoundRobinPlacer creates a new round-robin placer
func NewRoundRobinPlacer(parityNode string) *RoundRobinPlacer {
	return &RoundRobinPlacer{
		nodes:      make(map[string]struct{}),
		nodeNames:  make([]string, 0),
		parityNode: parityNode,
	}
}

// RegisterNode adds a data node
func (p *RoundRobinPlacer) RegisterNode(node string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if node == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if node == p.parityNode {
		return fmt.Errorf("node %s is the parity node", node)
	}
	if _, exists := p.nodes[node]; exists {
		return fmt.Errorf("node %s already registered", node)
	}

	p.nodes[node] = struct{}{}
	p.nodeNames = append(p.nodeNames, node)
	return nil
}

// Place selects a node using round-robin strategy
func (p *RoundRobinPlacer) Place(shardIndex int) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.nodeNames) == 0 {
		return "", fmt.Errorf("no nodes registered")
	}
	if shardIndex < 0 {
		return "", fmt.Errorf("invalid shard index %d", shardIndex)
	}

	return p.nodeNames[shardIndex%len(p.nodeNames)], nil
}

// ParityNode returns the parity node name
func (p *RoundRobinPlacer) ParityNode() string {
	return p.parityNode
}

// ListNodes returns all registered node names
func (p *RoundRobinPlacer) ListNodes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	nodes := make([]string, len(p.nodeNames), len(p.nodeNames)+1)
	copy(nodes, p.nodeNames)
	return append(nodes, p.parityNode)
}
