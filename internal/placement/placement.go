// Package placement decides which storage node holds each role of an
// erasure coded object.
//
// Data shards are spread over the registered data nodes; parity blocks always
// live on the dedicated parity node, so losing any single data node costs at
// most one shard per object.
//
//	placer := NewRoundRobinPlacer("parity")
//	placer.RegisterNode("node-1")
//	placer.RegisterNode("node-2")
//	placer.RegisterNode("node-3")
//
//	roles, _ := Assign(placer, domain.RAID6)
//	// shard-1 → node-1, shard-2 → node-2, shard-3 → node-3,
//	// parity6-p → parity, parity6-q → parity
package placement

import (
	"fmt"

	"github.com/zzenonn/zraid/internal/domain"
)

// Placer manages shard placement across storage nodes.
//
// Implementations must be thread-safe and deterministic: the same shardIndex
// returns the same node for as long as the node set is unchanged.
type Placer interface {
	// Place selects the node for the data shard at shardIndex.
	Place(shardIndex int) (string, error)

	// ParityNode returns the node holding parity blocks.
	ParityNode() string

	// RegisterNode adds a data node.
	RegisterNode(node string) error

	// ListNodes returns all registered data nodes followed by the parity node.
	ListNodes() []string
}

// Assign returns the role → node map for a new object stored in mode.
func Assign(p Placer, mode domain.ParityMode) (map[domain.Role]string, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("cannot place parity mode %q", mode)
	}
	placement := make(map[domain.Role]string, len(mode.Roles()))
	used := make(map[string]domain.Role, domain.DataShards)
	for _, role := range mode.Roles() {
		if role.IsParity() {
			placement[role] = p.ParityNode()
			continue
		}
		node, err := p.Place(role.ShardIndex())
		if err != nil {
			return nil, err
		}
		// Data shards share a blob name on a node, so each needs its own.
		if other, ok := used[node]; ok {
			return nil, fmt.Errorf("node %s would hold both %s and %s, need %d data nodes", node, other, role, domain.DataShards)
		}
		used[node] = role
		placement[role] = node
	}
	return placement, nil
}
