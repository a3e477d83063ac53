package domain

import "time"

// ObjectMetadata - catalog record of an erasure coded object
type ObjectMetadata struct {
	Name          string          `json:"name" dynamodbav:"object_name"` // Partition Key
	Shape         Shape           `json:"shape" dynamodbav:"shape"`
	SegmentHeight int             `json:"segment_height" dynamodbav:"segment_height"`
	ParityMode    ParityMode      `json:"parity_mode" dynamodbav:"parity_mode"`
	Placement     map[Role]string `json:"placement" dynamodbav:"placement"`       // role -> node
	ShardHashes   map[Role]string `json:"shard_hashes" dynamodbav:"shard_hashes"` // role -> CRC64 (ISO) hex
	OriginalSize  int64           `json:"original_size" dynamodbav:"original_size"`
	ShardSize     int64           `json:"shard_size" dynamodbav:"shard_size"`
	CreatedAt     time.Time       `json:"created_at" dynamodbav:"created_at"`
}

// Layout returns the segmentation recorded for the object.
func (m ObjectMetadata) Layout() Layout {
	return Layout{Original: m.Shape, SegmentHeight: m.SegmentHeight}
}

// RolesOn returns the roles of this object placed on node, in canonical order.
func (m ObjectMetadata) RolesOn(node string) []Role {
	var roles []Role
	for _, role := range m.ParityMode.Roles() {
		if m.Placement[role] == node {
			roles = append(roles, role)
		}
	}
	return roles
}

// Key returns the store key of role for this object.
func (m ObjectMetadata) Key(role Role) ShardKey {
	return ShardKey{Node: m.Placement[role], Object: m.Name, Role: role}
}
