package domain

import "fmt"

// ParityMode selects between single and dual parity.
type ParityMode string

const (
	// RAID5 stores one XOR parity block and tolerates one lost shard.
	RAID5 ParityMode = "raid5"
	// RAID6 stores P and Q parity blocks and tolerates two lost shards.
	RAID6 ParityMode = "raid6"
)

// Valid reports whether m is a known parity mode.
func (m ParityMode) Valid() bool {
	return m == RAID5 || m == RAID6
}

// Roles returns every role stored for an object in this mode.
func (m ParityMode) Roles() []Role {
	roles := []Role{RoleShard1, RoleShard2, RoleShard3}
	switch m {
	case RAID5:
		roles = append(roles, RoleParity5)
	case RAID6:
		roles = append(roles, RoleParity6P, RoleParity6Q)
	}
	return roles
}

// Role identifies what a stored blob is for its object.
type Role string

const (
	RoleShard1   Role = "shard-1"
	RoleShard2   Role = "shard-2"
	RoleShard3   Role = "shard-3"
	RoleParity5  Role = "parity5"
	RoleParity6P Role = "parity6-p"
	RoleParity6Q Role = "parity6-q"
)

// ShardRole returns the role of the data shard at index i (0-based).
func ShardRole(i int) Role {
	return Role(fmt.Sprintf("shard-%d", i+1))
}

// ShardIndex returns the 0-based shard index of r, or -1 for parity roles.
func (r Role) ShardIndex() int {
	switch r {
	case RoleShard1:
		return 0
	case RoleShard2:
		return 1
	case RoleShard3:
		return 2
	}
	return -1
}

// IsParity reports whether r is one of the parity roles.
func (r Role) IsParity() bool {
	return r == RoleParity5 || r == RoleParity6P || r == RoleParity6Q
}

// ShardKey addresses one stored blob.
type ShardKey struct {
	Node   string
	Object string
	Role   Role
}

func (k ShardKey) String() string {
	return fmt.Sprintf("%s/%s[%s]", k.Node, k.Object, k.Role)
}
