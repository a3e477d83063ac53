package placement

import (
	"testing"

	"github.com/zzenonn/zraid/internal/domain"
)

func newTestPlacer(t *testing.T, nodes ...string) *RoundRobinPlacer {
	t.Helper()
	p := NewRoundRobinPlacer("parity")
	for _, n := range nodes {
		if err := p.RegisterNode(n); err != nil {
			t.Fatalf("RegisterNode(%s) failed: %v", n, err)
		}
	}
	return p
}

func TestRoundRobinPlacer_Place(t *testing.T) {
	p := newTestPlacer(t, "node-1", "node-2")

	tests := []struct {
		shardIndex int
		want       string
	}{
		{0, "node-1"},
		{1, "node-2"},
		{2, "node-1"},
		{3, "node-2"},
	}
	for _, tt := range tests {
		got, err := p.Place(tt.shardIndex)
		if err != nil {
			t.Fatalf("Place(%d) failed: %v", tt.shardIndex, err)
		}
		if got != tt.want {
			t.Errorf("Place(%d) = %s, want %s", tt.shardIndex, got, tt.want)
		}
	}

	if _, err := p.Place(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestRoundRobinPlacer_RegisterNode(t *testing.T) {
	p := NewRoundRobinPlacer("parity")

	if _, err := p.Place(0); err == nil {
		t.Error("expected error with no nodes registered")
	}
	if err := p.RegisterNode("node-1"); err != nil {
		t.Fatalf("RegisterNode failed: %v", err)
	}
	if err := p.RegisterNode("node-1"); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := p.RegisterNode("parity"); err == nil {
		t.Error("expected registering the parity node as a data node to fail")
	}
	if err := p.RegisterNode(""); err == nil {
		t.Error("expected empty node name to fail")
	}

	nodes := p.ListNodes()
	if len(nodes) != 2 || nodes[0] != "node-1" || nodes[1] != "parity" {
		t.Errorf("ListNodes() = %v", nodes)
	}
}

func TestAssign(t *testing.T) {
	p := newTestPlacer(t, "node-1", "node-2", "node-3")

	tests := []struct {
		mode domain.ParityMode
		want map[domain.Role]string
	}{
		{
			mode: domain.RAID5,
			want: map[domain.Role]string{
				domain.RoleShard1:  "node-1",
				domain.RoleShard2:  "node-2",
				domain.RoleShard3:  "node-3",
				domain.RoleParity5: "parity",
			},
		},
		{
			mode: domain.RAID6,
			want: map[domain.Role]string{
				domain.RoleShard1:   "node-1",
				domain.RoleShard2:   "node-2",
				domain.RoleShard3:   "node-3",
				domain.RoleParity6P: "parity",
				domain.RoleParity6Q: "parity",
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got, err := Assign(p, tt.mode)
			if err != nil {
				t.Fatalf("Assign failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Assign() = %v, want %v", got, tt.want)
			}
			for role, node := range tt.want {
				if got[role] != node {
					t.Errorf("role %s placed on %s, want %s", role, got[role], node)
				}
			}
		})
	}

	if _, err := Assign(p, "raid0"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestAssign_TooFewNodes(t *testing.T) {
	p := newTestPlacer(t, "node-1", "node-2")
	if _, err := Assign(p, domain.RAID5); err == nil {
		t.Error("expected error when two shards would share a node")
	}
}
