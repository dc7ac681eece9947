// Package placement chooses which DataNodes hold the replicas of a block.
package placement

import (
	"sort"

	xx "github.com/cespare/xxhash/v2"
)

type Node struct{ ID, Addr string }

type scored struct {
	score uint64
	node  Node
}

// Set is a snapshot of the live nodes.
type Set struct {
	nodes []Node
}

func New(nodes []Node) *Set {
	s := &Set{nodes: make([]Node, 0, len(nodes))}
	seen := map[string]struct{}{}
	for _, n := range nodes {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		s.nodes = append(s.nodes, n)
	}
	return s
}

func (s *Set) Len() int { return len(s.nodes) }

// PickN returns up to n distinct nodes for key, highest rendezvous score first. Adding or
// removing a node only moves the keys that node wins or loses.
func (s *Set) PickN(key string, n int) []Node {
	if len(s.nodes) == 0 || n <= 0 {
		return nil
	}
	all := make([]scored, len(s.nodes))
	for i, node := range s.nodes {
		all[i] = scored{score: xx.Sum64String(key + "\x00" + node.ID), node: node}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].node.ID < all[j].node.ID
	})
	if n > len(all) {
		n = len(all)
	}
	res := make([]Node, n)
	for i := range res {
		res[i] = all[i].node
	}
	return res
}
