package ir

import "sync"

// NodeTable deduplicates structurally identical nodes by Hash.
type NodeTable struct {
	mu     sync.Mutex
	nodes  map[Hash]Node
	hits   int
	misses int
}

// NewNodeTable returns an empty table.
func NewNodeTable() *NodeTable {
	return &NodeTable{nodes: make(map[Hash]Node)}
}

// Intern returns the node already recorded with n's hash, or records and
// returns n. Nodes are only merged when operator and output count agree too.
func (t *NodeTable) Intern(n Node) Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := n.Hash()
	if prev, ok := t.nodes[h]; ok && prev.Op() == n.Op() && prev.NumOutputs() == n.NumOutputs() {
		t.hits++
		return prev
	}
	t.misses++
	t.nodes[h] = n
	return n
}

// Lookup returns the node recorded for h.
func (t *NodeTable) Lookup(h Hash) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[h]
	return n, ok
}

// Len returns the number of distinct nodes.
func (t *NodeTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Stats reports how many Intern calls reused a node and how many added one.
func (t *NodeTable) Stats() (hits, misses int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hits, t.misses
}
