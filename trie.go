package ipset

import (
	"fmt"
	"strings"

	rnet "github.com/ipmatch/ipset/net"
)

// nodeID addresses a node in the arena shared by both tries.
type nodeID int32

type nodeKind uint8

const (
	leafNode nodeKind = iota
	branchNode
	compressedNode
)

// node is one element of a binary trie keyed on address bits.
//
// A leaf node ends every walk: matches reports whether all addresses that
// reach it are members. A branch node consumes one bit and continues with
// children[bit]. A compressed node sits on a byte boundary and stands in for
// eight branch levels with a single path: the next address byte must equal
// cmp, and the walk continues at next.
type node struct {
	kind     nodeKind
	matches  bool
	cmp      byte
	next     nodeID
	children [2]nodeID
}

func leaf(matches bool) node {
	return node{kind: leafNode, matches: matches}
}

func (n node) isMatch() bool {
	return n.kind == leafNode && n.matches
}

// walk returns the value of the leaf reached by addr from root. Every path
// is at most len(addr)*8 bits long.
func walk(nodes []node, root nodeID, addr []byte) bool {
	cur := root
	i := 0
	for {
		n := &nodes[cur]
		switch n.kind {
		case leafNode:
			return n.matches
		case compressedNode:
			if rnet.ByteAt(addr, i) != n.cmp {
				return false
			}
			cur = n.next
			i += rnet.BitsPerByte
		default:
			cur = n.children[rnet.Bit(addr, i)]
			i++
		}
	}
}

// compact copies the nodes reachable from roots into a fresh arena, dropping
// the slots orphaned when a broader entry replaced a narrower subtree.
// Every node has exactly one parent, so a plain depth-first copy suffices.
func compact(nodes []node, roots ...nodeID) ([]node, []nodeID) {
	out := make([]node, 0, len(nodes))
	var visit func(id nodeID) nodeID
	visit = func(id nodeID) nodeID {
		n := nodes[id]
		newID := nodeID(len(out))
		out = append(out, n)
		switch n.kind {
		case branchNode:
			zero := visit(n.children[0])
			one := visit(n.children[1])
			out[newID].children = [2]nodeID{zero, one}
		case compressedNode:
			out[newID].next = visit(n.next)
		}
		return newID
	}

	newRoots := make([]nodeID, len(roots))
	for i, root := range roots {
		newRoots[i] = visit(root)
	}
	return out, newRoots
}

// render returns the string representation of the trie rooted at id, mainly
// for visualization and debugging.
func render(nodes []node, id nodeID, level int) string {
	n := nodes[id]
	padding := strings.Repeat("| ", level+1)
	switch n.kind {
	case leafNode:
		if n.matches {
			return "match"
		}
		return "miss"
	case compressedNode:
		return fmt.Sprintf("byte %d\n%s%d--> %s", n.cmp, padding, n.cmp, render(nodes, n.next, level+1))
	}
	children := make([]string, 0, 2)
	for bit, child := range n.children {
		children = append(children, fmt.Sprintf("\n%s%d--> %s", padding, bit, render(nodes, child, level+1)))
	}
	return "bit" + strings.Join(children, "")
}
