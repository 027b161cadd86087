package ipset

import (
	rnet "github.com/ipmatch/ipset/net"
)

// collapseFrame records a branch passed on the way down during insertion
// and the child that was not taken.
type collapseFrame struct {
	branch  nodeID
	sibling nodeID
}

// builder inserts CIDR entries into an arena of nodes. It is used once by
// New and discarded.
type builder struct {
	nodes []node
	stack []collapseFrame
}

func newBuilder() *builder {
	return &builder{
		stack: make([]collapseFrame, 0, rnet.IPv6Bits),
	}
}

func (b *builder) alloc(n node) nodeID {
	b.nodes = append(b.nodes, n)
	return nodeID(len(b.nodes) - 1)
}

// insert marks every address sharing the first mask bits of addr as a
// member of the trie rooted at root.
//
// A leaf(true) met on the way down covers the entry already, so insertion
// stops there. Otherwise the slot reached after mask bits becomes
// leaf(true), dropping whatever narrower subtree was there before, and
// branches whose two children both match are folded into leaf(true) from
// the bottom up.
func (b *builder) insert(root nodeID, addr []byte, mask int) {
	b.stack = b.stack[:0]
	cur := root
	for i := 0; ; {
		n := b.nodes[cur]
		if n.isMatch() {
			return
		}
		if i == mask {
			b.nodes[cur] = leaf(true)
			break
		}
		switch n.kind {
		case leafNode:
			if i%rnet.BitsPerByte == 0 && mask-i >= rnet.BitsPerByte {
				next := b.alloc(leaf(false))
				b.nodes[cur] = node{kind: compressedNode, cmp: rnet.ByteAt(addr, i), next: next}
			} else {
				zero := b.alloc(leaf(false))
				one := b.alloc(leaf(false))
				b.nodes[cur] = node{kind: branchNode, children: [2]nodeID{zero, one}}
			}
		case compressedNode:
			if rnet.ByteAt(addr, i) == n.cmp && mask-i >= rnet.BitsPerByte {
				// The other 255 values of this byte never match, so nothing
				// above a compressed node can fold.
				b.stack = b.stack[:0]
				cur = n.next
				i += rnet.BitsPerByte
				continue
			}
			b.decompress(cur)
		case branchNode:
			bit := rnet.Bit(addr, i)
			b.stack = append(b.stack, collapseFrame{branch: cur, sibling: n.children[bit^1]})
			cur = n.children[bit]
			i++
		}
	}
	b.collapse()
}

// decompress replaces the compressed node at id with the eight branch
// levels spelled by its compare byte. The last level leads to the former
// next node; every branch off the path is leaf(false).
func (b *builder) decompress(id nodeID) {
	n := b.nodes[id]
	cur := id
	for level := 0; level < rnet.BitsPerByte; level++ {
		bit := (n.cmp >> (7 - uint(level))) & 1
		on := n.next
		if level < rnet.BitsPerByte-1 {
			on = b.alloc(leaf(false))
		}
		off := b.alloc(leaf(false))

		var children [2]nodeID
		children[bit] = on
		children[bit^1] = off
		b.nodes[cur] = node{kind: branchNode, children: children}
		cur = on
	}
}

// collapse folds the branches recorded during the last insertion into
// leaf(true), deepest first, for as long as the sibling also matches.
func (b *builder) collapse() {
	for k := len(b.stack) - 1; k >= 0; k-- {
		frame := b.stack[k]
		if !b.nodes[frame.sibling].isMatch() {
			return
		}
		b.nodes[frame.branch] = leaf(true)
	}
}
