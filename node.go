package xmss

import (
	"fmt"

	"github.com/templexxx/xor"
)

// A node in a Merkle tree together with its height.  Leaves have height 0.
//
// Nodes are never modified after creation, so they may be shared freely
// between traversal states.
type Node struct {
	height uint32
	value  []byte
}

// Returns a node with a copy of the given value.
func newNode(height uint32, value []byte) Node {
	buf := make([]byte, len(value))
	copy(buf, value)
	return Node{height: height, value: buf}
}

func (n Node) Height() uint32 { return n.height }

// Returns a copy of the hash value of the node.
func (n Node) Value() []byte {
	ret := make([]byte, len(n.value))
	copy(ret, n.value)
	return ret
}

func (n Node) String() string {
	return fmt.Sprintf("%d:%x", n.height, n.value)
}

// Combines two nodes of equal height into their parent as
//
//	H(key, (left XOR bm0) || (right XOR bm1))
//
// where key, bm0 and bm1 are PRF(pubSeed, addr) with keyAndMask 0, 1 and 2.
// The returned node carries the height of its children: callers that build
// trees bump it themselves.
func (ctx *Context) randomizeHash(pad scratchPad, left, right Node,
	pubSeed []byte, addr address) Node {
	if left.height != right.height {
		panic(fmt.Sprintf("randomizeHash: heights %d and %d differ",
			left.height, right.height))
	}
	n := ctx.p.N
	key := pad.keyBuf()
	bm := pad.bitmaskBuf()
	ctx.prfAddrInto(pad, pubSeed, addr.withKeyAndMask(0), key)
	ctx.prfAddrInto(pad, pubSeed, addr.withKeyAndMask(1), bm[:n])
	ctx.prfAddrInto(pad, pubSeed, addr.withKeyAndMask(2), bm[n:])
	xor.BytesSameLen(bm[:n], left.value, bm[:n])
	xor.BytesSameLen(bm[n:], right.value, bm[n:])
	ret := make([]byte, n)
	ctx.hInto(pad, key, bm, ret)
	return Node{height: left.height, value: ret}
}

// Returns the parent of two sibling nodes in the hash tree of a subtree.
// idx is the index of the parent on its level.
func (ctx *Context) parentNode(pad scratchPad, left, right Node,
	pubSeed []byte, sta SubTreeAddress, idx uint32) Node {
	addr := sta.hashTreeAddress().
		withTreeHeight(left.height).
		withTreeIndex(idx)
	ret := ctx.randomizeHash(pad, left, right, pubSeed, addr)
	ret.height++
	return ret
}

// Compresses a WOTS+ public key into a single node using an L-tree.
// The resulting node has height 0; wotsPk is left untouched.
func (ctx *Context) lTree(pad scratchPad, wotsPk, pubSeed []byte,
	addr address) Node {
	n := ctx.p.N
	l := ctx.wotsLen
	nodes := make([]Node, l)
	for i := uint32(0); i < l; i++ {
		nodes[i] = Node{value: wotsPk[i*n : (i+1)*n]}
	}
	var height uint32
	for l > 1 {
		levelAddr := addr.withTreeHeight(height)
		parents := l >> 1
		for i := uint32(0); i < parents; i++ {
			nodes[i] = ctx.randomizeHash(pad, nodes[2*i], nodes[2*i+1],
				pubSeed, levelAddr.withTreeIndex(i))
		}
		if l&1 == 1 {
			// the unpaired last node moves up unchanged
			nodes[parents] = nodes[l-1]
			l = parents + 1
		} else {
			l = parents
		}
		height++
	}
	return newNode(0, nodes[0].value)
}

// Stack of nodes used to fold leaves into their subtree roots.
type nodeStack []Node

func (s *nodeStack) push(n Node) {
	*s = append(*s, n)
}

func (s *nodeStack) pop() Node {
	old := *s
	ret := old[len(old)-1]
	*s = old[:len(old)-1]
	return ret
}

// Returns the top node.  Only call on a non-empty stack.
func (s nodeStack) peek() Node {
	return s[len(s)-1]
}

func (s nodeStack) clone() nodeStack {
	if s == nil {
		return nil
	}
	ret := make(nodeStack, len(s))
	copy(ret, s)
	return ret
}
