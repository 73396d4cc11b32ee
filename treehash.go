package xmss

import (
	"math"
)

// Incrementally computes a single node at a fixed target height of a
// subtree, one leaf per call to update().  Used by the BDS traversal to
// prepare the authentication path nodes of the low levels ahead of time.
//
// Nodes below the target height that are waiting for their right sibling
// live on the stack shared by all treeHash instances of a BDS state.
type treeHash struct {
	targetHeight uint32
	height       uint32 // height of the most recently produced node
	nextIndex    uint32 // leaf to compute on the next update
	tail         *Node  // most recently produced node
	initialized  bool
	finished     bool
}

func newTreeHash(targetHeight uint32) *treeHash {
	return &treeHash{targetHeight: targetHeight}
}

// Prepares to compute the node at the target height above leaf nextIndex.
func (th *treeHash) initialize(nextIndex uint32) {
	th.tail = nil
	th.height = th.targetHeight
	th.nextIndex = nextIndex
	th.initialized = true
	th.finished = false
}

// Sets the tail directly.  Used while building the initial state.
func (th *treeHash) setNode(n Node) {
	th.tail = &n
	th.height = n.height
	if n.height == th.targetHeight {
		th.finished = true
	}
}

// Returns the height used to schedule updates: the lower, the sooner.
// Returns math.MaxUint32 for instances that do not need updates.
func (th *treeHash) lowHeight() uint32 {
	if !th.initialized || th.finished {
		return math.MaxUint32
	}
	return th.height
}

// Computes the next leaf and merges it with the nodes on the stack
// as far as possible without passing the target height.
func (th *treeHash) update(ctx *Context, pad scratchPad, stack *nodeStack,
	skSeed, pubSeed []byte, sta SubTreeAddress) Error {
	if th.finished || !th.initialized {
		return wrapErrorf(ErrInvalidState,
			"update of a treehash that is finished or not initialized")
	}

	n := ctx.genLeaf(pad, skSeed, pubSeed, sta, th.nextIndex)
	idx := th.nextIndex

	for len(*stack) > 0 && stack.peek().height == n.height &&
		stack.peek().height != th.targetHeight {
		idx >>= 1
		n = ctx.parentNode(pad, stack.pop(), n, pubSeed, sta, idx)
	}

	if th.tail == nil {
		th.tail = &n
	} else if th.tail.height == n.height {
		idx >>= 1
		n = ctx.parentNode(pad, *th.tail, n, pubSeed, sta, idx)
		th.tail = &n
	} else {
		stack.push(n)
	}

	if th.tail.height == th.targetHeight {
		th.finished = true
	} else {
		th.height = n.height
		th.nextIndex++
	}
	return nil
}

func (th *treeHash) clone() *treeHash {
	ret := *th
	if th.tail != nil {
		tail := *th.tail
		ret.tail = &tail
	}
	return &ret
}
