package xmss

import (
	"math"
)

// Traversal state of a single subtree following the algorithm of Buchmann,
// Dahmen and Schneider ("Merkle tree traversal revisited", 2008).  It keeps
// the authentication path of the current leaf and spreads the work of
// computing the next authentication paths evenly over the signatures,
// storing O(h) nodes instead of the whole subtree.
//
// A state is used at most once: nextState returns an updated copy and
// marks the receiver used.
type bds struct {
	treeHeight uint32
	k          uint32 // the top k levels are kept in retain/keep
	sta        SubTreeAddress
	index      uint32 // leaf whose authentication path is in authPath
	used       bool

	root       Node
	authPath   []Node
	keep       map[uint32]Node
	retain     map[uint32][]Node // FIFO queues of right nodes on top levels
	stack      nodeStack         // shared by the treeHashes
	treeHashes []*treeHash       // one for each of the lowest h-k levels
}

func (ctx *Context) newBDS(sta SubTreeAddress) *bds {
	h, k := ctx.treeHeight, ctx.bdsK
	b := &bds{
		treeHeight: h,
		k:          k,
		sta:        sta,
		authPath:   make([]Node, 0, h),
		keep:       make(map[uint32]Node),
		retain:     make(map[uint32][]Node),
		treeHashes: make([]*treeHash, h-k),
	}
	for height := uint32(0); height < h-k; height++ {
		b.treeHashes[height] = newTreeHash(height)
	}
	return b
}

// Returns the state that remains after the last leaf of a subtree has
// been used.  It cannot sign nor be advanced.
func (ctx *Context) exhaustedBDS(sta SubTreeAddress) *bds {
	b := ctx.newBDS(sta)
	b.authPath = nil
	b.index = 1 << ctx.treeHeight
	b.used = true
	return b
}

// Computes the root of the given subtree and the initial traversal state.
//
// The leafs are folded into the root using a stack, recording on the way
// the authentication path of the first leaf, the first node of every
// treehash instance and the right nodes on the top levels.
func (ctx *Context) buildBDS(pad scratchPad, skSeed, pubSeed []byte,
	sta SubTreeAddress) *bds {
	b := ctx.newBDS(sta)
	var leafCount uint32 = 1 << b.treeHeight

	log.Logf("Building subtree %v with %d leafs", sta, leafCount)

	batchSize := uint32(leafBatchSize)
	if batchSize > leafCount {
		batchSize = leafCount
	}
	leafs := make([]Node, batchSize)

	for start := uint32(0); start < leafCount; start += batchSize {
		ctx.genLeafsInto(pad, skSeed, pubSeed, sta, start, leafs)

		for i, n := range leafs {
			leaf := start + uint32(i)
			idx := leaf // index of n on its level
			for len(b.stack) > 0 && b.stack.peek().height == n.height {
				b.recordInitialNode(n, idx)
				idx >>= 1
				n = ctx.parentNode(pad, b.stack.pop(), n, pubSeed, sta, idx)
			}
			b.stack.push(n)
		}
	}

	b.root = b.stack.pop()
	b.stack = nil
	return b
}

// Stores a right node that is about to be merged during the initial
// build, if the traversal needs it later on.
func (b *bds) recordInitialNode(n Node, idx uint32) {
	h, k := b.treeHeight, b.k
	if idx == 1 {
		b.authPath = append(b.authPath, n)
	}
	if idx == 3 && n.height < h-k {
		b.treeHashes[n.height].setNode(n)
	}
	if idx >= 3 && idx&1 == 1 && n.height >= h-k && n.height+2 <= h {
		b.retain[n.height] = append(b.retain[n.height], n)
	}
}

// Builds the traversal state of the given subtree, advanced to the
// given leaf.
func (ctx *Context) buildBDSAt(pad scratchPad, skSeed, pubSeed []byte,
	sta SubTreeAddress, index uint32) (*bds, Error) {
	b := ctx.buildBDS(pad, skSeed, pubSeed, sta)
	if index > 0 {
		log.Logf("Fast-forwarding subtree %v to leaf %d", sta, index)
	}
	for b.index < index {
		if err := b.nextAuthPath(ctx, pad, skSeed, pubSeed); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Returns the traversal state for the next leaf and marks b as used.
// After the last leaf, the exhausted state is returned.
func (b *bds) nextState(ctx *Context, pad scratchPad,
	skSeed, pubSeed []byte) (*bds, Error) {
	if b.exhausted() {
		return nil, wrapErrorf(ErrKeyExhausted, "subtree %v", b.sta)
	}
	if b.used {
		return nil, wrapErrorf(ErrStateUsed, "subtree %v, leaf %d",
			b.sta, b.index)
	}
	if b.index+1 >= 1<<b.treeHeight {
		b.used = true
		return ctx.exhaustedBDS(b.sta), nil
	}
	ret := b.clone()
	if err := ret.nextAuthPath(ctx, pad, skSeed, pubSeed); err != nil {
		return nil, err
	}
	b.used = true
	return ret, nil
}

// Returns whether the authentication path of the current leaf is available.
func (b *bds) exhausted() bool {
	return b.index >= 1<<b.treeHeight
}

// Returns a copy of the authentication path.
func (b *bds) getAuthPath() []Node {
	ret := make([]Node, len(b.authPath))
	copy(ret, b.authPath)
	return ret
}

// Returns a deep copy of the state.  Nodes themselves are shared.
func (b *bds) clone() *bds {
	ret := &bds{
		treeHeight: b.treeHeight,
		k:          b.k,
		sta:        b.sta,
		index:      b.index,
		used:       b.used,
		root:       b.root,
		authPath:   make([]Node, len(b.authPath), b.treeHeight),
		keep:       make(map[uint32]Node, len(b.keep)),
		retain:     make(map[uint32][]Node, len(b.retain)),
		stack:      b.stack.clone(),
		treeHashes: make([]*treeHash, len(b.treeHashes)),
	}
	copy(ret.authPath, b.authPath)
	for height, n := range b.keep {
		ret.keep[height] = n
	}
	for height, queue := range b.retain {
		ret.retain[height] = append([]Node(nil), queue...)
	}
	for i, th := range b.treeHashes {
		ret.treeHashes[i] = th.clone()
	}
	return ret
}

// Returns the index of the lowest zero bit of index.
func calculateTau(index, treeHeight uint32) uint32 {
	for tau := uint32(0); tau < treeHeight; tau++ {
		if (index>>tau)&1 == 0 {
			return tau
		}
	}
	return treeHeight
}

// Advances the state in place from leaf b.index to leaf b.index+1.
func (b *bds) nextAuthPath(ctx *Context, pad scratchPad,
	skSeed, pubSeed []byte) Error {
	h, k := b.treeHeight, b.k
	if b.index+1 >= 1<<h {
		return wrapErrorf(ErrKeyExhausted,
			"no authentication path after leaf %d of subtree %v",
			b.index, b.sta)
	}
	if uint32(len(b.authPath)) != h {
		return wrapErrorf(ErrInvalidState, "authentication path has length %d",
			len(b.authPath))
	}

	tau := calculateTau(b.index, h)

	// The authentication node on level tau is a left node whose parent
	// is needed later on.
	if (b.index>>(tau+1))&1 == 0 && tau < h-1 {
		b.keep[tau] = b.authPath[tau]
	}

	if tau == 0 {
		b.authPath[0] = ctx.genLeaf(pad, skSeed, pubSeed, b.sta, b.index)
	} else {
		kept, ok := b.keep[tau-1]
		if !ok {
			return wrapErrorf(ErrInvalidState,
				"missing kept node on height %d", tau-1)
		}
		b.authPath[tau] = ctx.parentNode(pad, b.authPath[tau-1], kept,
			pubSeed, b.sta, b.index>>tau)
		delete(b.keep, tau-1)

		for height := uint32(0); height < tau; height++ {
			if height < h-k {
				tail := b.treeHashes[height].tail
				if tail == nil {
					return wrapErrorf(ErrInvalidState,
						"treehash on height %d has no node", height)
				}
				b.authPath[height] = *tail
			} else {
				queue := b.retain[height]
				if len(queue) == 0 {
					return wrapErrorf(ErrInvalidState,
						"no retained node on height %d", height)
				}
				b.authPath[height] = queue[0]
				if len(queue) == 1 {
					delete(b.retain, height)
				} else {
					b.retain[height] = queue[1:]
				}
			}
		}

		minHeight := tau
		if h-k < minHeight {
			minHeight = h - k
		}
		for height := uint32(0); height < minHeight; height++ {
			start := uint64(b.index) + 1 + 3*(uint64(1)<<height)
			if start < uint64(1)<<h {
				b.treeHashes[height].initialize(uint32(start))
			}
		}
	}

	for i := uint32(0); i < (h-k)>>1; i++ {
		th := b.treeHashForUpdate()
		if th == nil {
			break
		}
		if err := th.update(ctx, pad, &b.stack, skSeed, pubSeed,
			b.sta); err != nil {
			return err
		}
	}

	b.index++
	return nil
}

// Returns the treehash instance that should be updated next: the one
// with the lowest current height, ties broken by leaf index.
func (b *bds) treeHashForUpdate() *treeHash {
	var ret *treeHash
	for _, th := range b.treeHashes {
		if th.lowHeight() == math.MaxUint32 {
			continue
		}
		if ret == nil || th.height < ret.height ||
			(th.height == ret.height && th.nextIndex < ret.nextIndex) {
			ret = th
		}
	}
	return ret
}
