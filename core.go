package xmss

import (
	"sync"
)

// Number of leafs generated at a time when building a subtree.
const leafBatchSize = 256

// Generate the leaf at the given index of a subtree by first computing the
// WOTS+ key pair and then compressing its public key using an L-tree.
func (ctx *Context) genLeaf(pad scratchPad, skSeed, pubSeed []byte,
	sta SubTreeAddress, idx uint32) Node {
	otsAddr := sta.otsAddress(idx)
	seed := ctx.getWotsSeed(pad, skSeed, otsAddr)
	pk := ctx.wotsPkGen(pad, seed, pubSeed, otsAddr)
	return ctx.lTree(pad, pk, pubSeed, sta.lTreeAddress(idx))
}

// Computes the leafs start, start+1, ..., start+len(out)-1 of the given
// subtree into out.
func (ctx *Context) genLeafsInto(pad scratchPad, skSeed, pubSeed []byte,
	sta SubTreeAddress, start uint32, out []Node) {
	count := uint32(len(out))
	threads := ctx.threads()

	if threads == 1 || count == 1 {
		for i := uint32(0); i < count; i++ {
			out[i] = ctx.genLeaf(pad, skSeed, pubSeed, sta, start+i)
		}
		return
	}

	// The code below does exactly the same as the loop above,
	// but then in parallel.
	wg := &sync.WaitGroup{}
	mux := &sync.Mutex{}
	var perBatch uint32 = 8
	var next uint32
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func() {
			defer wg.Done()
			pad := ctx.newScratchPad()
			for {
				mux.Lock()
				ours := next
				next += perBatch
				mux.Unlock()
				if ours >= count {
					return
				}
				end := ours + perBatch
				if end > count {
					end = count
				}
				for ; ours < end; ours++ {
					out[ours] = ctx.genLeaf(pad, skSeed, pubSeed, sta,
						start+ours)
				}
			}
		}()
	}
	wg.Wait() // wait for all workers to finish
}
