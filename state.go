package xmss

// Returns the path of subtrees from the bottom layer to the top layer
// that contain the leaf seqNo, and the leaf within each of them.
func (ctx *Context) subTreePathForSeqNo(seqNo SignatureSeqNo) (
	path []SubTreeAddress, leafs []uint32) {
	h := ctx.treeHeight
	path = make([]SubTreeAddress, ctx.p.D)
	leafs = make([]uint32, ctx.p.D)
	for layer := uint32(0); layer < ctx.p.D; layer++ {
		leafs[layer] = uint32(seqNo>>(h*layer)) & ((1 << h) - 1)
		path[layer] = SubTreeAddress{
			Layer: layer,
			Tree:  uint64(seqNo) >> (h * (layer + 1)),
		}
	}
	return
}

// Returns the traversal states for the signature seqNo.  States in old
// that are already at the right leaf are copied instead of recomputed.
func (ctx *Context) buildStatesAt(pad scratchPad, skSeed, pubSeed []byte,
	seqNo SignatureSeqNo, old map[SubTreeAddress]*bds) (
	map[SubTreeAddress]*bds, Error) {
	staPath, leafs := ctx.subTreePathForSeqNo(seqNo)
	ret := make(map[SubTreeAddress]*bds, len(staPath))
	for layer, sta := range staPath {
		if prev, ok := old[sta]; ok && prev.index == leafs[layer] && !prev.used {
			ret[sta] = prev.clone()
			continue
		}
		state, err := ctx.buildBDSAt(pad, skSeed, pubSeed, sta, leafs[layer])
		if err != nil {
			return nil, err
		}
		ret[sta] = state
	}
	return ret, nil
}

// Returns the traversal states of an exhausted private key.
func (ctx *Context) exhaustedStates() map[SubTreeAddress]*bds {
	staPath, _ := ctx.subTreePathForSeqNo(
		SignatureSeqNo(ctx.p.MaxSignatureSeqNo()))
	ret := make(map[SubTreeAddress]*bds, len(staPath))
	for _, sta := range staPath {
		ret[sta] = ctx.exhaustedBDS(sta)
	}
	return ret
}

// Computes the private key for the next signature and marks sk as used.
//
// Going from signature s to s+1, the subtree on layer i is replaced by a
// freshly built one if s+1 is a multiple of 2^(h(i+1)); it moves to its
// next leaf if s+1 is a multiple of 2^(hi) and otherwise stays put.
func (sk *PrivateKey) next(pad scratchPad) (*PrivateKey, Error) {
	ctx := sk.ctx
	seqNo := sk.seqNo
	staPath, _ := ctx.subTreePathForSeqNo(seqNo)
	bottom := sk.states[staPath[0]]
	ret := sk.withSeqNo(seqNo + 1)

	if uint64(seqNo) == ctx.p.MaxSignatureSeqNo() {
		bottom.used = true
		ret.states = ctx.exhaustedStates()
		log.Logf("Private key is exhausted")
		return ret, nil
	}

	nextPath, _ := ctx.subTreePathForSeqNo(seqNo + 1)
	ret.states = make(map[SubTreeAddress]*bds, len(nextPath))
	for layer, sta := range staPath {
		var state *bds
		var err Error
		cur := sk.states[sta]
		switch {
		case nextPath[layer] != sta:
			state = ctx.buildBDS(pad, sk.skSeed, sk.pubSeed, nextPath[layer])
		case layer == 0 ||
			uint64(seqNo+1)%(uint64(1)<<(ctx.treeHeight*uint32(layer))) == 0:
			state, err = cur.nextState(ctx, pad, sk.skSeed, sk.pubSeed)
			if err != nil {
				return nil, err
			}
		default:
			state = cur.clone()
		}
		ret.states[nextPath[layer]] = state
	}
	bottom.used = true

	if remaining := ret.SignaturesRemaining(); remaining <= 16 {
		log.Logf("Only %d signatures left", remaining)
	}
	return ret, nil
}
