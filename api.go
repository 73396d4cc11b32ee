package xmss

// Contains majority of the API

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"io"
)

// XMSS[MT] private key together with the state needed to sign with it.
//
// A PrivateKey can be used for a single signature: Sign returns the
// signature together with the successor PrivateKey to use for the next
// signature.  Signing twice with the same PrivateKey fails with
// ErrStateUsed.  See Signer for a private key whose state is persisted.
type PrivateKey struct {
	ctx     *Context // context, which contains algorithm parameters.
	pubSeed []byte
	skSeed  []byte
	skPrf   []byte
	root    []byte         // root node
	seqNo   SignatureSeqNo // first unused signature

	// Traversal state for each subtree on the path to the leaf seqNo
	states map[SubTreeAddress]*bds
}

// XMSS[MT] public key
type PublicKey struct {
	ctx     *Context // context which contains algorithm parameters
	pubSeed []byte
	root    []byte // root node
}

// Represents a XMSS[MT] signature
type Signature struct {
	ctx   *Context       // context which contains algorithm parameter
	seqNo SignatureSeqNo // sequence number of this signature. (Same as index.)
	drv   []byte         // digest randomized value (R)

	// The signature consists of several barebones XMSS signatures.
	// sigs[0] signs hash, sigs[1] signs the root of the subtree for sigs[0],
	// sigs[2] signs the root of the subtree for sigs[1], ...
	// sigs[d-1] signs the root of the subtree for sigs[d-2].
	sigs []subTreeSig
}

// Represents a signature made by a subtree. This is basically
// an XMSS signature without all the decorations.
type subTreeSig struct {
	wotsSig  []byte
	authPath []byte
}

// Generates an XMSS[MT] public/private keypair.  The seeds are read from
// rng, or from crypto/rand if rng is nil.
func (ctx *Context) GenerateKey(rng io.Reader) (*PrivateKey, *PublicKey, Error) {
	if rng == nil {
		rng = rand.Reader
	}
	seeds := make([]byte, 3*ctx.p.N)
	if _, err := io.ReadFull(rng, seeds); err != nil {
		return nil, nil, wrapErrorf(err, "Failed to generate seeds")
	}
	n := ctx.p.N
	return ctx.Derive(seeds[:n], seeds[n:2*n], seeds[2*n:])
}

// Derives an XMSS[MT] public/private keypair from the given seeds.
// pubSeed, skSeed and skPrf should be secret random ctx.p.N length byte
// slices.
func (ctx *Context) Derive(pubSeed, skSeed, skPrf []byte) (
	*PrivateKey, *PublicKey, Error) {
	n := int(ctx.p.N)
	if len(pubSeed) != n || len(skSeed) != n || len(skPrf) != n {
		return nil, nil, errorf(
			"skPrf, skSeed and pubSeed should have length %d", n)
	}

	sk := &PrivateKey{
		ctx:     ctx,
		pubSeed: append([]byte(nil), pubSeed...),
		skSeed:  append([]byte(nil), skSeed...),
		skPrf:   append([]byte(nil), skPrf...),
	}

	var err Error
	sk.states, err = ctx.buildStatesAt(ctx.newScratchPad(), sk.skSeed,
		sk.pubSeed, 0, nil)
	if err != nil {
		return nil, nil, err
	}
	sk.root = sk.states[SubTreeAddress{Layer: ctx.p.D - 1}].root.Value()

	return sk, sk.PublicKey(), nil
}

// Returns the public key belonging to this private key.
func (sk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{
		ctx:     sk.ctx,
		pubSeed: sk.pubSeed,
		root:    sk.root,
	}
}

// Returns the sequence number of the signature that will be created next.
func (sk *PrivateKey) SeqNo() SignatureSeqNo {
	return sk.seqNo
}

// Returns the number of signatures that can still be created.
func (sk *PrivateKey) SignaturesRemaining() uint64 {
	return sk.ctx.p.MaxSignatureSeqNo() + 1 - uint64(sk.seqNo)
}

// Returns the authentication path of the next signature in the lowest
// subtree, from the leafs up.  Returns nil if the key is exhausted.
func (sk *PrivateKey) AuthPath() []Node {
	if sk.exhausted() {
		return nil
	}
	staPath, _ := sk.ctx.subTreePathForSeqNo(sk.seqNo)
	return sk.states[staPath[0]].getAuthPath()
}

func (sk *PrivateKey) exhausted() bool {
	return uint64(sk.seqNo) > sk.ctx.p.MaxSignatureSeqNo()
}

// Returns whether this private key has already been used.
func (sk *PrivateKey) Used() bool {
	if sk.exhausted() {
		return true
	}
	staPath, _ := sk.ctx.subTreePathForSeqNo(sk.seqNo)
	return sk.states[staPath[0]].used
}

// Signs the given message.  Returns the signature and the private key
// to use for the next signature.  The receiver can not be used to sign
// again.
func (sk *PrivateKey) Sign(msg []byte) (*Signature, *PrivateKey, Error) {
	return sk.SignFrom(bytes.NewReader(msg))
}

// Signs the message read from msg until EOF.  See Sign.
func (sk *PrivateKey) SignFrom(msg io.Reader) (
	*Signature, *PrivateKey, Error) {
	ctx := sk.ctx
	if sk.exhausted() {
		return nil, nil, wrapErrorf(ErrKeyExhausted,
			"all %d signatures have been used", ctx.p.MaxSignatureSeqNo()+1)
	}

	staPath, leafs := ctx.subTreePathForSeqNo(sk.seqNo)
	if sk.states[staPath[0]].used {
		return nil, nil, wrapErrorf(ErrStateUsed,
			"signature %d has already been created", sk.seqNo)
	}

	pad := ctx.newScratchPad()
	sig := Signature{
		ctx:   ctx,
		seqNo: sk.seqNo,
		sigs:  make([]subTreeSig, ctx.p.D),
		drv:   ctx.prfUint64(pad, sk.skPrf, uint64(sk.seqNo)),
	}

	toSign, err := ctx.hashMessage(pad, msg, sig.drv, sk.root,
		uint64(sk.seqNo))
	if err != nil {
		return nil, nil, err
	}

	for layer, sta := range staPath {
		state := sk.states[sta]
		otsAddr := sta.otsAddress(leafs[layer])
		seed := ctx.getWotsSeed(pad, sk.skSeed, otsAddr)
		sig.sigs[layer] = subTreeSig{
			wotsSig:  ctx.wotsSign(pad, toSign, seed, sk.pubSeed, otsAddr),
			authPath: ctx.encodeAuthPath(state.authPath),
		}
		toSign = state.root.value
	}

	next, err := sk.next(pad)
	if err != nil {
		return nil, nil, err
	}
	return &sig, next, nil
}

// Returns the private key for the signature n positions further,
// skipping the signatures in between.  The receiver can not be used to
// sign afterwards.
func (sk *PrivateKey) Skip(n uint64) (*PrivateKey, Error) {
	ctx := sk.ctx
	if n == 0 {
		return sk, nil
	}
	if sk.exhausted() {
		return nil, wrapErrorf(ErrKeyExhausted, "no signatures left to skip")
	}
	if sk.Used() {
		return nil, wrapErrorf(ErrStateUsed,
			"signature %d has already been created", sk.seqNo)
	}
	if n > sk.SignaturesRemaining() {
		return nil, wrapErrorf(ErrKeyExhausted,
			"cannot skip %d signatures: only %d left",
			n, sk.SignaturesRemaining())
	}

	target := sk.seqNo + SignatureSeqNo(n)
	staPath, _ := ctx.subTreePathForSeqNo(sk.seqNo)
	ret := sk.withSeqNo(target)
	pad := ctx.newScratchPad()

	if uint64(target) > ctx.p.MaxSignatureSeqNo() {
		ret.states = ctx.exhaustedStates()
	} else {
		var err Error
		ret.states, err = ctx.buildStatesAt(pad, sk.skSeed, sk.pubSeed,
			target, sk.states)
		if err != nil {
			return nil, err
		}
	}

	sk.states[staPath[0]].used = true
	return ret, nil
}

// Returns a copy of sk (without traversal states) with the given
// sequence number.
func (sk *PrivateKey) withSeqNo(seqNo SignatureSeqNo) *PrivateKey {
	return &PrivateKey{
		ctx:     sk.ctx,
		pubSeed: sk.pubSeed,
		skSeed:  sk.skSeed,
		skPrf:   sk.skPrf,
		root:    sk.root,
		seqNo:   seqNo,
	}
}

// Check whether the sig is a valid signature of this public key
// for the given message.
func (pk *PublicKey) Verify(sig *Signature, msg []byte) (bool, Error) {
	return pk.VerifyFrom(sig, bytes.NewReader(msg))
}

// Check whether the sig is a valid signature of this public key
// for the message read from msg.
func (pk *PublicKey) VerifyFrom(sig *Signature, msg io.Reader) (bool, Error) {
	ctx := pk.ctx
	if sig.ctx.p != ctx.p {
		return false, errorf("Signature is for %v instead of %v",
			sig.ctx.p, ctx.p)
	}
	if uint64(sig.seqNo) > ctx.p.MaxSignatureSeqNo() {
		return false, errorf("Signature index %d out of range", sig.seqNo)
	}

	pad := ctx.newScratchPad()
	rxMsg, err := ctx.hashMessage(pad, msg, sig.drv, pk.root,
		uint64(sig.seqNo))
	if err != nil {
		return false, err
	}
	staPath, leafs := ctx.subTreePathForSeqNo(sig.seqNo)

	for layer, sta := range staPath {
		rxSig := sig.sigs[layer]
		var offset uint32 = leafs[layer]
		otsAddr := sta.otsAddress(offset)
		wotsPk := ctx.wotsPkFromSig(pad, rxSig.wotsSig, rxMsg,
			pk.pubSeed, otsAddr)
		cur := ctx.lTree(pad, wotsPk, pk.pubSeed, sta.lTreeAddress(offset))

		// use the authentication path to hash up the merkle tree
		for height := uint32(0); height < ctx.treeHeight; height++ {
			sibling := Node{
				height: height,
				value:  rxSig.authPath[height*ctx.p.N : (height+1)*ctx.p.N],
			}
			if offset&1 == 0 {
				// we're on the left, so the sibling hash from the
				// auth path is on the right
				cur = ctx.parentNode(pad, cur, sibling, pk.pubSeed, sta,
					offset>>1)
			} else {
				cur = ctx.parentNode(pad, sibling, cur, pk.pubSeed, sta,
					offset>>1)
			}
			offset >>= 1
		}

		rxMsg = cur.value
	}

	if subtle.ConstantTimeCompare(rxMsg, pk.root) != 1 {
		return false, errorf("Invalid signature")
	}

	return true, nil
}

// Returns the sequence number of the signature.
func (sig *Signature) SeqNo() SignatureSeqNo {
	return sig.seqNo
}

func (sk *PrivateKey) Context() *Context {
	return sk.ctx
}

func (pk *PublicKey) Context() *Context {
	return pk.ctx
}

func (sig *Signature) Context() *Context {
	return sig.ctx
}

// Concatenates the values of the nodes of an authentication path.
func (ctx *Context) encodeAuthPath(path []Node) []byte {
	ret := make([]byte, 0, ctx.treeHeight*ctx.p.N)
	for _, n := range path {
		ret = append(ret, n.value...)
	}
	return ret
}
