package xmss

import (
	"crypto/subtle"
	"fmt"

	"github.com/templexxx/xorsimd"
)

// Derive the seed for the WOTS+ key pair at the given address
// from the secret key seed.
func (ctx *Context) getWotsSeed(pad scratchPad, skSeed []byte,
	addr address) []byte {
	ret := pad.wotsSkSeedBuf()
	ctx.prfAddrInto(pad, skSeed,
		addr.withChain(0).withHash(0).withKeyAndMask(0), ret)
	return ret
}

// Expands seed to WOTS+ secret key
func (ctx *Context) wotsExpandSeed(pad scratchPad, seed []byte) []byte {
	ret := make([]byte, ctx.p.N*ctx.wotsLen)
	for i := uint32(0); i < ctx.wotsLen; i++ {
		ctx.prfUint64Into(pad, seed, uint64(i),
			ret[i*ctx.p.N:(i+1)*ctx.p.N])
	}
	return ret
}

// Converts a message into positions on the WOTS+ chains, which
// are called "chain lengths".
func (ctx *Context) wotsChainLengths(msg []byte) []uint8 {
	ret := make([]uint8, ctx.wotsLen)

	// compute the chain lengths for the message itself
	ctx.toBaseW(msg, ret[:ctx.wotsLen1])

	// compute the checksum
	var csum uint32 = 0
	for i := 0; i < int(ctx.wotsLen1); i++ {
		csum += uint32(ctx.p.WotsW) - 1 - uint32(ret[i])
	}
	csum = csum << (8 - ((ctx.wotsLen2 * uint32(ctx.wotsLogW)) % 8))

	// put checksum in buffer
	ctx.toBaseW(
		encodeUint64(
			uint64(csum),
			int((ctx.wotsLen2*uint32(ctx.wotsLogW)+7)/8)),
		ret[ctx.wotsLen1:])
	return ret
}

// Converts the given array of bytes into base w for the WOTS+ one-time
// signature scheme.  Only works if LogW divides into 8.
func (ctx *Context) toBaseW(input []byte, output []uint8) {
	var in uint32 = 0
	var total uint8
	var bits uint8

	for out := range output {
		if bits == 0 {
			total = input[in]
			in++
			bits = 8
		}
		bits -= ctx.wotsLogW
		output[out] = uint8(uint16(total>>bits) & (ctx.p.WotsW - 1))
	}
}

// Computes a single step of a WOTS+ chain:
//
//	F(PRF(pubSeed, addr@0), in XOR PRF(pubSeed, addr@1))
//
// where addr@i is addr with keyAndMask set to i.  in and out may overlap.
func (ctx *Context) chainStepInto(pad scratchPad, in, pubSeed []byte,
	addr address, out []byte) {
	n := ctx.p.N
	key := pad.keyBuf()
	bitmask := pad.bitmaskBuf()[:n]
	ctx.prfAddrInto(pad, pubSeed, addr.withKeyAndMask(0), key)
	ctx.prfAddrInto(pad, pubSeed, addr.withKeyAndMask(1), bitmask)
	xorsimd.Bytes(bitmask, in, bitmask)
	ctx.fInto(pad, key, bitmask, out)
}

// Compute the (start + steps)th value in the WOTS+ chain, given
// the start'th value in the chain.  start+steps may not exceed w-1.
func (ctx *Context) wotsGenChainInto(pad scratchPad, in []byte,
	start, steps uint32, pubSeed []byte, addr address, out []byte) {
	if start+steps > uint32(ctx.p.WotsW)-1 {
		panic(fmt.Sprintf("WOTS+ chain: start %d plus %d steps exceeds %d",
			start, steps, ctx.p.WotsW-1))
	}
	copy(out, in)
	for i := start; i < start+steps; i++ {
		ctx.chainStepInto(pad, out, pubSeed, addr.withHash(i), out)
	}
}

// Generate a WOTS+ public key from the WOTS+ seed of the keypair.
func (ctx *Context) wotsPkGen(pad scratchPad, seed, pubSeed []byte,
	addr address) []byte {
	buf := ctx.wotsExpandSeed(pad, seed)
	for i := uint32(0); i < ctx.wotsLen; i++ {
		chain := buf[ctx.p.N*i : ctx.p.N*(i+1)]
		ctx.wotsGenChainInto(pad, chain, 0, uint32(ctx.p.WotsW)-1,
			pubSeed, addr.withChain(i), chain)
	}
	return buf
}

// Create a WOTS+ signature of a n-byte message
func (ctx *Context) wotsSign(pad scratchPad, msg, seed, pubSeed []byte,
	addr address) []byte {
	lengths := ctx.wotsChainLengths(msg)
	buf := ctx.wotsExpandSeed(pad, seed)
	for i := uint32(0); i < ctx.wotsLen; i++ {
		chain := buf[ctx.p.N*i : ctx.p.N*(i+1)]
		ctx.wotsGenChainInto(pad, chain, 0, uint32(lengths[i]),
			pubSeed, addr.withChain(i), chain)
	}
	return buf
}

// Returns the public key from a message and its WOTS+ signature.
func (ctx *Context) wotsPkFromSig(pad scratchPad, sig, msg, pubSeed []byte,
	addr address) []byte {
	lengths := ctx.wotsChainLengths(msg)
	buf := make([]byte, ctx.p.N*ctx.wotsLen)
	for i := uint32(0); i < ctx.wotsLen; i++ {
		ctx.wotsGenChainInto(pad, sig[ctx.p.N*i:ctx.p.N*(i+1)],
			uint32(lengths[i]), uint32(ctx.p.WotsW)-1-uint32(lengths[i]),
			pubSeed, addr.withChain(i),
			buf[ctx.p.N*i:ctx.p.N*(i+1)])
	}
	return buf
}

// Checks a WOTS+ signature against a WOTS+ public key.
func (ctx *Context) wotsVerify(pad scratchPad, sig, msg, pk, pubSeed []byte,
	addr address) bool {
	return subtle.ConstantTimeCompare(
		ctx.wotsPkFromSig(pad, sig, msg, pubSeed, addr), pk) == 1
}
