package xmss

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/sha3"
)

// Domain separation tags of the keyed hash functions.
const (
	HASH_PADDING_F    = 0
	HASH_PADDING_H    = 1
	HASH_PADDING_HASH = 2
	HASH_PADDING_PRF  = 3
)

// Running state of the digest (or XOF) underlying the keyed hash functions.
type hashState interface {
	io.Writer
	Reset()

	// Writes the N byte digest of everything written so far into out.
	sumInto(out []byte)
}

type sha2State struct{ hash.Hash }
type shakeState struct{ sha3.ShakeHash }

func (s sha2State) sumInto(out []byte) {
	s.Sum(out[:0])
}

func (s shakeState) sumInto(out []byte) {
	s.Read(out)
}

func (ctx *Context) newHashState() hashState {
	if ctx.p.Func == SHA2 {
		if ctx.p.N == 32 {
			return sha2State{sha256.New()}
		}
		return sha2State{sha512.New()}
	}
	if ctx.p.N == 32 {
		return shakeState{sha3.NewShake128()}
	}
	return shakeState{sha3.NewShake256()}
}

// Computes the digest of in and writes it into out.
func (ctx *Context) hashInto(pad scratchPad, in, out []byte) {
	pad.hash.Reset()
	pad.hash.Write(in)
	pad.hash.sumInto(out[:ctx.p.N])
}

func (ctx *Context) checkLength(what string, buf []byte, expected uint32) {
	if uint32(len(buf)) != expected {
		panic(fmt.Sprintf("%s should be %d bytes, got %d",
			what, expected, len(buf)))
	}
}

// Computes the keyed hash F(key, in) = hash(toBytes(0, n) || key || in)
// into out.  key and in must be N bytes.
func (ctx *Context) fInto(pad scratchPad, key, in, out []byte) {
	n := ctx.p.N
	ctx.checkLength("F key", key, n)
	ctx.checkLength("F input", in, n)
	buf := pad.fBuf()
	encodeUint64Into(HASH_PADDING_F, buf[:n])
	copy(buf[n:2*n], key)
	copy(buf[2*n:], in)
	ctx.hashInto(pad, buf, out)
}

// Computes the keyed hash H(key, in) = hash(toBytes(1, n) || key || in)
// into out.  key must be N bytes and in 2N bytes.
func (ctx *Context) hInto(pad scratchPad, key, in, out []byte) {
	n := ctx.p.N
	ctx.checkLength("H key", key, n)
	ctx.checkLength("H input", in, 2*n)
	buf := pad.hBuf()
	encodeUint64Into(HASH_PADDING_H, buf[:n])
	copy(buf[n:2*n], key)
	copy(buf[2*n:], in)
	ctx.hashInto(pad, buf, out)
}

// Computes PRF(key, in) into out.  key must be N bytes and in 32 bytes.
func (ctx *Context) prfInto(pad scratchPad, key, in, out []byte) {
	n := ctx.p.N
	ctx.checkLength("PRF key", key, n)
	ctx.checkLength("PRF input", in, 32)
	buf := pad.prfBuf()
	encodeUint64Into(HASH_PADDING_PRF, buf[:n])
	copy(buf[n:2*n], key)
	copy(buf[2*n:], in)
	ctx.hashInto(pad, buf, out)
}

// Computes PRF(key, addr) into out.
func (ctx *Context) prfAddrInto(pad scratchPad, key []byte, addr address,
	out []byte) {
	addrBuf := pad.prfAddrBuf()
	addr.writeInto(addrBuf)
	ctx.prfInto(pad, key, addrBuf, out)
}

// Returns PRF(key, addr).
func (ctx *Context) prfAddr(pad scratchPad, key []byte, addr address) []byte {
	ret := make([]byte, ctx.p.N)
	ctx.prfAddrInto(pad, key, addr, ret)
	return ret
}

// Computes PRF(key, toBytes(i, 32)) into out.
func (ctx *Context) prfUint64Into(pad scratchPad, key []byte, i uint64,
	out []byte) {
	inBuf := pad.prfAddrBuf()
	encodeUint64Into(i, inBuf)
	ctx.prfInto(pad, key, inBuf, out)
}

// Returns PRF(key, toBytes(i, 32)).
func (ctx *Context) prfUint64(pad scratchPad, key []byte, i uint64) []byte {
	ret := make([]byte, ctx.p.N)
	ctx.prfUint64Into(pad, key, i, ret)
	return ret
}

// Computes the keyed message hash H_msg(key, msg) =
// hash(toBytes(2, n) || key || msg), where key must be 3N bytes.
// The message is read until EOF.
func (ctx *Context) hMsg(pad scratchPad, key []byte, msg io.Reader) (
	[]byte, Error) {
	n := ctx.p.N
	ctx.checkLength("H_msg key", key, 3*n)
	pad.hash.Reset()
	pad.hash.Write(encodeUint64(HASH_PADDING_HASH, int(n)))
	pad.hash.Write(key)
	if _, err := io.Copy(pad.hash, msg); err != nil {
		return nil, wrapErrorf(err, "Failed to read message")
	}
	ret := make([]byte, n)
	pad.hash.sumInto(ret)
	return ret, nil
}

// Computes the message digest used in signatures:
// H_msg(R || root || toBytes(idx, n), msg).
func (ctx *Context) hashMessage(pad scratchPad, msg io.Reader,
	R, root []byte, idx uint64) ([]byte, Error) {
	n := ctx.p.N
	key := make([]byte, 3*n)
	copy(key, R)
	copy(key[n:], root)
	encodeUint64Into(idx, key[2*n:])
	return ctx.hMsg(pad, key, msg)
}
