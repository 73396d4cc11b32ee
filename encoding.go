package xmss

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/bwesterb/byteswriter"
	"github.com/cespare/xxhash"
)

// Binary format of the traversal states stored in a private key.
//
// A state map is
//
//	tagStateMap  u8
//	version      u8
//	count        u32
//	count times: length u32, BDS record
//
// and a BDS record is
//
//	tagBDS       u8
//	version      u8
//	treeHeight   u32
//	k            u32
//	layer        u32
//	tree         u64
//	index        u32
//	flags        u8     (bit 0: used)
//	n            u32
//	root         node or tagNoNode
//	authPath     u32 count, nodes
//	keep         u32 count, (height u32, node)*
//	retain       u32 count, (height u32, u32 count, nodes)*
//	stack        u32 count, nodes
//	treeHashes   u32 count, treeHash*
//	checksum     u64    (xxhash of all preceding bytes of the record)
//
// where a node is tagNode u8, height u32 and n value bytes and a treeHash
// is tagTreeHash u8, targetHeight u32, height u32, nextIndex u32,
// flags u8 (bit 0: initialized, bit 1: finished) and tail node or tagNoNode.
// All integers are big endian.  Decoding accepts exactly these tags.
const (
	stateEncodingVersion = 1

	tagStateMap byte = 'M'
	tagBDS      byte = 'B'
	tagNode     byte = 'N'
	tagNoNode   byte = '0'
	tagTreeHash byte = 'T'
)

// Returns representation of signature as accepted by the reference
// implementation (without the message).
// Will never return an error.
func (sig *Signature) MarshalBinary() ([]byte, error) {
	ret := make([]byte, sig.ctx.sigBytes)
	encodeUint64Into(uint64(sig.seqNo), ret[:sig.ctx.indexBytes])
	copy(ret[sig.ctx.indexBytes:], sig.drv)
	stOff := sig.ctx.indexBytes + sig.ctx.p.N
	stLen := sig.ctx.wotsSigBytes + sig.ctx.p.N*sig.ctx.treeHeight
	for i, stSig := range sig.sigs {
		copy(ret[stOff+uint32(i)*stLen:], stSig.wotsSig)
		copy(ret[stOff+uint32(i)*stLen+sig.ctx.wotsSigBytes:], stSig.authPath)
	}
	return ret, nil
}

// Parses a signature as returned by Signature.MarshalBinary.
func (ctx *Context) SignatureFromBytes(buf []byte) (*Signature, Error) {
	if uint32(len(buf)) != ctx.sigBytes {
		return nil, errorf("Signature should be %d bytes, not %d",
			ctx.sigBytes, len(buf))
	}
	sig := Signature{
		ctx:   ctx,
		seqNo: SignatureSeqNo(decodeUint64(buf[:ctx.indexBytes])),
		sigs:  make([]subTreeSig, ctx.p.D),
	}
	sig.drv = append([]byte(nil), buf[ctx.indexBytes:ctx.indexBytes+ctx.p.N]...)
	stOff := ctx.indexBytes + ctx.p.N
	stLen := ctx.wotsSigBytes + ctx.p.N*ctx.treeHeight
	for i := uint32(0); i < ctx.p.D; i++ {
		stBuf := buf[stOff+i*stLen : stOff+(i+1)*stLen]
		sig.sigs[i] = subTreeSig{
			wotsSig:  append([]byte(nil), stBuf[:ctx.wotsSigBytes]...),
			authPath: append([]byte(nil), stBuf[ctx.wotsSigBytes:]...),
		}
	}
	return &sig, nil
}

// Returns representation of the public key: root || pubSeed.
// Will never return an error.
func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	ret := make([]byte, pk.ctx.pkBytes)
	copy(ret, pk.root)
	copy(ret[pk.ctx.p.N:], pk.pubSeed)
	return ret, nil
}

// Parses a public key as returned by PublicKey.MarshalBinary.
func (ctx *Context) PublicKeyFromBytes(buf []byte) (*PublicKey, Error) {
	if uint32(len(buf)) != ctx.pkBytes {
		return nil, errorf("Public key should be %d bytes, not %d",
			ctx.pkBytes, len(buf))
	}
	n := ctx.p.N
	return &PublicKey{
		ctx:     ctx,
		root:    append([]byte(nil), buf[:n]...),
		pubSeed: append([]byte(nil), buf[n:2*n]...),
	}, nil
}

// Returns representation of the private key including its traversal
// states: index || skSeed || skPrf || pubSeed || root || states.
func (sk *PrivateKey) MarshalBinary() ([]byte, error) {
	ctx := sk.ctx
	n := ctx.p.N
	states := sk.encodeStates()
	ret := make([]byte, ctx.indexBytes+4*n+uint32(len(states)))
	encodeUint64Into(uint64(sk.seqNo), ret[:ctx.indexBytes])
	off := ctx.indexBytes
	for _, part := range [][]byte{sk.skSeed, sk.skPrf, sk.pubSeed, sk.root} {
		copy(ret[off:off+n], part)
		off += n
	}
	copy(ret[off:], states)
	return ret, nil
}

// Parses a private key as returned by PrivateKey.MarshalBinary and checks
// that its traversal states belong to its index.
func (ctx *Context) PrivateKeyFromBytes(buf []byte) (*PrivateKey, Error) {
	n := ctx.p.N
	if uint32(len(buf)) < ctx.indexBytes+4*n {
		return nil, wrapErrorf(ErrInvalidState,
			"Private key too short (%d bytes)", len(buf))
	}
	seqNo := SignatureSeqNo(decodeUint64(buf[:ctx.indexBytes]))
	if uint64(seqNo) > ctx.p.MaxSignatureSeqNo()+1 {
		return nil, wrapErrorf(ErrInvalidState,
			"Private key index %d out of range", seqNo)
	}
	off := ctx.indexBytes
	field := func() []byte {
		ret := append([]byte(nil), buf[off:off+n]...)
		off += n
		return ret
	}
	sk := &PrivateKey{ctx: ctx, seqNo: seqNo}
	sk.skSeed = field()
	sk.skPrf = field()
	sk.pubSeed = field()
	sk.root = field()

	var err Error
	sk.states, err = ctx.decodeStates(buf[off:])
	if err != nil {
		return nil, err
	}
	if err = sk.checkStates(); err != nil {
		return nil, err
	}
	return sk, nil
}

// Checks whether the traversal states match the index of the private key.
func (sk *PrivateKey) checkStates() Error {
	ctx := sk.ctx
	seqNo := sk.seqNo
	if sk.exhausted() {
		seqNo = SignatureSeqNo(ctx.p.MaxSignatureSeqNo())
	}
	staPath, leafs := ctx.subTreePathForSeqNo(seqNo)
	for layer, sta := range staPath {
		state, ok := sk.states[sta]
		if !ok {
			return wrapErrorf(ErrInvalidState,
				"Missing traversal state for subtree %v", sta)
		}
		if sk.exhausted() {
			if !state.exhausted() || !state.used {
				return wrapErrorf(ErrInvalidState,
					"Exhausted private key with unused subtree %v", sta)
			}
			continue
		}
		if state.index != leafs[layer] {
			return wrapErrorf(ErrInvalidState,
				"Subtree %v is at leaf %d instead of %d",
				sta, state.index, leafs[layer])
		}
	}
	if !sk.exhausted() {
		top := sk.states[staPath[len(staPath)-1]]
		if string(top.root.value) != string(sk.root) {
			return wrapErrorf(ErrInvalidState,
				"Root of the top subtree does not match the public key")
		}
	}
	return nil
}

// Writes big endian integers and nodes to an io.Writer, remembering the
// first error.
type stateWriter struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (sw *stateWriter) write(buf []byte) {
	if sw.err != nil {
		return
	}
	_, sw.err = sw.w.Write(buf)
}

func (sw *stateWriter) u8(x byte) {
	sw.buf[0] = x
	sw.write(sw.buf[:1])
}

func (sw *stateWriter) u32(x uint32) {
	binary.BigEndian.PutUint32(sw.buf[:4], x)
	sw.write(sw.buf[:4])
}

func (sw *stateWriter) u64(x uint64) {
	binary.BigEndian.PutUint64(sw.buf[:8], x)
	sw.write(sw.buf[:8])
}

func (sw *stateWriter) node(n Node) {
	sw.u8(tagNode)
	sw.u32(n.height)
	sw.write(n.value)
}

func (sw *stateWriter) maybeNode(n *Node) {
	if n == nil || n.value == nil {
		sw.u8(tagNoNode)
		return
	}
	sw.node(*n)
}

// Returns the keys of a map keyed by height in increasing order.
func sortedHeights[V any](m map[uint32]V) []uint32 {
	ret := make([]uint32, 0, len(m))
	for height := range m {
		ret = append(ret, height)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Size of the encoding of a node carrying n bytes.
func encodedNodeSize(n uint32) int {
	return 1 + 4 + int(n)
}

func encodedMaybeNodeSize(node *Node, n uint32) int {
	if node == nil || node.value == nil {
		return 1
	}
	return encodedNodeSize(n)
}

// Returns the size of the record written by encode.
func (b *bds) encodedSize(n uint32) int {
	nodeSize := encodedNodeSize(n)
	ret := 1 + 1 + 4 + 4 + 4 + 8 + 4 + 1 + 4
	ret += encodedMaybeNodeSize(&b.root, n)
	ret += 4 + len(b.authPath)*nodeSize
	ret += 4 + len(b.keep)*(4+nodeSize)
	ret += 4
	for _, queue := range b.retain {
		ret += 4 + 4 + len(queue)*nodeSize
	}
	ret += 4 + len(b.stack)*nodeSize
	ret += 4
	for _, th := range b.treeHashes {
		ret += 1 + 4 + 4 + 4 + 1 + encodedMaybeNodeSize(th.tail, n)
	}
	return ret + 8
}

// Returns the binary encoding of the traversal state.
func (b *bds) encode(n uint32) []byte {
	buf := make([]byte, b.encodedSize(n))
	sw := stateWriter{w: byteswriter.NewWriter(buf)}

	sw.u8(tagBDS)
	sw.u8(stateEncodingVersion)
	sw.u32(b.treeHeight)
	sw.u32(b.k)
	sw.u32(b.sta.Layer)
	sw.u64(b.sta.Tree)
	sw.u32(b.index)
	var flags byte
	if b.used {
		flags |= 1
	}
	sw.u8(flags)
	sw.u32(n)
	sw.maybeNode(&b.root)

	sw.u32(uint32(len(b.authPath)))
	for _, node := range b.authPath {
		sw.node(node)
	}

	sw.u32(uint32(len(b.keep)))
	for _, height := range sortedHeights(b.keep) {
		sw.u32(height)
		sw.node(b.keep[height])
	}

	sw.u32(uint32(len(b.retain)))
	for _, height := range sortedHeights(b.retain) {
		sw.u32(height)
		sw.u32(uint32(len(b.retain[height])))
		for _, node := range b.retain[height] {
			sw.node(node)
		}
	}

	sw.u32(uint32(len(b.stack)))
	for _, node := range b.stack {
		sw.node(node)
	}

	sw.u32(uint32(len(b.treeHashes)))
	for _, th := range b.treeHashes {
		sw.u8(tagTreeHash)
		sw.u32(th.targetHeight)
		sw.u32(th.height)
		sw.u32(th.nextIndex)
		flags = 0
		if th.initialized {
			flags |= 1
		}
		if th.finished {
			flags |= 2
		}
		sw.u8(flags)
		sw.maybeNode(th.tail)
	}

	sw.u64(xxhash.Sum64(buf[:len(buf)-8]))
	if sw.err != nil {
		panic(fmt.Sprintf("encoding traversal state: %v", sw.err))
	}
	return buf
}

// Returns the encoding of the traversal states of the private key.
func (sk *PrivateKey) encodeStates() []byte {
	stas := make([]SubTreeAddress, 0, len(sk.states))
	for sta := range sk.states {
		stas = append(stas, sta)
	}
	sort.Slice(stas, func(i, j int) bool {
		return stas[i].Layer < stas[j].Layer
	})
	records := make([][]byte, len(stas))
	size := 1 + 1 + 4
	for i, sta := range stas {
		records[i] = sk.states[sta].encode(sk.ctx.p.N)
		size += 4 + len(records[i])
	}

	buf := make([]byte, size)
	sw := stateWriter{w: byteswriter.NewWriter(buf)}
	sw.u8(tagStateMap)
	sw.u8(stateEncodingVersion)
	sw.u32(uint32(len(records)))
	for _, record := range records {
		sw.u32(uint32(len(record)))
		sw.write(record)
	}
	if sw.err != nil {
		panic(fmt.Sprintf("encoding traversal states: %v", sw.err))
	}
	return buf
}

// Reads big endian integers and nodes from a buffer.  The first problem
// encountered is kept in err; afterwards all reads return zero values.
type stateReader struct {
	buf []byte
	off int
	err error
}

func (sr *stateReader) fail(format string, a ...interface{}) {
	if sr.err == nil {
		sr.err = fmt.Errorf(format, a...)
	}
}

func (sr *stateReader) take(l int) []byte {
	if sr.err != nil {
		return nil
	}
	if l < 0 || len(sr.buf)-sr.off < l {
		sr.fail("unexpected end of data at offset %d", sr.off)
		return nil
	}
	ret := sr.buf[sr.off : sr.off+l]
	sr.off += l
	return ret
}

func (sr *stateReader) u8() byte {
	buf := sr.take(1)
	if buf == nil {
		return 0
	}
	return buf[0]
}

func (sr *stateReader) u32() uint32 {
	buf := sr.take(4)
	if buf == nil {
		return 0
	}
	return binary.BigEndian.Uint32(buf)
}

func (sr *stateReader) u64() uint64 {
	buf := sr.take(8)
	if buf == nil {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}

func (sr *stateReader) expect(tag byte) {
	if got := sr.u8(); sr.err == nil && got != tag {
		sr.fail("expected tag %q at offset %d, got %q", tag, sr.off-1, got)
	}
}

// Reads a count and checks that it does not exceed max.
func (sr *stateReader) count(max uint32, what string) uint32 {
	ret := sr.u32()
	if ret > max {
		sr.fail("too many %s: %d > %d", what, ret, max)
		return 0
	}
	return ret
}

// Reads a node of the given height and value size.
func (sr *stateReader) node(n, height uint32) Node {
	sr.expect(tagNode)
	gotHeight := sr.u32()
	value := sr.take(int(n))
	if sr.err != nil {
		return Node{}
	}
	if gotHeight != height {
		sr.fail("node has height %d instead of %d", gotHeight, height)
		return Node{}
	}
	return newNode(height, value)
}

// Reads a node, or the absence of one, with height at most maxHeight.
func (sr *stateReader) maybeNode(n, maxHeight uint32) *Node {
	if sr.err != nil {
		return nil
	}
	switch tag := sr.u8(); tag {
	case tagNoNode:
		return nil
	case tagNode:
		sr.off--
		height := sr.u32At(sr.off + 1)
		if height > maxHeight {
			sr.fail("node height %d exceeds %d", height, maxHeight)
			return nil
		}
		ret := sr.node(n, height)
		return &ret
	default:
		sr.fail("unexpected tag %q at offset %d", tag, sr.off-1)
		return nil
	}
}

// Peeks at the u32 at the given offset.
func (sr *stateReader) u32At(off int) uint32 {
	if off+4 > len(sr.buf) {
		return math.MaxUint32
	}
	return binary.BigEndian.Uint32(sr.buf[off : off+4])
}

// Parses a traversal state record of this context.
func (ctx *Context) decodeBDS(buf []byte) (*bds, Error) {
	if len(buf) < 8 {
		return nil, wrapErrorf(ErrInvalidState, "Traversal state too short")
	}
	body := buf[:len(buf)-8]
	if xxhash.Sum64(body) != binary.BigEndian.Uint64(buf[len(buf)-8:]) {
		return nil, wrapErrorf(ErrInvalidState,
			"Traversal state checksum mismatch")
	}

	b, err := ctx.readBDS(&stateReader{buf: body})
	if err != nil {
		return nil, wrapErrorf(ErrInvalidState, "Traversal state: %v", err)
	}
	return b, nil
}

func (ctx *Context) readBDS(sr *stateReader) (*bds, error) {
	h, k, n := ctx.treeHeight, ctx.bdsK, ctx.p.N
	var leafCount uint32 = 1 << h

	sr.expect(tagBDS)
	if version := sr.u8(); sr.err == nil && version != stateEncodingVersion {
		sr.fail("unsupported version %d", version)
	}
	if gotH, gotK := sr.u32(), sr.u32(); sr.err == nil && (gotH != h || gotK != k) {
		sr.fail("parameters h=%d k=%d do not match h=%d k=%d", gotH, gotK, h, k)
	}
	sta := SubTreeAddress{Layer: sr.u32(), Tree: sr.u64()}
	index := sr.u32()
	flags := sr.u8()
	gotN := sr.u32()
	if sr.err != nil {
		return nil, sr.err
	}
	if sta.Layer >= ctx.p.D {
		return nil, fmt.Errorf("layer %d out of range", sta.Layer)
	}
	if index > leafCount {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	if flags&^1 != 0 {
		return nil, fmt.Errorf("unknown flags %x", flags)
	}
	if gotN != n {
		return nil, fmt.Errorf("node size %d instead of %d", gotN, n)
	}

	b := ctx.newBDS(sta)
	b.index = index
	b.used = flags&1 == 1

	if root := sr.maybeNode(n, h); root != nil {
		b.root = *root
	}

	authLen := sr.count(h, "authentication path nodes")
	for height := uint32(0); height < authLen; height++ {
		b.authPath = append(b.authPath, sr.node(n, height))
	}

	keepLen := sr.count(h, "kept nodes")
	for i := uint32(0); i < keepLen && sr.err == nil; i++ {
		height := sr.u32()
		if height+1 >= h {
			sr.fail("kept node on height %d", height)
		}
		b.keep[height] = sr.node(n, height)
	}

	retainLen := sr.count(k, "retain queues")
	for i := uint32(0); i < retainLen && sr.err == nil; i++ {
		height := sr.u32()
		if height+k < h || height+2 > h {
			sr.fail("retain queue on height %d", height)
			break
		}
		queueLen := sr.count(leafCount>>(height+1), "retained nodes")
		for j := uint32(0); j < queueLen; j++ {
			b.retain[height] = append(b.retain[height], sr.node(n, height))
		}
	}

	stackLen := sr.count(h, "stack nodes")
	for i := uint32(0); i < stackLen && sr.err == nil; i++ {
		height := sr.u32At(sr.off + 1)
		if height >= h-k {
			sr.fail("stack node on height %d", height)
			break
		}
		b.stack = append(b.stack, sr.node(n, height))
	}

	if thLen := sr.u32(); sr.err == nil && thLen != h-k {
		sr.fail("%d treehash instances instead of %d", thLen, h-k)
	}
	for i := uint32(0); i < h-k && sr.err == nil; i++ {
		sr.expect(tagTreeHash)
		th := b.treeHashes[i]
		if target := sr.u32(); sr.err == nil && target != i {
			sr.fail("treehash %d has target height %d", i, target)
		}
		th.height = sr.u32()
		th.nextIndex = sr.u32()
		thFlags := sr.u8()
		th.tail = sr.maybeNode(n, i)
		if sr.err != nil {
			break
		}
		if th.height > i || th.nextIndex >= leafCount || thFlags&^3 != 0 {
			sr.fail("invalid treehash %d", i)
		}
		th.initialized = thFlags&1 == 1
		th.finished = thFlags&2 == 2
	}

	if sr.err != nil {
		return nil, sr.err
	}
	if sr.off != len(sr.buf) {
		return nil, fmt.Errorf("%d trailing bytes", len(sr.buf)-sr.off)
	}

	if index == leafCount {
		if !b.used || len(b.authPath) != 0 {
			return nil, fmt.Errorf("exhausted state with authentication path")
		}
		b.authPath = nil
	} else if b.root.value == nil || uint32(len(b.authPath)) != h {
		return nil, fmt.Errorf("incomplete state for leaf %d", index)
	}
	return b, nil
}

// Parses the traversal states of a private key.
func (ctx *Context) decodeStates(buf []byte) (map[SubTreeAddress]*bds, Error) {
	sr := &stateReader{buf: buf}
	sr.expect(tagStateMap)
	if version := sr.u8(); sr.err == nil && version != stateEncodingVersion {
		sr.fail("unsupported version %d", version)
	}
	count := sr.count(ctx.p.D, "traversal states")
	if sr.err == nil && count != ctx.p.D {
		sr.fail("%d traversal states instead of %d", count, ctx.p.D)
	}
	if sr.err != nil {
		return nil, wrapErrorf(ErrInvalidState, "Traversal states: %v", sr.err)
	}

	ret := make(map[SubTreeAddress]*bds, count)
	for i := uint32(0); i < count; i++ {
		length := sr.u32()
		record := sr.take(int(length))
		if sr.err != nil {
			return nil, wrapErrorf(ErrInvalidState,
				"Traversal states: %v", sr.err)
		}
		b, err := ctx.decodeBDS(record)
		if err != nil {
			return nil, err
		}
		if _, ok := ret[b.sta]; ok {
			return nil, wrapErrorf(ErrInvalidState,
				"Duplicate traversal state for subtree %v", b.sta)
		}
		ret[b.sta] = b
	}
	if sr.off != len(buf) {
		return nil, wrapErrorf(ErrInvalidState,
			"Traversal states: %d trailing bytes", len(buf)-sr.off)
	}
	return ret, nil
}
