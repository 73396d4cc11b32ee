package xmss

import (
	"encoding/binary"
	"fmt"
)

const (
	ADDR_TYPE_OTS      = 0
	ADDR_TYPE_LTREE    = 1
	ADDR_TYPE_HASHTREE = 2
)

// Address used in XMSS[MT] to diversify the hashes.  See eg prfAddrInto().
//
// Addresses are values: the with* methods return an updated copy and
// never change the receiver.  The meaning of the three type-specific
// words depends on the type:
//
//	OTS        ots index,  chain index,  hash index
//	L-tree     ltree index, tree height, tree index
//	hash tree  padding (0), tree height, tree index
type address struct {
	layer      uint32
	tree       uint64
	typ        uint32
	words      [3]uint32
	keyAndMask uint32
}

// Represents the position of a subtree in the full XMSSMT tree.
type SubTreeAddress struct {
	// The height of the subtree.  The leaf-subtrees have layer=0
	Layer uint32

	// The offset in the subtree.  The leftmost subtrees have tree=0
	Tree uint64
}

func (sta SubTreeAddress) String() string {
	return fmt.Sprintf("(layer %d, tree %d)", sta.Layer, sta.Tree)
}

// Returns the address of the OTS keypair with the given index in this subtree.
func (sta SubTreeAddress) otsAddress(ots uint32) address {
	return address{layer: sta.Layer, tree: sta.Tree, typ: ADDR_TYPE_OTS,
		words: [3]uint32{ots, 0, 0}}
}

// Returns the address of the L-tree compressing the given OTS public key.
func (sta SubTreeAddress) lTreeAddress(ltree uint32) address {
	return address{layer: sta.Layer, tree: sta.Tree, typ: ADDR_TYPE_LTREE,
		words: [3]uint32{ltree, 0, 0}}
}

// Returns the address of the hash tree of this subtree.
func (sta SubTreeAddress) hashTreeAddress() address {
	return address{layer: sta.Layer, tree: sta.Tree, typ: ADDR_TYPE_HASHTREE}
}

// Returns the subtree this address points into.
func (addr address) subTree() SubTreeAddress {
	return SubTreeAddress{Layer: addr.layer, Tree: addr.tree}
}

func (addr address) withKeyAndMask(keyAndMask uint32) address {
	addr.keyAndMask = keyAndMask
	return addr
}

func (addr address) withOTS(ots uint32) address {
	addr.words[0] = ots
	return addr
}

func (addr address) withChain(chain uint32) address {
	addr.words[1] = chain
	return addr
}

func (addr address) withHash(hash uint32) address {
	addr.words[2] = hash
	return addr
}

func (addr address) withTreeHeight(treeHeight uint32) address {
	addr.words[1] = treeHeight
	return addr
}

func (addr address) withTreeIndex(treeIndex uint32) address {
	addr.words[2] = treeIndex
	return addr
}

// Writes the 32 byte big endian encoding of the address into buf.
func (addr address) writeInto(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], addr.layer)
	binary.BigEndian.PutUint64(buf[4:12], addr.tree)
	binary.BigEndian.PutUint32(buf[12:16], addr.typ)
	binary.BigEndian.PutUint32(buf[16:20], addr.words[0])
	binary.BigEndian.PutUint32(buf[20:24], addr.words[1])
	binary.BigEndian.PutUint32(buf[24:28], addr.words[2])
	binary.BigEndian.PutUint32(buf[28:32], addr.keyAndMask)
}

// Returns the 32 byte big endian encoding of the address.
func (addr address) toBytes() []byte {
	ret := make([]byte, 32)
	addr.writeInto(ret)
	return ret
}
