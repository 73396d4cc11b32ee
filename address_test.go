package xmss

import (
	"encoding/hex"
	"testing"
)

// Returns the address with the given eight 32-bit words, in the order of
// their encoding.
func addressFromWords(words [8]uint32) address {
	return address{
		layer:      words[0],
		tree:       uint64(words[1])<<32 | uint64(words[2]),
		typ:        words[3],
		words:      [3]uint32{words[4], words[5], words[6]},
		keyAndMask: words[7],
	}
}

func TestAddressEncoding(t *testing.T) {
	addr := addressFromWords([8]uint32{1, 2, 3, 4, 5, 6, 7, 8})
	val := hex.EncodeToString(addr.toBytes())
	expect := "00000001" + "00000002" + "00000003" + "00000004" +
		"00000005" + "00000006" + "00000007" + "00000008"
	if val != expect {
		t.Fatalf("address encodes to %s instead of %s", val, expect)
	}
}

func TestAddressSettersReturnCopies(t *testing.T) {
	sta := SubTreeAddress{Layer: 2, Tree: 0x0102030405}
	base := sta.otsAddress(7)
	chain := base.withChain(3).withHash(9).withKeyAndMask(1)

	if base.words != [3]uint32{7, 0, 0} || base.keyAndMask != 0 {
		t.Fatalf("setters modified the original address: %+v", base)
	}
	if chain.words != [3]uint32{7, 3, 9} || chain.keyAndMask != 1 {
		t.Fatalf("unexpected address %+v", chain)
	}
	if chain.subTree() != sta {
		t.Fatalf("subTree() is %v instead of %v", chain.subTree(), sta)
	}
}

func TestSubTreeAddressTypes(t *testing.T) {
	sta := SubTreeAddress{Layer: 1, Tree: 5}
	lt := sta.lTreeAddress(3).withTreeHeight(2).withTreeIndex(1)
	if lt.typ != ADDR_TYPE_LTREE || lt.words != [3]uint32{3, 2, 1} {
		t.Fatalf("unexpected L-tree address %+v", lt)
	}
	ht := sta.hashTreeAddress().withTreeHeight(4).withTreeIndex(6)
	if ht.typ != ADDR_TYPE_HASHTREE || ht.words != [3]uint32{0, 4, 6} {
		t.Fatalf("unexpected hash tree address %+v", ht)
	}
	buf := ht.toBytes()
	if buf[3] != 1 || buf[11] != 5 || buf[15] != ADDR_TYPE_HASHTREE {
		t.Fatalf("unexpected encoding %x", buf)
	}
	if sta.otsAddress(0).typ != ADDR_TYPE_OTS {
		t.Fatalf("OTS address has wrong type")
	}
}
