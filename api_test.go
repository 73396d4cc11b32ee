package xmss

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// For testing we use the following XMSSMT-SHA2_60/12_256 keypair,
// formatted as accepted by the core functions of the reference implementation
//    pk: ac655131aacd5dd041b093c7dcadd70269f8cdd6afddd4dbc52d1628f5087cb45335890d5d174a65c2bb19eb301ae9c3201842c4d710a3f820fc735860646a51
//    sk: 0000000000000000b9fcdb4826ceef80b10245650bdea01b5672f5695249b04a95abf2d33363d465f01cfb56df61b7e0a2f3d7fd6bc2b4f8426404f610192f06cce1b37ac9033d515335890d5d174a65c2bb19eb301ae9c3201842c4d710a3f820fc735860646a51ac655131aacd5dd041b093c7dcadd70269f8cdd6afddd4dbc52d1628f5087cb4

func TestDeriveSignVerify(t *testing.T) {
	SetLogger(t)
	defer SetLogger(nil)

	msg := []byte("test message")
	ctx := NewContextFromName("XMSSMT-SHA2_60/12_256")
	pubSeed := []byte{83, 53, 137, 13, 93, 23, 74, 101, 194, 187, 25, 235,
		48, 26, 233, 195, 32, 24, 66, 196, 215, 16, 163, 248, 32, 252, 115,
		88, 96, 100, 106, 81}
	skSeed := []byte{185, 252, 219, 72, 38, 206, 239, 128, 177, 2, 69, 101,
		11, 222, 160, 27, 86, 114, 245, 105, 82, 73, 176, 74, 149, 171, 242,
		211, 51, 99, 212, 101}
	skPrf := []byte{240, 28, 251, 86, 223, 97, 183, 224, 162, 243, 215, 253,
		107, 194, 180, 248, 66, 100, 4, 246, 16, 25, 47, 6, 204, 225, 179,
		122, 201, 3, 61, 81}
	sk, pk, err := ctx.Derive(pubSeed, skSeed, skPrf)
	if err != nil {
		t.Fatalf("Derive(): %v", err)
	}
	if !bytes.Equal([]byte{172, 101, 81, 49, 170, 205, 93, 208, 65, 176, 147,
		199, 220, 173, 215, 2, 105, 248, 205, 214, 175, 221, 212,
		219, 197, 45, 22, 40, 245, 8, 124, 180},
		sk.root) {
		t.Fatalf("Derive(): generated incorrect root")
	}
	sig, sk2, err := sk.Sign(msg)
	if err != nil {
		t.Fatalf("Sign(): %v", err)
	}
	sigBytes, _ := sig.MarshalBinary()
	valHash := sha256.Sum256(sigBytes)
	if hex.EncodeToString(valHash[:]) != "43d9769c0e51000137db4cb4c62cafd43b09dfec7f96a70636c959f020f28541" {
		t.Fatalf("Wrong signature")
	}

	sigOk, err := pk.Verify(sig, msg)
	if !sigOk {
		t.Fatalf("Verifying signature failed: %v", err)
	}

	sigOk, _ = pk.Verify(sig, []byte("wrong message"))
	if sigOk {
		t.Fatalf("Verifying signature did not fail")
	}

	if _, err = sk.Skip(1); !errors.Is(err, ErrStateUsed) {
		t.Fatalf("Skip() on a used key returned %v", err)
	}

	sk3, err := sk2.Skip(0x26ba0043f46012f - 1)
	if err != nil {
		t.Fatalf("Skip(): %v", err)
	}
	if sk3.SeqNo() != 0x26ba0043f46012f {
		t.Fatalf("Skip() went to %d", sk3.SeqNo())
	}
	sig, _, err = sk3.Sign(msg)
	if err != nil {
		t.Fatalf("Sign(): %v", err)
	}
	sigBytes, _ = sig.MarshalBinary()

	valHash = sha256.Sum256(sigBytes)
	if hex.EncodeToString(valHash[:]) != "3477655201e7ec8d233e0169798cc00e294b19ff0419bf7a4ee28c526f2da6e5" {
		t.Fatalf("Wrong signature")
	}

	sigOk, err = pk.Verify(sig, msg)
	if !sigOk {
		t.Fatalf("Verifying signature failed: %v", err)
	}

	sig2, err := ctx.SignatureFromBytes(sigBytes)
	if err != nil {
		t.Fatalf("SignatureFromBytes(): %v", err)
	}
	sigOk, err = pk.Verify(sig2, msg)
	if !sigOk {
		t.Fatalf("Verifying unmarshaled signature failed: %v", err)
	}

	pkBytes, _ := pk.MarshalBinary()
	if hex.EncodeToString(pkBytes) != "ac655131aacd5dd041b093c7dcadd70269f8cdd6afddd4dbc52d1628f5087cb45335890d5d174a65c2bb19eb301ae9c3201842c4d710a3f820fc735860646a51" {
		t.Fatalf("Wrong public key encoding %x", pkBytes)
	}
	pk2, err := ctx.PublicKeyFromBytes(pkBytes)
	if err != nil {
		t.Fatalf("PublicKeyFromBytes(): %v", err)
	}
	sigOk, err = pk2.Verify(sig, msg)
	if !sigOk {
		t.Fatalf("Verifying signature with unmarshaled PublicKey failed: %v", err)
	}
}

// Key generation, signing, reuse and reload for XMSS-SHA2_10_256 with
// seeds of all zeroes, ones and twos.
func TestFixedSeedsScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a tree of 1024 leafs")
	}
	ctx := NewContextFromName("XMSS-SHA2_10_256")
	skSeed := bytes.Repeat([]byte{0}, 32)
	skPrf := bytes.Repeat([]byte{1}, 32)
	pubSeed := bytes.Repeat([]byte{2}, 32)
	sk, pk, err := ctx.Derive(pubSeed, skSeed, skPrf)
	if err != nil {
		t.Fatalf("Derive(): %v", err)
	}
	expectRoot := "e88ef9eea6760e90e3fa3921b0f99d9315cb382d0242a18a587aca969dae9934"
	if root := hex.EncodeToString(pk.root); root != expectRoot {
		t.Fatalf("root is %s instead of %s", root, expectRoot)
	}

	sig, next, err := sk.Sign([]byte("test"))
	if err != nil {
		t.Fatalf("Sign(): %v", err)
	}
	if sig.SeqNo() != 0 {
		t.Fatalf("first signature has index %d", sig.SeqNo())
	}
	if ok, err := pk.Verify(sig, []byte("test")); !ok {
		t.Fatalf("Verify(): %v", err)
	}

	if _, _, err = sk.Sign([]byte("test")); !errors.Is(err, ErrStateUsed) {
		t.Fatalf("signing twice with the same key returned %v", err)
	}

	buf, _ := next.MarshalBinary()
	reloaded, err := ctx.PrivateKeyFromBytes(buf)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes(): %v", err)
	}
	sig, _, err = reloaded.Sign([]byte("test"))
	if err != nil {
		t.Fatalf("Sign() after reload: %v", err)
	}
	if sig.SeqNo() != 1 {
		t.Fatalf("second signature has index %d", sig.SeqNo())
	}

	pkBuf, _ := pk.MarshalBinary()
	pk2, _ := ctx.PublicKeyFromBytes(pkBuf)
	if ok, err := pk2.Verify(sig, []byte("test")); !ok {
		t.Fatalf("Verify() of second signature: %v", err)
	}
}

// Signs every index of a small key, checking each signature and the
// authentication path against a full tree.
func testSignAll(ctx *Context, t *testing.T) {
	pubSeed, skSeed, skPrf := testSeeds(ctx.p.N)
	sk, pk, err := ctx.Derive(pubSeed, skSeed, skPrf)
	if err != nil {
		t.Fatalf("Derive(): %v", err)
	}

	var levels [][]Node
	if !ctx.MT() {
		levels = fullMerkleTree(ctx, skSeed, pubSeed, SubTreeAddress{})
		if !bytes.Equal(levels[ctx.treeHeight][0].value, pk.root) {
			t.Fatalf("root differs from full tree")
		}
	}

	total := ctx.p.MaxSignatureSeqNo() + 1
	for i := uint64(0); i < total; i++ {
		if sk.SignaturesRemaining() != total-i {
			t.Fatalf("%d signatures remaining instead of %d",
				sk.SignaturesRemaining(), total-i)
		}
		if levels != nil {
			want := authPathFromTree(levels, uint32(i))
			if diff := cmp.Diff(want, sk.AuthPath(), nodeComparer); diff != "" {
				t.Fatalf("index %d: auth path differs (-want +got):\n%s", i, diff)
			}
		}
		msg := []byte{byte(i), byte(i >> 8)}
		sig, next, err := sk.Sign(msg)
		if err != nil {
			t.Fatalf("Sign() at %d: %v", i, err)
		}
		if uint64(sig.SeqNo()) != i {
			t.Fatalf("signature %d has index %d", i, sig.SeqNo())
		}
		buf, _ := sig.MarshalBinary()
		sig2, err := ctx.SignatureFromBytes(buf)
		if err != nil {
			t.Fatalf("SignatureFromBytes(): %v", err)
		}
		if ok, err := pk.Verify(sig2, msg); !ok {
			t.Fatalf("signature %d does not verify: %v", i, err)
		}
		if !sk.Used() {
			t.Fatalf("key %d not marked used after signing", i)
		}
		sk = next
	}

	if sk.SignaturesRemaining() != 0 || sk.AuthPath() != nil {
		t.Fatalf("exhausted key should have no signatures left")
	}
	if _, _, err = sk.Sign([]byte("one too many")); !errors.Is(err, ErrKeyExhausted) {
		t.Fatalf("Sign() on exhausted key returned %v", err)
	}

	buf, _ := sk.MarshalBinary()
	sk2, err := ctx.PrivateKeyFromBytes(buf)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() of exhausted key: %v", err)
	}
	if _, _, err = sk2.Sign([]byte("still too many")); !errors.Is(err, ErrKeyExhausted) {
		t.Fatalf("Sign() on reloaded exhausted key returned %v", err)
	}
}

func TestSignAllSmallTrees(t *testing.T) {
	for h := uint32(2); h <= 6; h++ {
		testSignAll(smallTreeContext(t, h), t)
	}
}

func TestSignAllMT(t *testing.T) {
	for _, params := range []Params{
		{Func: SHA2, N: 32, FullHeight: 6, D: 3, WotsW: 16},
		{Func: SHAKE, N: 32, FullHeight: 6, D: 2, WotsW: 16},
	} {
		ctx, err := NewContext(params)
		if err != nil {
			t.Fatalf("NewContext(): %v", err)
		}
		testSignAll(ctx, t)
	}
}

func TestSkipMatchesSigning(t *testing.T) {
	ctx, err := NewContext(Params{Func: SHA2, N: 32, FullHeight: 8, D: 2,
		WotsW: 16})
	if err != nil {
		t.Fatalf("NewContext(): %v", err)
	}
	pubSeed, skSeed, skPrf := testSeeds(ctx.p.N)
	sk, _, err := ctx.Derive(pubSeed, skSeed, skPrf)
	if err != nil {
		t.Fatalf("Derive(): %v", err)
	}
	start, _, err := ctx.Derive(pubSeed, skSeed, skPrf)
	if err != nil {
		t.Fatalf("Derive(): %v", err)
	}

	for _, target := range []uint64{1, 15, 16, 17, 100} {
		for uint64(sk.SeqNo()) < target {
			var err Error
			_, sk, err = sk.Sign([]byte("msg"))
			if err != nil {
				t.Fatalf("Sign(): %v", err)
			}
		}
		fresh, err := ctx.PrivateKeyFromBytes(mustMarshal(t, start))
		if err != nil {
			t.Fatalf("PrivateKeyFromBytes(): %v", err)
		}
		skipped, err := fresh.Skip(target)
		if err != nil {
			t.Fatalf("Skip(%d): %v", target, err)
		}
		if diff := cmp.Diff(mustMarshal(t, sk), mustMarshal(t, skipped)); diff != "" {
			t.Fatalf("Skip(%d) differs from signing:\n%s", target, diff)
		}
		if !fresh.Used() {
			t.Fatalf("Skip() did not mark the key used")
		}
	}

	if _, err := sk.Skip(sk.SignaturesRemaining() + 1); !errors.Is(err, ErrKeyExhausted) {
		t.Fatalf("Skip() past the end returned %v", err)
	}
	last, err := sk.Skip(sk.SignaturesRemaining())
	if err != nil {
		t.Fatalf("Skip() to the end: %v", err)
	}
	if last.SignaturesRemaining() != 0 {
		t.Fatalf("key should be exhausted")
	}
	if _, _, err = last.Sign(nil); !errors.Is(err, ErrKeyExhausted) {
		t.Fatalf("Sign() after skipping to the end returned %v", err)
	}
	if _, err = last.Skip(1); !errors.Is(err, ErrKeyExhausted) {
		t.Fatalf("Skip() on an exhausted key returned %v", err)
	}
}

func mustMarshal(t *testing.T, sk *PrivateKey) []byte {
	buf, err := sk.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary(): %v", err)
	}
	return buf
}

func TestTamperedSignature(t *testing.T) {
	ctx, _ := NewContext(Params{Func: SHAKE, N: 32, FullHeight: 4, D: 2,
		WotsW: 16})
	sk, pk, err := ctx.GenerateKey(rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("GenerateKey(): %v", err)
	}
	msg := []byte("attack at dawn")
	sk, _ = sk.Skip(5)
	sig, _, err := sk.Sign(msg)
	if err != nil {
		t.Fatalf("Sign(): %v", err)
	}
	buf, _ := sig.MarshalBinary()

	n := int(ctx.p.N)
	wotsLen := int(ctx.wotsSigBytes)
	positions := map[string]int{
		"index":           0,
		"R":               int(ctx.indexBytes),
		"WOTS+ signature": int(ctx.indexBytes) + n + 7,
		"auth path":       int(ctx.indexBytes) + n + wotsLen + 1,
		"upper layer":     len(buf) - 1,
	}
	for what, pos := range positions {
		tampered := append([]byte(nil), buf...)
		tampered[pos] ^= 0x10
		sig2, err := ctx.SignatureFromBytes(tampered)
		if err != nil {
			t.Fatalf("SignatureFromBytes(): %v", err)
		}
		if ok, _ := pk.Verify(sig2, msg); ok {
			t.Errorf("signature with tampered %s verifies", what)
		}
	}

	pkBuf, _ := pk.MarshalBinary()
	for _, pos := range []int{0, n} {
		tampered := append([]byte(nil), pkBuf...)
		tampered[pos] ^= 1
		pk2, _ := ctx.PublicKeyFromBytes(tampered)
		if ok, _ := pk2.Verify(sig, msg); ok {
			t.Errorf("signature verifies under tampered public key")
		}
	}

	if _, err = ctx.SignatureFromBytes(buf[1:]); err == nil {
		t.Errorf("SignatureFromBytes() accepted a short signature")
	}
	other := NewContextFromName("XMSS-SHA2_10_256")
	otherPk := &PublicKey{ctx: other, root: pk.root, pubSeed: pk.pubSeed}
	if ok, _ := otherPk.Verify(sig, msg); ok {
		t.Errorf("signature verifies for other parameters")
	}
}

func TestGenerateKeyDefaultRandom(t *testing.T) {
	ctx := smallTreeContext(t, 4)
	sk, pk, err := ctx.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey(): %v", err)
	}
	sig, _, err := sk.SignFrom(bytes.NewReader([]byte("streamed")))
	if err != nil {
		t.Fatalf("SignFrom(): %v", err)
	}
	if ok, err := pk.VerifyFrom(sig, bytes.NewReader([]byte("streamed"))); !ok {
		t.Fatalf("VerifyFrom(): %v", err)
	}
	if _, _, err := ctx.Derive(pk.pubSeed[:3], pk.pubSeed, pk.pubSeed); err == nil {
		t.Fatalf("Derive() accepted a short seed")
	}
}
