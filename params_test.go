package xmss

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBinaryUnmarshalingNamedParams(t *testing.T) {
	for _, name := range ListNames() {
		params := ParamsFromName(name)
		if params == nil {
			t.Fatalf("ParamsFromName(%s) is nil", name)
		}
		buf, err := params.MarshalBinary()
		if err != nil {
			t.Fatalf("ParamsFromName(%s).MarshalBinary(): %v ", name, err)
		}
		var params2 Params
		err = params2.UnmarshalBinary(buf)
		if err != nil {
			t.Fatalf("%s: UnmarshalBinary(): %v ", name, err)
		}
		name2, _ := params2.LookupNameAndOid()
		if name2 != name {
			t.Fatalf("%s unmarshaled improperly to %s", name, name2)
		}
	}
}

func TestBinaryUnmarshalingCustomParams(t *testing.T) {
	params := Params{Func: SHAKE, N: 64, FullHeight: 12, D: 3, WotsW: 16}
	buf, _ := params.MarshalBinary()
	var params2 Params
	if err := params2.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary(): %v ", err)
	}
	if diff := cmp.Diff(params, params2); diff != "" {
		t.Fatalf("Unmarshaling failed (-want +got):\n%s", diff)
	}
	if err := params2.UnmarshalBinary(buf[:15]); err == nil {
		t.Fatalf("UnmarshalBinary() accepted a truncated buffer")
	}
	buf[0] = 2
	if err := params2.UnmarshalBinary(buf); err == nil {
		t.Fatalf("UnmarshalBinary() accepted an unknown version")
	}
}

func TestNamedContexts(t *testing.T) {
	for _, name := range ListNames() {
		ctx := NewContextFromName(name)
		if ctx == nil {
			t.Fatalf("NewContextFromName(%s) is nil", name)
		}
		if ctx.Name() != name {
			t.Fatalf("%s has name %s", name, ctx.Name())
		}
		ctx2 := NewContextFromOid(ctx.MT(), ctx.Oid())
		if ctx2 == nil || ctx2.Name() != name {
			t.Fatalf("%s cannot be found by its OID %d", name, ctx.Oid())
		}
		p := ctx.Params()
		if ctx.SignatureSize() != ctx.indexBytes+p.N+
			p.D*p.WotsSignatureSize()+p.FullHeight*p.N {
			t.Fatalf("%s: unexpected signature size %d", name,
				ctx.SignatureSize())
		}
	}
	if NewContextFromName("XMSS-SHA2_11_256") != nil {
		t.Fatalf("unknown name should give nil")
	}
	if NewContextFromOid(false, 13) != nil {
		t.Fatalf("unknown OID should give nil")
	}
}

func TestSizes(t *testing.T) {
	ctx := NewContextFromName("XMSS-SHA2_10_256")
	if ctx.SignatureSize() != 2500 {
		t.Fatalf("XMSS-SHA2_10_256 signature is %d bytes instead of 2500",
			ctx.SignatureSize())
	}
	if ctx.PublicKeySize() != 64 {
		t.Fatalf("public key is %d bytes instead of 64", ctx.PublicKeySize())
	}
	ctx = NewContextFromName("XMSSMT-SHA2_20/2_256")
	if ctx.SignatureSize() != 4963 {
		t.Fatalf("XMSSMT-SHA2_20/2_256 signature is %d bytes instead of 4963",
			ctx.SignatureSize())
	}
	for _, p := range []Params{ctx.Params(), *ParamsFromName("XMSSMT-SHA2_60/3_256")} {
		if p.BDSK() != 2 {
			t.Fatalf("%v: even subtree heights should use k=2", p)
		}
	}
	p := Params{Func: SHA2, N: 32, FullHeight: 9, D: 3, WotsW: 16}
	if p.BDSK() != 3 {
		t.Fatalf("odd subtree heights should use k=3")
	}
}

func TestUnsupportedParams(t *testing.T) {
	for _, params := range []Params{
		{Func: SHA2, N: 16, FullHeight: 10, D: 1, WotsW: 16},
		{Func: SHA2, N: 32, FullHeight: 10, D: 1, WotsW: 4},
		{Func: SHA2, N: 32, FullHeight: 10, D: 3, WotsW: 16},
		{Func: SHA2, N: 32, FullHeight: 10, D: 0, WotsW: 16},
		{Func: SHA2, N: 32, FullHeight: 1, D: 1, WotsW: 16},
		{Func: SHA2, N: 32, FullHeight: 64, D: 2, WotsW: 16},
		{Func: HashFunc(7), N: 32, FullHeight: 10, D: 1, WotsW: 16},
	} {
		if _, err := NewContext(params); err == nil {
			t.Errorf("NewContext(%v) should fail", params)
		}
	}
}
