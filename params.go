package xmss

import (
	"encoding/binary"
	"fmt"
)

type HashFunc uint8

const (
	SHA2  HashFunc = 0
	SHAKE HashFunc = 1
)

func (f HashFunc) String() string {
	switch f {
	case SHA2:
		return "SHA2"
	case SHAKE:
		return "SHAKE"
	}
	return fmt.Sprintf("HashFunc(%d)", uint8(f))
}

// Parameters of an XMSS[MT] instance
type Params struct {
	Func       HashFunc // which has function to use
	N          uint32   // security parameter: influences length of hashes
	FullHeight uint32   // full height of tree
	D          uint32   // number of subtrees; 1 for XMSS, >1 for XMSSMT

	// WOTS+ Winternitz parameter.  Only 16 is supported.
	WotsW uint16
}

// Version of the binary encoding of Params.
const paramsEncodingVersion = 1

// Size of the binary encoding of Params.
const paramsEncodedSize = 16

// Entry in the registry of algorithms
type regEntry struct {
	name   string // name, eg. XMSSMT-SHA2_20/2_256
	mt     bool   // whether its XMSSMT (instead of XMSS)
	oid    uint32 // oid of the algorithm
	params Params // parameters of the algorithm
}

// Registry of named XMSS[MT] algorithms
var registry = []regEntry{
	{"XMSSMT-SHA2_20/2_256", true, 0x00000001, Params{SHA2, 32, 20, 2, 16}},
	{"XMSSMT-SHA2_20/4_256", true, 0x00000002, Params{SHA2, 32, 20, 4, 16}},
	{"XMSSMT-SHA2_40/2_256", true, 0x00000003, Params{SHA2, 32, 40, 2, 16}},
	{"XMSSMT-SHA2_40/4_256", true, 0x00000004, Params{SHA2, 32, 40, 4, 16}},
	{"XMSSMT-SHA2_40/8_256", true, 0x00000005, Params{SHA2, 32, 40, 8, 16}},
	{"XMSSMT-SHA2_60/3_256", true, 0x00000006, Params{SHA2, 32, 60, 3, 16}},
	{"XMSSMT-SHA2_60/6_256", true, 0x00000007, Params{SHA2, 32, 60, 6, 16}},
	{"XMSSMT-SHA2_60/12_256", true, 0x00000008, Params{SHA2, 32, 60, 12, 16}},

	{"XMSSMT-SHA2_20/2_512", true, 0x00000009, Params{SHA2, 64, 20, 2, 16}},
	{"XMSSMT-SHA2_20/4_512", true, 0x0000000a, Params{SHA2, 64, 20, 4, 16}},
	{"XMSSMT-SHA2_40/2_512", true, 0x0000000b, Params{SHA2, 64, 40, 2, 16}},
	{"XMSSMT-SHA2_40/4_512", true, 0x0000000c, Params{SHA2, 64, 40, 4, 16}},
	{"XMSSMT-SHA2_40/8_512", true, 0x0000000d, Params{SHA2, 64, 40, 8, 16}},
	{"XMSSMT-SHA2_60/3_512", true, 0x0000000e, Params{SHA2, 64, 60, 3, 16}},
	{"XMSSMT-SHA2_60/6_512", true, 0x0000000f, Params{SHA2, 64, 60, 6, 16}},
	{"XMSSMT-SHA2_60/12_512", true, 0x00000010, Params{SHA2, 64, 60, 12, 16}},

	{"XMSSMT-SHAKE_20/2_256", true, 0x00000011, Params{SHAKE, 32, 20, 2, 16}},
	{"XMSSMT-SHAKE_20/4_256", true, 0x00000012, Params{SHAKE, 32, 20, 4, 16}},
	{"XMSSMT-SHAKE_40/2_256", true, 0x00000013, Params{SHAKE, 32, 40, 2, 16}},
	{"XMSSMT-SHAKE_40/4_256", true, 0x00000014, Params{SHAKE, 32, 40, 4, 16}},
	{"XMSSMT-SHAKE_40/8_256", true, 0x00000015, Params{SHAKE, 32, 40, 8, 16}},
	{"XMSSMT-SHAKE_60/3_256", true, 0x00000016, Params{SHAKE, 32, 60, 3, 16}},
	{"XMSSMT-SHAKE_60/6_256", true, 0x00000017, Params{SHAKE, 32, 60, 6, 16}},
	{"XMSSMT-SHAKE_60/12_256", true, 0x00000018, Params{SHAKE, 32, 60, 12, 16}},

	{"XMSSMT-SHAKE_20/2_512", true, 0x00000019, Params{SHAKE, 64, 20, 2, 16}},
	{"XMSSMT-SHAKE_20/4_512", true, 0x0000001a, Params{SHAKE, 64, 20, 4, 16}},
	{"XMSSMT-SHAKE_40/2_512", true, 0x0000001b, Params{SHAKE, 64, 40, 2, 16}},
	{"XMSSMT-SHAKE_40/4_512", true, 0x0000001c, Params{SHAKE, 64, 40, 4, 16}},
	{"XMSSMT-SHAKE_40/8_512", true, 0x0000001d, Params{SHAKE, 64, 40, 8, 16}},
	{"XMSSMT-SHAKE_60/3_512", true, 0x0000001e, Params{SHAKE, 64, 60, 3, 16}},
	{"XMSSMT-SHAKE_60/6_512", true, 0x0000001f, Params{SHAKE, 64, 60, 6, 16}},
	{"XMSSMT-SHAKE_60/12_512", true, 0x00000020, Params{SHAKE, 64, 60, 12, 16}},

	{"XMSS-SHA2_10_256", false, 0x00000001, Params{SHA2, 32, 10, 1, 16}},
	{"XMSS-SHA2_16_256", false, 0x00000002, Params{SHA2, 32, 16, 1, 16}},
	{"XMSS-SHA2_20_256", false, 0x00000003, Params{SHA2, 32, 20, 1, 16}},
	{"XMSS-SHA2_10_512", false, 0x00000004, Params{SHA2, 64, 10, 1, 16}},
	{"XMSS-SHA2_16_512", false, 0x00000005, Params{SHA2, 64, 16, 1, 16}},
	{"XMSS-SHA2_20_512", false, 0x00000006, Params{SHA2, 64, 20, 1, 16}},

	{"XMSS-SHAKE_10_256", false, 0x00000007, Params{SHAKE, 32, 10, 1, 16}},
	{"XMSS-SHAKE_16_256", false, 0x00000008, Params{SHAKE, 32, 16, 1, 16}},
	{"XMSS-SHAKE_20_256", false, 0x00000009, Params{SHAKE, 32, 20, 1, 16}},
	{"XMSS-SHAKE_10_512", false, 0x0000000a, Params{SHAKE, 64, 10, 1, 16}},
	{"XMSS-SHAKE_16_512", false, 0x0000000b, Params{SHAKE, 64, 16, 1, 16}},
	{"XMSS-SHAKE_20_512", false, 0x0000000c, Params{SHAKE, 64, 20, 1, 16}},
}

var registryNameLut map[string]regEntry
var registryOidLut map[uint32]regEntry
var registryOidMTLut map[uint32]regEntry

// Initializes algorithm lookup tables.
func init() {
	registryNameLut = make(map[string]regEntry)
	registryOidLut = make(map[uint32]regEntry)
	registryOidMTLut = make(map[uint32]regEntry)
	for _, entry := range registry {
		registryNameLut[entry.name] = entry
		if entry.mt {
			registryOidMTLut[entry.oid] = entry
		} else {
			registryOidLut[entry.oid] = entry
		}
	}
}

// Returns paramters for the named XMSS[MT] instance (and nil if there is no
// such algorithm).
func ParamsFromName(name string) *Params {
	entry, ok := registryNameLut[name]
	if !ok {
		return nil
	}
	return &entry.params
}

// List all named XMSS[MT] instances
func ListNames() (names []string) {
	names = make([]string, len(registry))
	for i, entry := range registry {
		names[i] = entry.name
	}
	return
}

// Looks up the name and OID of this parameter set.  Returns the empty
// string and 0 if these parameters are not a named instance.
func (params *Params) LookupNameAndOid() (string, uint32) {
	for _, entry := range registry {
		if entry.params == *params {
			return entry.name, entry.oid
		}
	}
	return "", 0
}

// Returns whether these parameters describe an XMSSMT instance.
func (params *Params) MT() bool {
	return params.D > 1
}

// Returns the 2log of the Winternitz parameter
func (params *Params) WotsLogW() uint8 {
	return 4
}

// Returns the number of  main WOTS+ chains
func (params *Params) WotsLen1() uint32 {
	return 8 * params.N / uint32(params.WotsLogW())
}

// Returns the number of WOTS+ checksum chains
func (params *Params) WotsLen2() uint32 {
	return 3
}

// Returns the total number of WOTS+ chains
func (params *Params) WotsLen() uint32 {
	return params.WotsLen1() + params.WotsLen2()
}

// Returns the size of a WOTS+ signature
func (params *Params) WotsSignatureSize() uint32 {
	return params.WotsLen() * params.N
}

// Returns the height of a single subtree.
func (params *Params) TreeHeight() uint32 {
	return params.FullHeight / params.D
}

// Returns the BDS traversal parameter k for the subtrees: the smallest
// k >= 2 such that the subtree height minus k is even.
func (params *Params) BDSK() uint32 {
	h := params.TreeHeight()
	if h%2 == 0 {
		return 2
	}
	return 3
}

// Returns the maximum signature sequence number
func (params *Params) MaxSignatureSeqNo() uint64 {
	return (1 << params.FullHeight) - 1
}

// Checks whether the parameters are supported.
func (params *Params) validate() error {
	if params.Func != SHA2 && params.Func != SHAKE {
		return fmt.Errorf("unsupported hash function %v", params.Func)
	}
	if params.N != 32 && params.N != 64 {
		return fmt.Errorf("only N=32,64 are supported")
	}
	if params.WotsW != 16 {
		return fmt.Errorf("only WotsW=16 is supported")
	}
	if params.D == 0 {
		return fmt.Errorf("D must be positive")
	}
	if params.FullHeight%params.D != 0 {
		return fmt.Errorf("D does not divide FullHeight")
	}
	if params.FullHeight > 63 {
		return fmt.Errorf("FullHeight must be at most 63")
	}
	h := params.TreeHeight()
	if h < 2 || h > 30 {
		return fmt.Errorf("subtree height must be between 2 and 30")
	}
	k := params.BDSK()
	if k > h || (h-k)%2 != 0 {
		return fmt.Errorf("invalid BDS parameter k=%d for height %d", k, h)
	}
	return nil
}

// Returns a 16 byte binary representation of the parameters.
func (params *Params) MarshalBinary() ([]byte, error) {
	buf := make([]byte, paramsEncodedSize)
	buf[0] = paramsEncodingVersion
	buf[1] = byte(params.Func)
	binary.BigEndian.PutUint16(buf[2:4], params.WotsW)
	binary.BigEndian.PutUint32(buf[4:8], params.N)
	binary.BigEndian.PutUint32(buf[8:12], params.FullHeight)
	binary.BigEndian.PutUint32(buf[12:16], params.D)
	return buf, nil
}

// Reads parameters as written by MarshalBinary.
func (params *Params) UnmarshalBinary(buf []byte) error {
	if len(buf) != paramsEncodedSize {
		return fmt.Errorf("params should be %d bytes, not %d",
			paramsEncodedSize, len(buf))
	}
	if buf[0] != paramsEncodingVersion {
		return fmt.Errorf("unsupported params encoding version %d", buf[0])
	}
	params.Func = HashFunc(buf[1])
	params.WotsW = binary.BigEndian.Uint16(buf[2:4])
	params.N = binary.BigEndian.Uint32(buf[4:8])
	params.FullHeight = binary.BigEndian.Uint32(buf[8:12])
	params.D = binary.BigEndian.Uint32(buf[12:16])
	return nil
}

func (params Params) String() string {
	name, _ := params.LookupNameAndOid()
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s n=%d h=%d d=%d w=%d",
		params.Func, params.N, params.FullHeight, params.D, params.WotsW)
}
