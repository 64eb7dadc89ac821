package consensus

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// HashType selects how a script's code hash is matched against cell deps.
type HashType byte

const (
	HashTypeData  HashType = 0
	HashTypeType  HashType = 1
	HashTypeData1 HashType = 2
	HashTypeData2 HashType = 4
)

func (h HashType) String() string {
	switch h {
	case HashTypeData:
		return "data"
	case HashTypeType:
		return "type"
	case HashTypeData1:
		return "data1"
	case HashTypeData2:
		return "data2"
	default:
		return fmt.Sprintf("unknown(%d)", byte(h))
	}
}

func (h HashType) valid() bool {
	switch h {
	case HashTypeData, HashTypeType, HashTypeData1, HashTypeData2:
		return true
	default:
		return false
	}
}

func ParseHashType(s string) (HashType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "data":
		return HashTypeData, nil
	case "type":
		return HashTypeType, nil
	case "data1":
		return HashTypeData1, nil
	case "data2":
		return HashTypeData2, nil
	default:
		return 0, scripterr(SCRIPT_ERR_HASH_TYPE, fmt.Sprintf("unknown hash type %q", s))
	}
}

const (
	byte32Size       = 32
	fixvecHeaderSize = 4

	scriptFieldCount = 3
	scriptHeaderSize = 4 + 4*scriptFieldCount

	// MaxArgsBytes bounds args accepted by the builder.
	MaxArgsBytes = 1 << 20
)

// Bytes is a read-only view over a serialized byte fixvec:
// item_count u32le || items.
type Bytes struct {
	raw []byte
}

// EncodeBytes serializes data as a byte fixvec.
func EncodeBytes(data []byte) Bytes {
	raw := make([]byte, 0, fixvecHeaderSize+len(data))
	raw = appendU32le(raw, uint32(len(data))) // #nosec G115 -- callers bound data by MaxArgsBytes.
	raw = append(raw, data...)
	return Bytes{raw: raw}
}

// Len is the item count declared by the fixvec header.
func (b Bytes) Len() int {
	if len(b.raw) < fixvecHeaderSize {
		return 0
	}
	return int(binary.LittleEndian.Uint32(b.raw[:fixvecHeaderSize]))
}

// RawLen is the length of the byte buffer holding the items.
func (b Bytes) RawLen() int {
	if len(b.raw) < fixvecHeaderSize {
		return 0
	}
	return len(b.raw) - fixvecHeaderSize
}

// RawData returns a copy of the item bytes.
func (b Bytes) RawData() []byte {
	if len(b.raw) < fixvecHeaderSize {
		return []byte{}
	}
	return append([]byte(nil), b.raw[fixvecHeaderSize:]...)
}

// AsSlice returns a copy of the full serialization, header included.
func (b Bytes) AsSlice() []byte {
	return append([]byte(nil), b.raw...)
}

// Script is an immutable, serialized script table:
// full_size u32le || 3 x offset u32le || code_hash Byte32 || hash_type byte || args Bytes.
type Script struct {
	raw []byte
	off [scriptFieldCount + 1]int
}

func NewScript(codeHash [32]byte, hashType HashType, args []byte) (Script, error) {
	if !hashType.valid() {
		return Script{}, scripterr(SCRIPT_ERR_HASH_TYPE, hashType.String())
	}
	if len(args) > MaxArgsBytes {
		return Script{}, scripterr(SCRIPT_ERR_ARGS_TOO_LARGE, fmt.Sprintf("%d > %d", len(args), MaxArgsBytes))
	}
	argsRaw := EncodeBytes(args).raw
	total := scriptHeaderSize + byte32Size + 1 + len(argsRaw)

	out := make([]byte, 0, total)
	out = appendU32le(out, uint32(total)) // #nosec G115 -- total is bounded by MaxArgsBytes.
	off := scriptHeaderSize
	out = appendU32le(out, uint32(off))
	off += byte32Size
	out = appendU32le(out, uint32(off))
	off++
	out = appendU32le(out, uint32(off)) // #nosec G115 -- off < total.
	out = append(out, codeHash[:]...)
	out = append(out, byte(hashType))
	out = append(out, argsRaw...)
	return ParseScript(out)
}

// ParseScript validates the table framing of b and returns a Script over a
// private copy. The args fixvec header is not cross-checked against its payload.
func ParseScript(b []byte) (Script, error) {
	raw := append([]byte(nil), b...)
	off := 0
	total, err := readU32le(raw, &off)
	if err != nil {
		return Script{}, err
	}
	if uint64(total) != uint64(len(raw)) {
		return Script{}, scripterr(SCRIPT_ERR_PARSE, fmt.Sprintf("full_size %d != %d", total, len(raw)))
	}
	first, err := readU32le(raw, &off)
	if err != nil {
		return Script{}, err
	}
	if first%4 != 0 || first < 8 {
		return Script{}, scripterr(SCRIPT_ERR_PARSE, "bad first offset")
	}
	if fields := int(first/4) - 1; fields != scriptFieldCount {
		return Script{}, scripterr(SCRIPT_ERR_PARSE, fmt.Sprintf("field count %d != %d", fields, scriptFieldCount))
	}

	s := Script{raw: raw}
	s.off[0] = int(first)
	for i := 1; i < scriptFieldCount; i++ {
		v, err := readU32le(raw, &off)
		if err != nil {
			return Script{}, err
		}
		s.off[i] = int(v)
	}
	s.off[scriptFieldCount] = len(raw)
	for i := 0; i < scriptFieldCount; i++ {
		if s.off[i] > s.off[i+1] {
			return Script{}, scripterr(SCRIPT_ERR_PARSE, "offsets not monotonic")
		}
	}

	if n := s.off[1] - s.off[0]; n != byte32Size {
		return Script{}, scripterr(SCRIPT_ERR_PARSE, fmt.Sprintf("code_hash size %d", n))
	}
	if n := s.off[2] - s.off[1]; n != 1 {
		return Script{}, scripterr(SCRIPT_ERR_PARSE, fmt.Sprintf("hash_type size %d", n))
	}
	if n := s.off[3] - s.off[2]; n < fixvecHeaderSize {
		return Script{}, scripterr(SCRIPT_ERR_PARSE, "args header truncated")
	}

	htOff := s.off[1]
	ht, err := readU8(raw, &htOff)
	if err != nil {
		return Script{}, err
	}
	if !HashType(ht).valid() {
		return Script{}, scripterr(SCRIPT_ERR_HASH_TYPE, HashType(ht).String())
	}
	return s, nil
}

func (s Script) field(i int) []byte {
	if s.raw == nil {
		return nil
	}
	return s.raw[s.off[i]:s.off[i+1]]
}

func (s Script) CodeHash() [32]byte {
	var out [32]byte
	copy(out[:], s.field(0))
	return out
}

func (s Script) HashType() HashType {
	f := s.field(1)
	if len(f) == 0 {
		return HashTypeData
	}
	return HashType(f[0])
}

func (s Script) Args() Bytes {
	return Bytes{raw: s.field(2)}
}

// Bytes returns a copy of the serialized script.
func (s Script) Bytes() []byte {
	return append([]byte(nil), s.raw...)
}

func (s Script) Size() int { return len(s.raw) }

func (s Script) IsZero() bool { return s.raw == nil }

// Hash is the blake2b-256 digest of the serialized script; cells sharing it form one script group.
func (s Script) Hash() [32]byte {
	return blake2b256(s.raw)
}

// OverrideArgsLen returns a copy of s whose args header declares n items while
// the payload is left untouched. It only exists to build faulty fixtures.
func OverrideArgsLen(s Script, n uint32) Script {
	if s.raw == nil {
		return s
	}
	out := s
	out.raw = s.Bytes()
	binary.LittleEndian.PutUint32(out.raw[s.off[2]:s.off[2]+fixvecHeaderSize], n)
	return out
}
