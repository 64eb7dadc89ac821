package store

import (
	"encoding/binary"
	"fmt"

	"lenscript.dev/script/consensus"
)

func encodeOutPointKey(p consensus.OutPoint) []byte {
	// tx_hash(32) || index(u32 little-endian)
	out := make([]byte, 32+4)
	copy(out[0:32], p.TxHash[:])
	binary.LittleEndian.PutUint32(out[32:36], p.Index)
	return out
}

func decodeOutPointKey(b []byte) (consensus.OutPoint, error) {
	if len(b) != 36 {
		return consensus.OutPoint{}, fmt.Errorf("outpoint: expected 36 bytes, got %d", len(b))
	}
	var h [32]byte
	copy(h[:], b[0:32])
	return consensus.OutPoint{TxHash: h, Index: binary.LittleEndian.Uint32(b[32:36])}, nil
}

func appendBlob(out []byte, b []byte) []byte {
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(b))) // #nosec G115 -- callers bound blob sizes to u32.
	out = append(out, tmp4[:]...)
	return append(out, b...)
}

func readBlob(b []byte, off *int, name string) ([]byte, error) {
	if *off+4 > len(b) {
		return nil, fmt.Errorf("cell: %s_len truncated", name)
	}
	n := int(binary.LittleEndian.Uint32(b[*off : *off+4]))
	*off += 4
	if n < 0 || *off+n > len(b) {
		return nil, fmt.Errorf("cell: bad %s_len", name)
	}
	v := b[*off : *off+n]
	*off += n
	return v, nil
}

// Engineering persistence format, not a consensus wire format:
// capacity u64le | lock_len u32le | lock | has_type u8 | [type_len u32le | type] | data_len u32le | data
func encodeCell(c consensus.Cell) ([]byte, error) {
	if c.Output.Lock.IsZero() {
		return nil, fmt.Errorf("cell: lock required")
	}
	if uint64(len(c.Data)) > 0xffffffff {
		return nil, fmt.Errorf("cell: data too large")
	}
	lock := c.Output.Lock.Bytes()
	out := make([]byte, 0, 8+4+len(lock)+1+4+len(c.Data))
	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], c.Output.Capacity)
	out = append(out, tmp8[:]...)
	out = appendBlob(out, lock)
	if t := c.Output.Type; t != nil && !t.IsZero() {
		out = append(out, 1)
		out = appendBlob(out, t.Bytes())
	} else {
		out = append(out, 0)
	}
	out = appendBlob(out, c.Data)
	return out, nil
}

func decodeCell(b []byte) (consensus.Cell, error) {
	if len(b) < 8+4+1+4 {
		return consensus.Cell{}, fmt.Errorf("cell: truncated")
	}
	off := 0
	capacity := binary.LittleEndian.Uint64(b[off : off+8])
	off += 8

	lockRaw, err := readBlob(b, &off, "lock")
	if err != nil {
		return consensus.Cell{}, err
	}
	// Lock framing is validated, its args header is kept as stored.
	lock, err := consensus.ParseScript(lockRaw)
	if err != nil {
		return consensus.Cell{}, fmt.Errorf("cell: lock: %w", err)
	}

	if off >= len(b) {
		return consensus.Cell{}, fmt.Errorf("cell: has_type truncated")
	}
	hasType := b[off]
	off++
	var typ *consensus.Script
	switch hasType {
	case 0:
	case 1:
		typeRaw, err := readBlob(b, &off, "type")
		if err != nil {
			return consensus.Cell{}, err
		}
		s, err := consensus.ParseScript(typeRaw)
		if err != nil {
			return consensus.Cell{}, fmt.Errorf("cell: type: %w", err)
		}
		typ = &s
	default:
		return consensus.Cell{}, fmt.Errorf("cell: bad has_type %d", hasType)
	}

	data, err := readBlob(b, &off, "data")
	if err != nil {
		return consensus.Cell{}, err
	}
	if off != len(b) {
		return consensus.Cell{}, fmt.Errorf("cell: trailing bytes")
	}
	return consensus.Cell{
		Output: consensus.CellOutput{Capacity: capacity, Lock: lock, Type: typ},
		Data:   append([]byte(nil), data...),
	}, nil
}
