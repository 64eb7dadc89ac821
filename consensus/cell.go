package consensus

import (
	"encoding/binary"
	"fmt"
)

// ShannonsPerByte is the capacity a cell must hold per occupied byte.
const ShannonsPerByte uint64 = 100_000_000

type OutPoint struct {
	TxHash [32]byte
	Index  uint32
}

type CellOutput struct {
	Capacity uint64
	Lock     Script
	Type     *Script
}

type Cell struct {
	Output CellOutput
	Data   []byte
}

// OccupiedCapacity is the minimum capacity, in shannons, that c must hold:
// capacity field, lock, optional type and data, one unit per byte.
func OccupiedCapacity(c Cell) (uint64, error) {
	// lock.args counts by payload, matching the on-chain rule.
	n := uint64(8) + byte32Size + 1 + uint64(c.Output.Lock.Args().RawLen())
	if t := c.Output.Type; t != nil && !t.IsZero() {
		n += byte32Size + 1 + uint64(t.Args().RawLen())
	}
	n += uint64(len(c.Data))
	if n > ^uint64(0)/ShannonsPerByte {
		return 0, fmt.Errorf("occupied capacity overflow")
	}
	return n * ShannonsPerByte, nil
}

// Tx is the subset of a transaction the development host needs to run lock scripts.
type Tx struct {
	Inputs      []OutPoint
	Outputs     []CellOutput
	OutputsData [][]byte
}

// TxHash commits to inputs, serialized outputs and outputs data.
func TxHash(tx *Tx) [32]byte {
	out := make([]byte, 0, 256)
	out = appendU32le(out, uint32(len(tx.Inputs))) // #nosec G115 -- dev host tx sizes are small.
	for _, in := range tx.Inputs {
		out = append(out, in.TxHash[:]...)
		out = appendU32le(out, in.Index)
	}
	out = appendU32le(out, uint32(len(tx.Outputs))) // #nosec G115 -- see above.
	var tmp8 [8]byte
	for _, o := range tx.Outputs {
		binary.LittleEndian.PutUint64(tmp8[:], o.Capacity)
		out = append(out, tmp8[:]...)
		out = appendU32le(out, uint32(o.Lock.Size())) // #nosec G115 -- bounded by MaxArgsBytes.
		out = append(out, o.Lock.raw...)
		if o.Type != nil {
			out = appendU32le(out, uint32(o.Type.Size())) // #nosec G115 -- bounded by MaxArgsBytes.
			out = append(out, o.Type.raw...)
		} else {
			out = appendU32le(out, 0)
		}
	}
	out = appendU32le(out, uint32(len(tx.OutputsData))) // #nosec G115 -- see above.
	for _, d := range tx.OutputsData {
		out = appendU32le(out, uint32(len(d))) // #nosec G115 -- see above.
		out = append(out, d...)
	}
	return blake2b256(out)
}
