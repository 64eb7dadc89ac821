package node

import (
	"fmt"
	"log/slog"

	"lenscript.dev/script/consensus"
	"lenscript.dev/script/node/store"
)

// Host is a single-process development chain: it deploys script code,
// deposits cells and verifies transactions that spend them.
type Host struct {
	db       *store.DB
	verifier *Verifier
	logger   *slog.Logger
}

func NewHost(db *store.DB, registry *Registry, logger *slog.Logger) (*Host, error) {
	if db == nil {
		return nil, fmt.Errorf("host: nil db")
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		db:       db,
		verifier: NewVerifier(db, registry, logger),
		logger:   logger,
	}
	return h, nil
}

// Deploy stores code and returns the code hash scripts use to reference it.
func (h *Host) Deploy(code []byte) ([32]byte, error) {
	codeHash, err := h.db.PutCode(code)
	if err != nil {
		return [32]byte{}, fmt.Errorf("deploy: %w", err)
	}
	h.logger.Info("code deployed", "code_hash", consensus.HashHex(codeHash), "size", len(code))
	return codeHash, nil
}

// issuanceTxHash names the pseudo transaction that created deposit number seq.
func issuanceTxHash(seq uint32) [32]byte {
	return consensus.TxHash(&consensus.Tx{Inputs: []consensus.OutPoint{{Index: seq}}})
}

// Deposit creates a live cell locked by lock without spending anything.
func (h *Host) Deposit(lock consensus.Script, capacity uint64) (consensus.OutPoint, error) {
	if lock.IsZero() {
		return consensus.OutPoint{}, fmt.Errorf("deposit: lock required")
	}
	cell := consensus.Cell{Output: consensus.CellOutput{Capacity: capacity, Lock: lock}}
	need, err := consensus.OccupiedCapacity(cell)
	if err != nil {
		return consensus.OutPoint{}, fmt.Errorf("deposit: %w", err)
	}
	if capacity < need {
		return consensus.OutPoint{}, fmt.Errorf("deposit: %w: has %d, needs %d", ErrInsufficientOutput, capacity, need)
	}
	m := *h.db.Manifest()
	seq := m.Deposits
	// The sequence is consumed before the cell is written, so a failed
	// deposit skips a number instead of reusing it.
	m.Deposits++
	if err := h.db.SetManifest(&m); err != nil {
		return consensus.OutPoint{}, fmt.Errorf("deposit: %w", err)
	}
	point := consensus.OutPoint{TxHash: issuanceTxHash(seq), Index: 0}
	if err := h.db.InsertCell(point, cell); err != nil {
		return consensus.OutPoint{}, fmt.Errorf("deposit: %w", err)
	}
	live := *h.db.Manifest()
	live.LiveCells++
	if err := h.db.SetManifest(&live); err != nil {
		return consensus.OutPoint{}, fmt.Errorf("deposit: %w", err)
	}
	h.logger.Info("cell deposited",
		"tx_hash", consensus.HashHex(point.TxHash),
		"index", point.Index,
		"capacity", capacity,
		"lock_hash", consensus.HashHex(lock.Hash()),
	)
	return point, nil
}

// Submit verifies tx and, when every script group passes, applies it to the store.
func (h *Host) Submit(tx *consensus.Tx) ([32]byte, []GroupResult, error) {
	results, err := h.verifier.VerifyTx(tx)
	if err != nil {
		return [32]byte{}, nil, err
	}
	if err := FirstFailure(results); err != nil {
		return [32]byte{}, results, err
	}
	txHash := consensus.TxHash(tx)
	created := make([]consensus.Cell, len(tx.Outputs))
	for i, o := range tx.Outputs {
		created[i] = consensus.Cell{Output: o, Data: tx.OutputsData[i]}
	}
	if err := h.db.ApplyTx(txHash, tx.Inputs, created); err != nil {
		return [32]byte{}, results, fmt.Errorf("submit: %w", err)
	}
	h.logger.Info("tx committed", "tx_hash", consensus.HashHex(txHash), "inputs", len(tx.Inputs), "outputs", len(tx.Outputs))
	return txHash, results, nil
}

// Spend builds a transaction moving the cell at point to a new cell locked by to,
// keeping its full capacity, and submits it.
func (h *Host) Spend(point consensus.OutPoint, to consensus.Script) ([32]byte, []GroupResult, error) {
	c, ok, err := h.db.GetCell(point)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("spend: %w", err)
	}
	if !ok {
		return [32]byte{}, nil, fmt.Errorf("spend: %w", ErrMissingInput)
	}
	tx := &consensus.Tx{
		Inputs:      []consensus.OutPoint{point},
		Outputs:     []consensus.CellOutput{{Capacity: c.Output.Capacity, Lock: to}},
		OutputsData: [][]byte{{}},
	}
	return h.Submit(tx)
}
