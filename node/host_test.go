package node

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"lenscript.dev/script/consensus"
	"lenscript.dev/script/node/store"
)

const testCapacity = 1_000 * consensus.ShannonsPerByte

func newTestHost(t *testing.T, w io.Writer) (*Host, *store.DB) {
	t.Helper()
	db, err := store.Open(t.TempDir(), "devnet")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if w == nil {
		w = io.Discard
	}
	h, err := NewHost(db, nil, slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	if _, err := h.Deploy(ArgsLenProgramID); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	return h, db
}

func TestHost_SpendWellFormedArgs(t *testing.T) {
	for _, n := range []int{0, 20, 64} {
		h, db := newTestHost(t, nil)
		lock := mustLock(t, bytes.Repeat([]byte{0x11}, n))
		point, err := h.Deposit(lock, testCapacity)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		txHash, results, err := h.Spend(point, mustLock(t, nil))
		if err != nil {
			t.Fatalf("n=%d Spend: %v", n, err)
		}
		if len(results) != 1 || results[0].ExitCode != consensus.EXIT_OK || results[0].Kind != GroupLock {
			t.Fatalf("results: %+v", results)
		}
		if _, ok, _ := db.GetCell(point); ok {
			t.Fatalf("input still live")
		}
		if _, ok, _ := db.GetCell(consensus.OutPoint{TxHash: txHash, Index: 0}); !ok {
			t.Fatalf("output not created")
		}
	}
}

func TestHost_SpendMismatchedArgsFails(t *testing.T) {
	var logs bytes.Buffer
	h, db := newTestHost(t, &logs)
	lock := consensus.OverrideArgsLen(mustLock(t, bytes.Repeat([]byte{0x22}, 20)), 19)
	point, err := h.Deposit(lock, testCapacity)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	_, results, err := h.Spend(point, mustLock(t, nil))
	if err == nil {
		t.Fatalf("expected spend to fail")
	}
	var se *consensus.ScriptError
	if !errors.As(err, &se) || se.Code != consensus.SCRIPT_ERR_DIFFERENT_LEN {
		t.Fatalf("err=%v", err)
	}
	if len(results) != 1 || results[0].ExitCode != consensus.EXIT_DIFFERENT_LEN {
		t.Fatalf("results: %+v", results)
	}
	if _, ok, _ := db.GetCell(point); !ok {
		t.Fatalf("failed spend consumed the input")
	}
	out := logs.String()
	if !strings.Contains(out, "args_len=19") || !strings.Contains(out, "args_raw_len=20") {
		t.Fatalf("trace records missing:\n%s", out)
	}
}

func TestHost_GroupsInputsByLock(t *testing.T) {
	h, _ := newTestHost(t, nil)
	lockA := mustLock(t, []byte{1})
	lockB := mustLock(t, []byte{2})
	var inputs []consensus.OutPoint
	for _, l := range []consensus.Script{lockA, lockB, lockA} {
		p, err := h.Deposit(l, testCapacity)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		inputs = append(inputs, p)
	}
	tx := &consensus.Tx{
		Inputs:      inputs,
		Outputs:     []consensus.CellOutput{{Capacity: 3 * testCapacity, Lock: lockA}},
		OutputsData: [][]byte{{}},
	}
	_, results, err := h.Submit(tx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("groups=%d", len(results))
	}
	if results[0].ScriptHash != lockA.Hash() || len(results[0].Inputs) != 2 {
		t.Fatalf("group A: %+v", results[0])
	}
	if results[1].ScriptHash != lockB.Hash() || len(results[1].Inputs) != 1 {
		t.Fatalf("group B: %+v", results[1])
	}
}

func TestHost_RunsTypeGroups(t *testing.T) {
	h, _ := newTestHost(t, nil)
	in, err := h.Deposit(mustLock(t, nil), testCapacity)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	typ := consensus.OverrideArgsLen(mustLock(t, []byte{1, 2}), 3)
	tx := &consensus.Tx{
		Inputs:      []consensus.OutPoint{in},
		Outputs:     []consensus.CellOutput{{Capacity: testCapacity, Lock: mustLock(t, nil), Type: &typ}},
		OutputsData: [][]byte{{}},
	}
	_, results, err := h.Submit(tx)
	if err == nil {
		t.Fatalf("expected type script failure")
	}
	if len(results) != 2 || results[1].Kind != GroupType || results[1].ExitCode != consensus.EXIT_DIFFERENT_LEN {
		t.Fatalf("results: %+v", results)
	}
	if len(results[1].Outputs) != 1 || results[1].Outputs[0] != 0 {
		t.Fatalf("type group outputs: %v", results[1].Outputs)
	}
}

func TestHost_VerifyErrors(t *testing.T) {
	h, _ := newTestHost(t, nil)

	t.Run("missing input", func(t *testing.T) {
		_, _, err := h.Spend(consensus.OutPoint{Index: 9}, mustLock(t, nil))
		if !errors.Is(err, ErrMissingInput) {
			t.Fatalf("err=%v", err)
		}
		_, _, err = h.Submit(&consensus.Tx{Inputs: []consensus.OutPoint{{Index: 9}}})
		if !errors.Is(err, ErrMissingInput) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("duplicate input", func(t *testing.T) {
		p, err := h.Deposit(mustLock(t, nil), testCapacity)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, _, err := h.Submit(&consensus.Tx{Inputs: []consensus.OutPoint{p, p}}); err == nil {
			t.Fatalf("expected duplicate input error")
		}
	})

	t.Run("code not deployed", func(t *testing.T) {
		lock, err := consensus.NewScript([32]byte{0xbe, 0xef}, consensus.HashTypeData, nil)
		if err != nil {
			t.Fatalf("NewScript: %v", err)
		}
		p, err := h.Deposit(lock, testCapacity)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, _, err := h.Spend(p, mustLock(t, nil)); !errors.Is(err, ErrScriptNotFound) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("type hash without program", func(t *testing.T) {
		lock, err := consensus.NewScript([32]byte{0xca, 0xfe}, consensus.HashTypeType, nil)
		if err != nil {
			t.Fatalf("NewScript: %v", err)
		}
		p, err := h.Deposit(lock, testCapacity)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		if _, _, err := h.Spend(p, mustLock(t, nil)); !errors.Is(err, ErrScriptNotFound) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("output over capacity", func(t *testing.T) {
		p, err := h.Deposit(mustLock(t, nil), testCapacity)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		tx := &consensus.Tx{
			Inputs:      []consensus.OutPoint{p},
			Outputs:     []consensus.CellOutput{{Capacity: testCapacity + 1, Lock: mustLock(t, nil)}},
			OutputsData: [][]byte{{}},
		}
		if _, _, err := h.Submit(tx); !errors.Is(err, ErrCapacityOverflow) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("no inputs", func(t *testing.T) {
		tx := &consensus.Tx{
			Outputs:     []consensus.CellOutput{{Capacity: 1 << 60, Lock: mustLock(t, nil)}},
			OutputsData: [][]byte{{}},
		}
		before := h.db.Manifest().LiveCells
		_, results, err := h.Submit(tx)
		if !errors.Is(err, ErrNoInputs) || results != nil {
			t.Fatalf("results=%+v err=%v", results, err)
		}
		if _, ok, _ := h.db.GetCell(consensus.OutPoint{TxHash: consensus.TxHash(tx), Index: 0}); ok {
			t.Fatalf("cell created from nothing")
		}
		if h.db.Manifest().LiveCells != before {
			t.Fatalf("live cells changed")
		}
	})

	t.Run("outputs data length mismatch", func(t *testing.T) {
		p, err := h.Deposit(mustLock(t, nil), testCapacity)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		for _, data := range [][][]byte{nil, {{}, {}}} {
			tx := &consensus.Tx{
				Inputs:      []consensus.OutPoint{p},
				Outputs:     []consensus.CellOutput{{Capacity: testCapacity, Lock: mustLock(t, nil)}},
				OutputsData: data,
			}
			if _, _, err := h.Submit(tx); !errors.Is(err, ErrOutputsData) {
				t.Fatalf("data=%d err=%v", len(data), err)
			}
		}
	})

	t.Run("output under occupied", func(t *testing.T) {
		p, err := h.Deposit(mustLock(t, nil), testCapacity)
		if err != nil {
			t.Fatalf("Deposit: %v", err)
		}
		tx := &consensus.Tx{
			Inputs:      []consensus.OutPoint{p},
			Outputs:     []consensus.CellOutput{{Capacity: 1, Lock: mustLock(t, nil)}},
			OutputsData: [][]byte{{}},
		}
		if _, _, err := h.Submit(tx); !errors.Is(err, ErrInsufficientOutput) {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestHost_DepositRules(t *testing.T) {
	h, db := newTestHost(t, nil)
	if _, err := h.Deposit(consensus.Script{}, testCapacity); err == nil {
		t.Fatalf("expected lock required")
	}
	if _, err := h.Deposit(mustLock(t, nil), 1); !errors.Is(err, ErrInsufficientOutput) {
		t.Fatalf("err=%v", err)
	}
	a, err := h.Deposit(mustLock(t, nil), testCapacity)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	b, err := h.Deposit(mustLock(t, nil), testCapacity)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if a == b {
		t.Fatalf("deposits share an outpoint")
	}
	if m := db.Manifest(); m.Deposits != 2 || m.LiveCells != 2 {
		t.Fatalf("manifest: %+v", m)
	}
	if _, err := NewHost(nil, nil, nil); err == nil {
		t.Fatalf("expected nil db error")
	}
}

func TestFirstFailure(t *testing.T) {
	if err := FirstFailure(nil); err != nil {
		t.Fatalf("err=%v", err)
	}
	cause := errors.New("x")
	err := FirstFailure([]GroupResult{{Kind: GroupLock}, {Kind: GroupType, Err: cause, ExitCode: -1}})
	if !errors.Is(err, cause) {
		t.Fatalf("err=%v", err)
	}
}

func TestHost_CustomRegistryTypeHash(t *testing.T) {
	db, err := store.Open(t.TempDir(), "devnet")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	typeID := [32]byte{0x7e}
	calls := 0
	r := NewRegistry()
	if err := r.Register(typeID, func(env consensus.ScriptLoader, logger *slog.Logger) error {
		calls++
		return argsLenProgram(env, logger)
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h, err := NewHost(db, r, nil)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	lock, err := consensus.NewScript(typeID, consensus.HashTypeType, []byte{9, 9})
	if err != nil {
		t.Fatalf("NewScript: %v", err)
	}
	p, err := h.Deposit(lock, testCapacity)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, results, err := h.Spend(p, lock); err != nil || len(results) != 1 {
		t.Fatalf("Spend: results=%+v err=%v", results, err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestHost_DepositNeverReusesOutpoint(t *testing.T) {
	h, db := newTestHost(t, nil)
	first, err := h.Deposit(mustLock(t, []byte{1}), testCapacity)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	// Roll the sequence back as if the counter update had been lost.
	m := *db.Manifest()
	m.Deposits = 0
	if err := db.SetManifest(&m); err != nil {
		t.Fatalf("SetManifest: %v", err)
	}
	if _, err := h.Deposit(mustLock(t, []byte{2}), 2*testCapacity); !errors.Is(err, store.ErrCellExists) {
		t.Fatalf("err=%v", err)
	}
	got, ok, err := db.GetCell(first)
	if err != nil || !ok || got.Output.Capacity != testCapacity {
		t.Fatalf("first deposit clobbered: %+v ok=%v err=%v", got, ok, err)
	}

	next, err := h.Deposit(mustLock(t, []byte{3}), testCapacity)
	if err != nil {
		t.Fatalf("Deposit after collision: %v", err)
	}
	if next == first {
		t.Fatalf("outpoint reused")
	}
	if m := db.Manifest(); m.Deposits != 2 || m.LiveCells != 2 {
		t.Fatalf("manifest: %+v", m)
	}
}

func TestNewVerifier_DefaultsRegistry(t *testing.T) {
	h, db := newTestHost(t, nil)
	p, err := h.Deposit(mustLock(t, []byte{4, 5}), testCapacity)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	v := NewVerifier(db, nil, nil)
	results, err := v.VerifyTx(&consensus.Tx{
		Inputs:      []consensus.OutPoint{p},
		Outputs:     []consensus.CellOutput{{Capacity: testCapacity, Lock: mustLock(t, nil)}},
		OutputsData: [][]byte{{}},
	})
	if err != nil || len(results) != 1 || results[0].ExitCode != consensus.EXIT_OK {
		t.Fatalf("results=%+v err=%v", results, err)
	}
}
