package node

import (
	"errors"
	"fmt"
	"log/slog"

	"lenscript.dev/script/consensus"
)

var (
	ErrMissingInput       = errors.New("verify: missing input cell")
	ErrScriptNotFound     = errors.New("verify: script code not found")
	ErrInsufficientOutput = errors.New("verify: output capacity below occupied size")
	ErrCapacityOverflow   = errors.New("verify: outputs exceed inputs capacity")
	ErrNoInputs           = errors.New("verify: tx has no inputs")
	ErrOutputsData        = errors.New("verify: outputs and outputs_data differ in length")
)

// CellSource resolves live cells and deployed code.
type CellSource interface {
	GetCell(point consensus.OutPoint) (consensus.Cell, bool, error)
	GetCode(dataHash [32]byte) ([]byte, bool, error)
}

type GroupKind string

const (
	GroupLock GroupKind = "lock"
	GroupType GroupKind = "type"
)

// GroupResult is the outcome of running one script group once.
type GroupResult struct {
	Kind       GroupKind
	ScriptHash [32]byte
	Script     consensus.Script
	Inputs     []int
	Outputs    []int
	ExitCode   int8
	Err        error
}

type scriptGroup struct {
	kind    GroupKind
	hash    [32]byte
	script  consensus.Script
	inputs  []int
	outputs []int
}

type Verifier struct {
	cells    CellSource
	registry *Registry
	logger   *slog.Logger
}

func NewVerifier(cells CellSource, registry *Registry, logger *slog.Logger) *Verifier {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{cells: cells, registry: registry, logger: logger}
}

// VerifyTx resolves inputs, checks capacity rules and runs every script group
// once. The returned error covers resolution and capacity failures only; script
// failures are reported per group.
func (v *Verifier) VerifyTx(tx *consensus.Tx) ([]GroupResult, error) {
	if tx == nil {
		return nil, errors.New("verify: nil tx")
	}
	if len(tx.Inputs) == 0 {
		return nil, ErrNoInputs
	}
	if len(tx.OutputsData) != len(tx.Outputs) {
		return nil, fmt.Errorf("%w: %d != %d", ErrOutputsData, len(tx.OutputsData), len(tx.Outputs))
	}
	inputs, err := v.resolveInputs(tx)
	if err != nil {
		return nil, err
	}
	if err := checkCapacity(tx, inputs); err != nil {
		return nil, err
	}

	groups := groupScripts(tx, inputs)
	results := make([]GroupResult, 0, len(groups))
	for _, g := range groups {
		prog, err := v.resolveProgram(g.script)
		if err != nil {
			return nil, fmt.Errorf("%s group %x: %w", g.kind, g.hash, err)
		}
		env := NewScriptEnv(g.script.Bytes())
		logger := v.logger.With("group", g.kind, "script_hash", consensus.HashHex(g.hash))
		runErr := prog(env, logger)
		res := GroupResult{
			Kind:       g.kind,
			ScriptHash: g.hash,
			Script:     g.script,
			Inputs:     g.inputs,
			Outputs:    g.outputs,
			ExitCode:   consensus.ExitCode(runErr),
			Err:        runErr,
		}
		if runErr != nil {
			logger.Warn("script failed", "exit_code", res.ExitCode, "error", runErr.Error())
		} else {
			logger.Info("script ok")
		}
		results = append(results, res)
	}
	return results, nil
}

// FirstFailure returns the first failed group's error, or nil when all passed.
func FirstFailure(results []GroupResult) error {
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("%s script %x exit %d: %w", r.Kind, r.ScriptHash, r.ExitCode, r.Err)
		}
	}
	return nil
}

func (v *Verifier) resolveInputs(tx *consensus.Tx) ([]consensus.Cell, error) {
	out := make([]consensus.Cell, 0, len(tx.Inputs))
	seen := make(map[consensus.OutPoint]struct{}, len(tx.Inputs))
	for i, p := range tx.Inputs {
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("verify: input %d spends %x:%d twice", i, p.TxHash, p.Index)
		}
		seen[p] = struct{}{}
		c, ok, err := v.cells.GetCell(p)
		if err != nil {
			return nil, fmt.Errorf("verify: input %d: %w", i, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: input %d %x:%d", ErrMissingInput, i, p.TxHash, p.Index)
		}
		out = append(out, c)
	}
	return out, nil
}

func (v *Verifier) resolveProgram(s consensus.Script) (Program, error) {
	codeHash := s.CodeHash()
	if s.HashType() != consensus.HashTypeType {
		if _, ok, err := v.cells.GetCode(codeHash); err != nil {
			return nil, err
		} else if !ok {
			return nil, fmt.Errorf("%w: code %x not deployed", ErrScriptNotFound, codeHash)
		}
	}
	p, ok := v.registry.Lookup(codeHash)
	if !ok {
		return nil, fmt.Errorf("%w: no program for %x", ErrScriptNotFound, codeHash)
	}
	return p, nil
}

func checkCapacity(tx *consensus.Tx, inputs []consensus.Cell) error {
	var in, out uint64
	for _, c := range inputs {
		if in+c.Output.Capacity < in {
			return ErrCapacityOverflow
		}
		in += c.Output.Capacity
	}
	for i, o := range tx.Outputs {
		need, err := consensus.OccupiedCapacity(consensus.Cell{Output: o, Data: tx.OutputsData[i]})
		if err != nil {
			return fmt.Errorf("verify: output %d: %w", i, err)
		}
		if o.Capacity < need {
			return fmt.Errorf("%w: output %d has %d, needs %d", ErrInsufficientOutput, i, o.Capacity, need)
		}
		if out+o.Capacity < out {
			return ErrCapacityOverflow
		}
		out += o.Capacity
	}
	if out > in {
		return fmt.Errorf("%w: %d > %d", ErrCapacityOverflow, out, in)
	}
	return nil
}

// groupScripts collects input locks, then input and output types, keeping first-seen order.
func groupScripts(tx *consensus.Tx, inputs []consensus.Cell) []*scriptGroup {
	var groups []*scriptGroup
	index := make(map[GroupKind]map[[32]byte]*scriptGroup)
	get := func(kind GroupKind, s consensus.Script) *scriptGroup {
		h := s.Hash()
		if index[kind] == nil {
			index[kind] = make(map[[32]byte]*scriptGroup)
		}
		if g, ok := index[kind][h]; ok {
			return g
		}
		g := &scriptGroup{kind: kind, hash: h, script: s}
		index[kind][h] = g
		groups = append(groups, g)
		return g
	}
	for i, c := range inputs {
		g := get(GroupLock, c.Output.Lock)
		g.inputs = append(g.inputs, i)
	}
	for i, c := range inputs {
		if t := c.Output.Type; t != nil && !t.IsZero() {
			g := get(GroupType, *t)
			g.inputs = append(g.inputs, i)
		}
	}
	for i, o := range tx.Outputs {
		if t := o.Type; t != nil && !t.IsZero() {
			g := get(GroupType, *t)
			g.outputs = append(g.outputs, i)
		}
	}
	return groups
}
