package node

import (
	"fmt"
	"log/slog"
	"sync"

	"lenscript.dev/script/consensus"
)

// Program is a lock or type script runnable by the development host.
type Program func(env consensus.ScriptLoader, logger *slog.Logger) error

// ArgsLenProgramID is the code blob deployed for the args length checker.
// Its data hash is the code hash scripts use to reference the checker.
var ArgsLenProgramID = []byte("lenscript/args-len-check/v1")

func argsLenProgram(env consensus.ScriptLoader, logger *slog.Logger) error {
	return consensus.NewArgsLenChecker(env, logger).Run()
}

// Registry maps code hashes to programs.
type Registry struct {
	mu       sync.RWMutex
	programs map[[32]byte]Program
}

func NewRegistry() *Registry {
	return &Registry{programs: make(map[[32]byte]Program)}
}

// DefaultRegistry registers the args length checker under the data hash of ArgsLenProgramID.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(consensus.DataHash(ArgsLenProgramID), argsLenProgram)
	return r
}

func (r *Registry) Register(codeHash [32]byte, p Program) error {
	if p == nil {
		return fmt.Errorf("registry: nil program")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.programs[codeHash]; ok {
		return fmt.Errorf("registry: code hash %x already registered", codeHash)
	}
	r.programs[codeHash] = p
	return nil
}

func (r *Registry) Lookup(codeHash [32]byte) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[codeHash]
	return p, ok
}
