package node

import (
	"lenscript.dev/script/consensus"
)

// ScriptEnv serves the load-script syscall for one program invocation.
// It holds the serialized script exactly as found in the cell.
type ScriptEnv struct {
	raw   []byte
	loads int
}

func NewScriptEnv(raw []byte) *ScriptEnv {
	return &ScriptEnv{raw: append([]byte(nil), raw...)}
}

// LoadScript parses the bound script. A missing script reports ITEM_MISSING,
// a malformed table reports ENCODING.
func (e *ScriptEnv) LoadScript() (consensus.Script, error) {
	e.loads++
	if len(e.raw) == 0 {
		return consensus.Script{}, &consensus.SysError{Code: consensus.SYS_ERR_ITEM_MISSING, Msg: "no script bound"}
	}
	s, err := consensus.ParseScript(e.raw)
	if err != nil {
		return consensus.Script{}, &consensus.SysError{Code: consensus.SYS_ERR_ENCODING, Msg: err.Error()}
	}
	return s, nil
}

// Loads reports how many times LoadScript was called.
func (e *ScriptEnv) Loads() int { return e.loads }
