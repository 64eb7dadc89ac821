package consensus

import (
	"fmt"
	"log/slog"
)

// ScriptLoader is the host call that supplies the currently executing script.
type ScriptLoader interface {
	LoadScript() (Script, error)
}

// ArgsLenChecker asserts that the declared item count of the current
// script's args matches the size of the bytes backing them.
type ArgsLenChecker struct {
	env    ScriptLoader
	logger *slog.Logger
}

// NewArgsLenChecker returns a checker bound to env. A nil logger disables tracing.
func NewArgsLenChecker(env ScriptLoader, logger *slog.Logger) *ArgsLenChecker {
	return &ArgsLenChecker{env: env, logger: logger}
}

// Run loads the script once and compares both lengths of its args.
// Loader errors are returned as is.
func (c *ArgsLenChecker) Run() error {
	script, err := c.env.LoadScript()
	if err != nil {
		return err
	}
	args := script.Args()
	argsLen := args.Len()
	rawLen := args.RawLen()

	if c.logger != nil {
		c.logger.Debug("script.args().len()", "args_len", argsLen)
		c.logger.Debug("script.args().as_slice().len()", "args_raw_len", rawLen)
	}

	if argsLen != rawLen {
		return scripterr(SCRIPT_ERR_DIFFERENT_LEN, fmt.Sprintf("len=%d raw=%d", argsLen, rawLen))
	}
	return nil
}

type State int

const (
	StateRunning State = iota
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the terminal state of one invocation.
type Outcome struct {
	State    State
	ExitCode int8
	Err      error
}

func (o Outcome) Ok() bool { return o.State == StateTerminated && o.Err == nil }

// Invoke runs the checker to completion and records its outcome.
func Invoke(env ScriptLoader, logger *slog.Logger) Outcome {
	err := NewArgsLenChecker(env, logger).Run()
	return Outcome{State: StateTerminated, ExitCode: ExitCode(err), Err: err}
}
