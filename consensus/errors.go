package consensus

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	SCRIPT_ERR_PARSE          ErrorCode = "SCRIPT_ERR_PARSE"
	SCRIPT_ERR_HASH_TYPE      ErrorCode = "SCRIPT_ERR_HASH_TYPE"
	SCRIPT_ERR_DIFFERENT_LEN  ErrorCode = "SCRIPT_ERR_DIFFERENT_LEN"
	SCRIPT_ERR_ARGS_TOO_LARGE ErrorCode = "SCRIPT_ERR_ARGS_TOO_LARGE"
)

// Exit codes reported to the host. 1..4 are reserved for syscall failures.
const (
	EXIT_OK             int8 = 0
	EXIT_DIFFERENT_LEN  int8 = 5
	EXIT_HOST_FAILURE   int8 = -1
	EXIT_SCRIPT_GENERIC int8 = -2
)

type ScriptError struct {
	Code ErrorCode
	Msg  string
}

func (e *ScriptError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func scripterr(code ErrorCode, msg string) error {
	return &ScriptError{Code: code, Msg: msg}
}

// SysErrorCode mirrors the failures a host syscall can report.
type SysErrorCode int8

const (
	SYS_ERR_INDEX_OUT_OF_BOUND SysErrorCode = 1
	SYS_ERR_ITEM_MISSING       SysErrorCode = 2
	SYS_ERR_LENGTH_NOT_ENOUGH  SysErrorCode = 3
	SYS_ERR_ENCODING           SysErrorCode = 4
)

func (c SysErrorCode) String() string {
	switch c {
	case SYS_ERR_INDEX_OUT_OF_BOUND:
		return "INDEX_OUT_OF_BOUND"
	case SYS_ERR_ITEM_MISSING:
		return "ITEM_MISSING"
	case SYS_ERR_LENGTH_NOT_ENOUGH:
		return "LENGTH_NOT_ENOUGH"
	case SYS_ERR_ENCODING:
		return "ENCODING"
	default:
		return "UNKNOWN"
	}
}

// SysError is returned by the environment when it cannot supply data.
type SysError struct {
	Code SysErrorCode
	Msg  string
}

func (e *SysError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return "syscall: " + e.Code.String()
	}
	return fmt.Sprintf("syscall: %s: %s", e.Code, e.Msg)
}

func syserr(code SysErrorCode, msg string) error {
	return &SysError{Code: code, Msg: msg}
}

// ExitCode maps a program result to the numeric completion code seen by the host.
func ExitCode(err error) int8 {
	if err == nil {
		return EXIT_OK
	}
	var se *SysError
	if errors.As(err, &se) {
		return int8(se.Code)
	}
	var sc *ScriptError
	if errors.As(err, &sc) {
		if sc.Code == SCRIPT_ERR_DIFFERENT_LEN {
			return EXIT_DIFFERENT_LEN
		}
		return EXIT_SCRIPT_GENERIC
	}
	return EXIT_HOST_FAILURE
}
