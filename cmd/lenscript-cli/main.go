package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"lenscript.dev/script/consensus"
	"lenscript.dev/script/node"
)

type Request struct {
	Op        string  `json:"op"`
	ScriptHex string  `json:"script_hex,omitempty"`
	CodeHash  string  `json:"code_hash,omitempty"`
	HashType  string  `json:"hash_type,omitempty"`
	ArgsHex   string  `json:"args_hex,omitempty"`
	ArgsLen   *uint32 `json:"args_len,omitempty"`
	Trace     bool    `json:"trace,omitempty"`
}

type Response struct {
	Ok         bool     `json:"ok"`
	Err        string   `json:"err,omitempty"`
	ExitCode   int8     `json:"exit_code"`
	ScriptHex  string   `json:"script_hex,omitempty"`
	ScriptHash string   `json:"script_hash,omitempty"`
	ArgsLen    *int     `json:"args_len,omitempty"`
	ArgsRawLen *int     `json:"args_raw_len,omitempty"`
	Trace      []string `json:"trace,omitempty"`
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

func writeScriptErr(w io.Writer, err error) {
	var se *consensus.ScriptError
	if errors.As(err, &se) {
		writeResp(w, Response{Ok: false, Err: string(se.Code), ExitCode: consensus.ExitCode(err)})
		return
	}
	writeResp(w, Response{Ok: false, Err: err.Error(), ExitCode: consensus.ExitCode(err)})
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}

func parseScriptHex(s string) (consensus.Script, error) {
	b, err := decodeHex(s)
	if err != nil {
		return consensus.Script{}, errors.New("bad script_hex")
	}
	return consensus.ParseScript(b)
}

func scriptResp(s consensus.Script) Response {
	h := s.Hash()
	return Response{
		Ok:         true,
		ScriptHex:  hex.EncodeToString(s.Bytes()),
		ScriptHash: hex.EncodeToString(h[:]),
	}
}

// traceWriter collects one record per handler Write call.
type traceWriter struct{ lines []string }

func (t *traceWriter) Write(p []byte) (int, error) {
	t.lines = append(t.lines, strings.TrimSpace(string(p)))
	return len(p), nil
}

func runRequest(r io.Reader, w io.Writer) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		writeResp(w, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err), ExitCode: consensus.EXIT_HOST_FAILURE})
		return
	}

	switch req.Op {
	case "build_script":
		codeHash, err := decodeHex(req.CodeHash)
		if err != nil || len(codeHash) != 32 {
			writeResp(w, Response{Ok: false, Err: "bad code_hash", ExitCode: consensus.EXIT_HOST_FAILURE})
			return
		}
		ht, err := consensus.ParseHashType(req.HashType)
		if err != nil {
			writeScriptErr(w, err)
			return
		}
		args, err := decodeHex(req.ArgsHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad args_hex", ExitCode: consensus.EXIT_HOST_FAILURE})
			return
		}
		var ch [32]byte
		copy(ch[:], codeHash)
		s, err := consensus.NewScript(ch, ht, args)
		if err != nil {
			writeScriptErr(w, err)
			return
		}
		writeResp(w, scriptResp(s))
		return

	case "script_hash":
		s, err := parseScriptHex(req.ScriptHex)
		if err != nil {
			writeScriptErr(w, err)
			return
		}
		writeResp(w, scriptResp(s))
		return

	case "rig_args_len":
		if req.ArgsLen == nil {
			writeResp(w, Response{Ok: false, Err: "args_len required", ExitCode: consensus.EXIT_HOST_FAILURE})
			return
		}
		s, err := parseScriptHex(req.ScriptHex)
		if err != nil {
			writeScriptErr(w, err)
			return
		}
		writeResp(w, scriptResp(consensus.OverrideArgsLen(s, *req.ArgsLen)))
		return

	case "check_script":
		raw, err := decodeHex(req.ScriptHex)
		if err != nil {
			writeResp(w, Response{Ok: false, Err: "bad script_hex", ExitCode: consensus.EXIT_HOST_FAILURE})
			return
		}
		var tw traceWriter
		var logger *slog.Logger
		if req.Trace {
			logger = node.NewLogger("debug", &tw)
		}
		env := node.NewScriptEnv(raw)
		out := consensus.Invoke(env, logger)
		resp := Response{Ok: out.Ok(), ExitCode: out.ExitCode, Trace: tw.lines}
		if s, perr := consensus.ParseScript(raw); perr == nil {
			n, m := s.Args().Len(), s.Args().RawLen()
			resp.ArgsLen, resp.ArgsRawLen = &n, &m
		}
		if out.Err != nil {
			var se *consensus.ScriptError
			if errors.As(out.Err, &se) {
				resp.Err = string(se.Code)
			} else {
				resp.Err = out.Err.Error()
			}
		}
		writeResp(w, resp)
		return

	default:
		writeResp(w, Response{Ok: false, Err: "unknown op", ExitCode: consensus.EXIT_HOST_FAILURE})
		return
	}
}

func main() {
	runRequest(os.Stdin, os.Stdout)
}
