package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"lenscript.dev/script/consensus"
	"lenscript.dev/script/node"
	"lenscript.dev/script/node/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	cfg := defaults

	fs := flag.NewFlagSet("lenscript-node", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (devnet/testnet)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.Uint64Var(&cfg.DepositCapacity, "capacity", defaults.DepositCapacity, "deposit capacity in shannons")
	argsHex := fs.String("args", "", "lock args, hex")
	argsLen := fs.Int64("args-len", -1, "declared args length written into the lock; -1 keeps the real length")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := node.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	lockArgs, err := hex.DecodeString(strings.TrimPrefix(*argsHex, "0x"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid args: %v\n", err)
		return 2
	}
	if *argsLen < -1 || *argsLen > 0xffffffff {
		_, _ = fmt.Fprintf(stderr, "invalid args-len: %d\n", *argsLen)
		return 2
	}
	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	db, err := store.Open(cfg.DataDir, cfg.Network)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	host, err := node.NewHost(db, nil, node.NewLogger(cfg.LogLevel, stderr))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "host init failed: %v\n", err)
		return 2
	}
	codeHash, err := host.Deploy(node.ArgsLenProgramID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	lock, err := consensus.NewScript(codeHash, consensus.HashTypeData1, lockArgs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "lock build failed: %v\n", err)
		return 2
	}
	if *argsLen >= 0 {
		lock = consensus.OverrideArgsLen(lock, uint32(*argsLen))
	}
	// The change cell goes back under the same checker with empty args.
	change, err := consensus.NewScript(codeHash, consensus.HashTypeData1, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "lock build failed: %v\n", err)
		return 2
	}

	point, err := host.Deposit(lock, cfg.DepositCapacity)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "deposit: tx_hash=%x index=%d lock_hash=%x args_len=%d args_raw_len=%d\n",
		point.TxHash, point.Index, lock.Hash(), lock.Args().Len(), lock.Args().RawLen())

	txHash, results, err := host.Spend(point, change)
	for _, r := range results {
		_, _ = fmt.Fprintf(stdout, "group: kind=%s script_hash=%x inputs=%d outputs=%d exit_code=%d\n",
			r.Kind, r.ScriptHash, len(r.Inputs), len(r.Outputs), r.ExitCode)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "spend failed: %v\n", err)
		if node.FirstFailure(results) != nil {
			return 1
		}
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "spend: tx_hash=%x live_cells=%d\n", txHash, db.Manifest().LiveCells)
	return 0
}

func printConfig(w io.Writer, cfg node.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
