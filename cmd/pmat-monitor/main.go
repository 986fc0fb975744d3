// pmat-monitor is a standalone harness that exercises pmat without a real
// dynamic-binary-instrumentation host: it drives store/flush/fence/
// client-request traffic from a REPL and exposes the GDB-monitor command
// channel interactively.
//
// Usage:
//
//	pmat-monitor [options]
//
// Options:
//
//	--pmat-verifier=<path>   External verifier executable for crash simulation
//	-c, --config=<path>      Config file (default: .pmat.json)
//
// Commands (in REPL):
//
//	register <name> <addr> <size>   Register a backing region
//	unregister <name>                Unregister by name
//	unregister-addr <addr>           Unregister by address
//	store <addr> <hex-bytes>         Shadow a store
//	flush <addr> <tid>               Shadow a flush
//	flushfence <addr> <tid>          Shadow a fused flush+fence
//	fence <tid>                      Shadow a fence
//	transient <addr> <size>          Mark a range transient
//	forcecrash                       Force one crash-simulation attempt
//	crash-disable / crash-enable      Toggle crash simulation
//	monitor <cmd> [args]              help | print_stats | print_pmem_regions
//	config print                      Print the effective config
//	config save                      Save the effective config to disk
//	help                              Show this help
//	exit / quit / q                   Exit
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/peterh/liner"

	"github.com/calvinalkan/pmat/internal/config"
	"github.com/calvinalkan/pmat/internal/dispatch"
	"github.com/calvinalkan/pmat/pkg/fs"
	"github.com/calvinalkan/pmat/pkg/pmat"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := flag.NewFlagSet("pmat-monitor", flag.ContinueOnError)

	verifierPath := flagSet.String("pmat-verifier", "", "external verifier executable for crash simulation")
	configPath := flagSet.StringP("config", "c", config.FileName, "config file path")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *verifierPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := &writerLogger{out: os.Stdout, errOut: os.Stderr}

	tool := pmat.Init(cfg, pmat.Deps{FS: fs.NewReal(), Logger: logger})

	repl := &repl{tool: tool, cfg: cfg, configPath: *configPath, logger: logger}

	return repl.run()
}

// writerLogger is a minimal writer-backed hostabi.Logger, the harness
// equivalent of the host framework's own print-helper channel.
type writerLogger struct {
	out, errOut io.Writer
}

func (l *writerLogger) Warnf(format string, args ...any) {
	fmt.Fprintf(l.errOut, "warning: "+format+"\n", args...)
}

func (l *writerLogger) Fatalf(format string, args ...any) {
	fmt.Fprintf(l.errOut, "fatal: "+format+"\n", args...)
}

type repl struct {
	tool       *pmat.Tool
	cfg        config.Config
	configPath string
	logger     *writerLogger
	liner      *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".pmat_monitor_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("pmat-monitor - persistent memory durability harness")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("pmat> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return r.printFinalReport()

		case "help", "?":
			r.printHelp()

		case "register":
			r.cmdRegister(args)

		case "unregister":
			r.cmdUnregister(args)

		case "unregister-addr":
			r.cmdUnregisterAddr(args)

		case "store":
			r.cmdStore(args)

		case "flush":
			r.cmdFlush(args)

		case "flushfence":
			r.cmdFlushFence(args)

		case "fence":
			r.cmdFence(args)

		case "transient":
			r.cmdTransient(args)

		case "forcecrash":
			r.cmdForceCrash()

		case "crash-disable":
			r.tool.HandleClientRequest(dispatch.Request{Code: dispatch.CodeCrashDisable})

		case "crash-enable":
			r.tool.HandleClientRequest(dispatch.Request{Code: dispatch.CodeCrashEnable})

		case "monitor":
			r.cmdMonitor(args)

		case "config":
			r.cmdConfig(args)

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *repl) printFinalReport() error {
	out, err := r.tool.Fini()
	if err != nil {
		return fmt.Errorf("final report: %w", err)
	}

	fmt.Print(out)

	return nil
}

func (r *repl) printHelp() {
	fmt.Print(`Commands:
  register <name> <addr> <size>   Register a backing region
  unregister <name>                Unregister by name
  unregister-addr <addr>           Unregister by address
  store <addr> <hex-bytes>         Shadow a store
  flush <addr> <tid>               Shadow a flush
  flushfence <addr> <tid>          Shadow a fused flush+fence
  fence <tid>                      Shadow a fence
  transient <addr> <size>          Mark a range transient
  forcecrash                       Force one crash-simulation attempt
  crash-disable / crash-enable      Toggle crash simulation
  monitor <cmd> [args]              help | print_stats | print_pmem_regions
  config print                      Print the effective config
  config save                      Save the effective config to disk
  help                              Show this help
  exit / quit / q                   Exit
`)
}

func (r *repl) cmdRegister(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: register <name> <addr> <size>")

		return
	}

	addr, err := parseUint(args[1])
	if err != nil {
		fmt.Printf("invalid addr: %v\n", err)

		return
	}

	size, err := parseUint(args[2])
	if err != nil {
		fmt.Printf("invalid size: %v\n", err)

		return
	}

	r.tool.HandleClientRequest(dispatch.Request{Code: dispatch.CodeRegister, Name: args[0], Addr: addr, Size: size})
}

func (r *repl) cmdUnregister(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: unregister <name>")

		return
	}

	r.tool.HandleClientRequest(dispatch.Request{Code: dispatch.CodeUnregisterByName, Name: args[0]})
}

func (r *repl) cmdUnregisterAddr(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: unregister-addr <addr>")

		return
	}

	addr, err := parseUint(args[0])
	if err != nil {
		fmt.Printf("invalid addr: %v\n", err)

		return
	}

	r.tool.HandleClientRequest(dispatch.Request{Code: dispatch.CodeUnregisterByAddr, Addr: addr})
}

func (r *repl) cmdStore(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: store <addr> <hex-bytes>")

		return
	}

	addr, err := parseUint(args[0])
	if err != nil {
		fmt.Printf("invalid addr: %v\n", err)

		return
	}

	value, err := hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
	if err != nil {
		fmt.Printf("invalid hex bytes: %v\n", err)

		return
	}

	r.tool.OnStore(addr, value)
}

func (r *repl) cmdFlush(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: flush <addr> <tid>")

		return
	}

	addr, tid, ok := r.parseAddrTid(args)
	if !ok {
		return
	}

	r.tool.OnFlush(addr, tid)
}

func (r *repl) cmdFlushFence(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: flushfence <addr> <tid>")

		return
	}

	addr, tid, ok := r.parseAddrTid(args)
	if !ok {
		return
	}

	r.tool.OnFlushFence(addr, tid)
}

func (r *repl) cmdFence(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: fence <tid>")

		return
	}

	tid, err := parseUint(args[0])
	if err != nil {
		fmt.Printf("invalid tid: %v\n", err)

		return
	}

	r.tool.OnFence(tid)
}

func (r *repl) cmdTransient(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: transient <addr> <size>")

		return
	}

	addr, err := parseUint(args[0])
	if err != nil {
		fmt.Printf("invalid addr: %v\n", err)

		return
	}

	size, err := parseUint(args[1])
	if err != nil {
		fmt.Printf("invalid size: %v\n", err)

		return
	}

	r.tool.HandleClientRequest(dispatch.Request{Code: dispatch.CodeTransient, Addr: addr, Size: size})
}

func (r *repl) cmdForceCrash() {
	r.tool.HandleClientRequest(dispatch.Request{Code: dispatch.CodeForceCrash})
}

func (r *repl) cmdMonitor(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: monitor <cmd> [args]")

		return
	}

	fmt.Println(r.tool.Monitor(args[0], args[1:]))
}

func (r *repl) cmdConfig(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: config print|save")

		return
	}

	switch args[0] {
	case "print":
		out, err := config.Format(r.cfg)
		if err != nil {
			fmt.Printf("format config: %v\n", err)

			return
		}

		fmt.Println(out)

	case "save":
		if err := config.Save(r.configPath, r.cfg); err != nil {
			fmt.Printf("save config: %v\n", err)

			return
		}

		fmt.Printf("saved to %s\n", r.configPath)

	default:
		fmt.Println("usage: config print|save")
	}
}

func (r *repl) parseAddrTid(args []string) (addr, tid uint64, ok bool) {
	addr, err := parseUint(args[0])
	if err != nil {
		fmt.Printf("invalid addr: %v\n", err)

		return 0, 0, false
	}

	tid, err = parseUint(args[1])
	if err != nil {
		fmt.Printf("invalid tid: %v\n", err)

		return 0, 0, false
	}

	return addr, tid, true
}

// parseUint accepts both "0x"-prefixed hex and plain decimal, matching how
// addresses and sizes are typed interchangeably in the REPL.
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}
