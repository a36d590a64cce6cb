// Command loxvm is the CLI driver: REPL when given no arguments, script
// execution when given one, usage when given more. Exit codes follow
// 0 (success), 65 (compile error), 70 (runtime error).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/mattn/go-isatty"

	"loxvm/cmd/loxvm/replhistory"
	"loxvm/internal/compiler"
	"loxvm/internal/gc"
	"loxvm/internal/plugin"
	"loxvm/internal/vm"
)

const version = "v0.1.0"

const (
	exitOK      = 0
	exitCompile = 65
	exitRuntime = 70
)

func main() {
	os.Exit(run())
}

func run() int {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "internal error:", r)
			debug.PrintStack()
		}
	}()

	disassemble := flag.Bool("disassemble", false, "print bytecode disassembly before executing")
	gcStress := flag.Bool("gc-stress", false, "force a GC cycle on every allocation")
	telemetryExe := flag.String("telemetry", "", "optional GC telemetry plugin executable")
	historyPath := flag.String("history", "loxvm_history.db", "REPL history database path")
	showVersion := flag.Bool("version", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: loxvm [options] [script]\n\noptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("loxvm %s\n", version)
		return exitOK
	}

	args := flag.Args()
	if len(args) > 1 {
		flag.Usage()
		return exitOK
	}

	log := slog.Default()
	collector := gc.New(log)
	collector.SetStressMode(*gcStress)

	if *telemetryExe != "" {
		client, err := plugin.Load("gc-telemetry", *telemetryExe)
		if err != nil {
			log.Warn("gc telemetry plugin unavailable", "error", err)
		} else {
			defer client.Close()
			collector.SetRecorder(plugin.NewCycleRecorder(client))
		}
	}

	machine := vm.New(collector, log)

	if len(args) == 1 {
		return runFile(machine, collector, args[0], *disassemble)
	}
	return runREPL(machine, collector, *historyPath, *disassemble)
}

func runFile(machine *vm.VM, collector *gc.Collector, path string, disassemble bool) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error reading file:", err)
		return exitCompile
	}

	c, err := compiler.Compile(string(source), path, collector)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCompile
	}
	if disassemble {
		c.Disassemble(path)
	}
	if err := machine.Interpret(c); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntime
	}
	return exitOK
}

func runREPL(machine *vm.VM, collector *gc.Collector, historyPath string, disassemble bool) int {
	history, err := replhistory.Open(historyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: REPL history disabled:", err)
		history = nil
	} else {
		defer history.Close()
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Printf("loxvm %s\n", version)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == "quit()" || trimmed == "quit();" {
			break
		}

		if history != nil {
			if err := history.Append(line); err != nil {
				fmt.Fprintln(os.Stderr, "warning: history append failed:", err)
			}
		}

		c, err := compiler.Compile(line, "<repl>", collector)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if disassemble {
			c.Disassemble("<repl>")
		}
		if err := machine.Interpret(c); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return exitOK
}
