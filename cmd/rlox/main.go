// rlox CLI - compiles and runs Lox programs on the bytecode interpreter
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/16dprice/rlox/compiler"
	"github.com/16dprice/rlox/manifest"
	"github.com/16dprice/rlox/pkg/bytecode"
	"github.com/16dprice/rlox/server"
	"github.com/16dprice/rlox/vm"
	"github.com/16dprice/rlox/vm/dist"
)

// Exit codes follow the BSD sysexits convention.
const (
	exitOK         = 0
	exitCompileErr = 65 // EX_DATAERR
	exitRuntimeErr = 70 // EX_SOFTWARE
	exitIOErr      = 74 // EX_IOERR
)

func main() {
	debug := flag.Bool("debug", false, "Print disassembly before running and mark program output")
	trace := flag.Bool("trace", false, "Trace each instruction during execution")
	compileOnly := flag.Bool("c", false, "Compile to an image instead of running")
	output := flag.String("o", "", "Image output path (used with -c)")
	interactive := flag.Bool("i", false, "Start the REPL after running the script")
	serveMode := flag.Bool("serve", false, "Start the language server on stdio")
	verbose := flag.Int("verbose", 0, "Log verbosity for the language server")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rlox [options] [script]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a Lox script or compiled image, or starts a REPL when no script is given.\n")
		fmt.Fprintf(os.Stderr, "An rlox.toml manifest, when present, supplies the entry script and defaults.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  rlox                           # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  rlox main.lox                  # Run a script\n")
		fmt.Fprintf(os.Stderr, "  rlox -debug main.lox           # Disassemble, then run\n")
		fmt.Fprintf(os.Stderr, "  rlox -c main.lox -o main.rlxc  # Compile to an image\n")
		fmt.Fprintf(os.Stderr, "  rlox main.rlxc                 # Run a compiled image\n")
		fmt.Fprintf(os.Stderr, "  rlox -serve                    # Start the language server\n")
	}
	flag.Parse()

	if *serveMode {
		commonlog.Configure(*verbose, nil)
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// A manifest supplies defaults the flags can override
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	prompt := manifest.DefaultPrompt
	stackSize := 0
	if m != nil {
		prompt = m.REPL.Prompt
		stackSize = m.VM.StackSize
		if m.VM.Trace {
			*trace = true
		}
	}

	script := flag.Arg(0)
	if script == "" && m != nil {
		script = m.EntryPath()
	}

	if *compileOnly {
		if script == "" {
			fmt.Fprintln(os.Stderr, "Error: -c requires a script")
			os.Exit(exitIOErr)
		}
		out := *output
		if out == "" && m != nil {
			out = m.OutputPath()
		}
		if out == "" {
			out = strings.TrimSuffix(script, filepath.Ext(script)) + ".rlxc"
		}
		os.Exit(compileToImage(script, out))
	}

	machine := vm.NewWithStackSize(os.Stdout, stackSize)
	machine.Trace = *trace

	if script != "" {
		code := runFile(machine, script, *debug)
		if code != exitOK || !*interactive {
			os.Exit(code)
		}
	}

	runREPL(machine, prompt)
}

// loadProgram reads a path and returns a runnable function. Compiled
// images are recognized by their magic header; anything else is treated
// as Lox source.
func loadProgram(path string) (*bytecode.Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(data, []byte(dist.Magic)) {
		return dist.UnmarshalImage(data)
	}
	return compiler.Compile(string(data))
}

// runFile loads and executes one script, returning the process exit code.
func runFile(machine *vm.VM, path string, debug bool) int {
	fn, err := loadProgram(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		var list compiler.ErrorList
		if errors.As(err, &list) {
			return exitCompileErr
		}
		return exitIOErr
	}

	if debug {
		fmt.Print(bytecode.DisassembleFunction(fn))
		fmt.Print("==== BEGIN PROGRAM OUTPUT ====\n\n")
	}

	runErr := machine.Interpret(fn)

	if debug {
		fmt.Print("\n\n==== END PROGRAM OUTPUT ====\n\n")
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		return exitRuntimeErr
	}
	return exitOK
}

// compileToImage compiles source to a .rlxc image without running it.
func compileToImage(srcPath, outPath string) int {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIOErr
	}

	fn, err := compiler.Compile(string(data))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCompileErr
	}

	image, err := dist.MarshalImage(fn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIOErr
	}

	if err := os.WriteFile(outPath, image, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIOErr
	}
	return exitOK
}

// runREPL starts an interactive read-eval-print loop. Globals persist
// across lines, so definitions accumulate.
func runREPL(machine *vm.VM, prompt string) {
	fmt.Println("rlox REPL (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		fn, err := compiler.Compile(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if err := machine.Interpret(fn); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	fmt.Println()
}
