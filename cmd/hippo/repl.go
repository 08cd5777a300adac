package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/hippo/compiler"
	"github.com/chazu/hippo/vm"
	"github.com/chzyer/readline"
)

// trackingWriter remembers whether the last byte written was a newline,
// so the REPL can keep its prompt on a fresh line.
type trackingWriter struct {
	w       io.Writer
	pending bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.pending = p[len(p)-1] != '\n'
	}
	return t.w.Write(p)
}

// runREPL starts an interactive read-eval-print loop. Every entry runs in
// the same global scope.
func runREPL(ctx context.Context, interp *vm.Interpreter, stdout io.Writer, disassemble bool) error {
	cfg := &readline.Config{
		Prompt:          "php> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.HistoryFile = filepath.Join(home, ".hippo_history")
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return err
	}
	defer rl.Close()

	out := &trackingWriter{w: stdout}
	interp.SetOutput(out)

	fmt.Fprintln(stdout, "hippo REPL (type 'exit' to quit, ':help' for commands)")

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt("php> ")
			continue
		}
		if err != nil { // io.EOF
			return nil
		}

		if buf.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "exit" || trimmed == "quit" {
				return nil
			}
			if strings.HasPrefix(trimmed, ":") {
				disassemble = handleREPLCommand(interp, stdout, trimmed, disassemble)
				continue
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
		if needsMore(buf.String()) {
			rl.SetPrompt("...> ")
			continue
		}
		input := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt("php> ")
		if input == "" {
			continue
		}

		evalAndPrint(ctx, interp, stdout, input, disassemble)
		if out.pending {
			fmt.Fprintln(stdout)
			out.pending = false
		}
	}
}

// evalAndPrint compiles one REPL entry and runs it.
func evalAndPrint(ctx context.Context, interp *vm.Interpreter, stdout io.Writer, input string, disassemble bool) {
	if !strings.HasSuffix(input, ";") && !strings.HasSuffix(input, "}") {
		input += ";"
	}
	unit, err := compiler.CompileSource("php shell code", "<?php "+input)
	if err != nil {
		fmt.Fprintf(stdout, "Parse error: %v\n", err)
		return
	}
	if disassemble {
		fmt.Fprint(stdout, vm.Disassemble(unit))
	}
	if err := interp.RunContext(ctx, unit); err != nil {
		fmt.Fprintln(stdout, err)
	}
}

// handleREPLCommand handles REPL meta-commands and returns the new
// disassembly setting.
func handleREPLCommand(interp *vm.Interpreter, w io.Writer, cmd string, disassemble bool) bool {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(w, "REPL Commands:")
		fmt.Fprintln(w, "  :help, :h, :?     Show this help")
		fmt.Fprintln(w, "  :vars             List global variables")
		fmt.Fprintln(w, "  :notices          Show and clear notices and warnings")
		fmt.Fprintln(w, "  :dis              Toggle bytecode listing")
		fmt.Fprintln(w, "  exit, quit        Exit REPL")
	case ":vars":
		for _, name := range interp.Globals().Names() {
			v, _ := interp.Global(name)
			fmt.Fprintf(w, "$%s = %s\n", name, vm.ReprConst(v))
		}
	case ":notices":
		for _, d := range interp.Notices() {
			fmt.Fprintln(w, d)
		}
		interp.ClearNotices()
	case ":dis":
		disassemble = !disassemble
		fmt.Fprintf(w, "bytecode listing %s\n", onOff(disassemble))
	default:
		fmt.Fprintf(w, "Unknown command: %s (try :help)\n", cmd)
	}
	return disassemble
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// needsMore reports whether src has unclosed brackets or an unterminated
// string, so the REPL should keep reading lines.
func needsMore(src string) bool {
	depth := 0
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '#':
			// Comment to end of line.
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				for i < len(src) && src[i] != '\n' {
					i++
				}
			}
		}
	}
	return depth > 0 || quote != 0
}
