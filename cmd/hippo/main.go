// hippo CLI - runs PHP scripts on the hippo bytecode VM
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/chazu/hippo/cache"
	"github.com/chazu/hippo/compiler"
	"github.com/chazu/hippo/manifest"
	"github.com/chazu/hippo/vm"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("hippo")

// options are the command line settings that override the manifest.
type options struct {
	interactive bool
	disassemble bool
	code        string
	configDir   string
	noCache     bool
	verbose     int
	trace       bool
	profile     bool
}

func main() {
	var opts options
	flag.BoolVar(&opts.interactive, "i", false, "Start interactive REPL")
	flag.BoolVar(&opts.disassemble, "d", false, "Print the compiled bytecode instead of running")
	flag.StringVar(&opts.code, "r", "", "Run code given on the command line (without <?php)")
	flag.StringVar(&opts.configDir, "config", "", "Directory holding hippo.toml (default: search upwards)")
	flag.BoolVar(&opts.noCache, "no-cache", false, "Bypass the compiled-unit cache")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.BoolVar(&opts.trace, "trace", false, "Log every executed instruction")
	flag.BoolVar(&opts.profile, "profile", false, "Print the most called functions on exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: hippo [options] [script.php]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a PHP script. Without a script, runs the manifest entry or starts the REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hippo index.php          # Run a script\n")
		fmt.Fprintf(os.Stderr, "  hippo -d index.php       # Show its bytecode\n")
		fmt.Fprintf(os.Stderr, "  hippo -r 'echo 1 + 2;'   # Run a snippet\n")
		fmt.Fprintf(os.Stderr, "  hippo -i                 # Start REPL\n")
	}
	flag.Parse()
	if *verbose {
		opts.verbose = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, opts, flag.Args(), os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, opts options, args []string, stdout, stderr io.Writer) int {
	script := ""
	if len(args) > 0 {
		script = args[0]
	}

	m, err := loadManifest(opts.configDir, script)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	configureLogging(m, opts)

	if script == "" && opts.code == "" && !opts.interactive {
		script = m.EntryPath()
	}

	var interpOpts []vm.Option
	interpOpts = append(interpOpts,
		vm.WithOutput(stdout),
		vm.WithMaxCallDepth(m.Runtime.MaxCallDepth),
		vm.WithTrace(m.Runtime.Trace || opts.trace),
		vm.WithStrictNotices(m.Runtime.StrictNotices),
	)
	var profiler *vm.Profiler
	if opts.profile {
		profiler = vm.NewProfiler()
		interpOpts = append(interpOpts, vm.WithProfiler(profiler))
	}
	interp := vm.NewInterpreter(interpOpts...)
	defer func() {
		if profiler != nil {
			printProfile(stderr, profiler)
		}
	}()

	switch {
	case opts.code != "":
		return report(stderr, execute(ctx, interp, nil, "Command line code", "<?php "+opts.code, opts.disassemble, stdout))
	case script != "":
		src, err := os.ReadFile(script)
		if err != nil {
			fmt.Fprintf(stderr, "Could not open input file: %s\n", script)
			return 1
		}
		var store *cache.Store
		if m.Cache.Enabled && !opts.noCache {
			store, err = cache.Open(m.CachePath())
			if err != nil {
				log.Warningf("cache disabled: %s", err)
			} else {
				defer store.Close()
			}
		}
		return report(stderr, execute(ctx, interp, store, script, string(src), opts.disassemble, stdout))
	default:
		if err := runREPL(ctx, interp, stdout, opts.disassemble); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
}

// loadManifest finds hippo.toml in dir, or searches upwards from the
// script's directory. Without one the defaults apply, still overlaid with
// the environment.
func loadManifest(dir, script string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	start := "."
	if script != "" {
		start = filepath.Dir(script)
	}
	m, err := manifest.FindAndLoad(start)
	if err != nil || m != nil {
		return m, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m = manifest.Default(cwd)
	if err := m.ApplyEnv(); err != nil {
		return nil, err
	}
	return m, nil
}

func configureLogging(m *manifest.Manifest, opts options) {
	verbosity := m.Log.Verbosity + opts.verbose
	if m.Runtime.Trace || opts.trace {
		verbosity = max(verbosity, 2)
	}
	if path := m.LogPath(); path != "" {
		commonlog.Configure(verbosity, &path)
		return
	}
	commonlog.Configure(verbosity, nil)
}

// execute compiles src, through the cache when store is non-nil, and
// either prints its bytecode or runs it.
func execute(ctx context.Context, interp *vm.Interpreter, store *cache.Store, name, src string, disassemble bool, stdout io.Writer) error {
	var (
		unit *vm.ByteCode
		err  error
	)
	if store != nil {
		var hit bool
		unit, hit, err = store.Compile(ctx, name, src, compiler.CompileSource)
		if err == nil {
			log.Debugf("%s: cache hit=%t", name, hit)
		}
	} else {
		unit, err = compiler.CompileSource(name, src)
	}
	if err != nil {
		return err
	}

	if disassemble {
		_, err := io.WriteString(stdout, vm.Disassemble(unit))
		return err
	}
	return interp.RunContext(ctx, unit)
}

// report prints a compile or runtime error and returns the exit code.
func report(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var ce *compiler.CompileError
	var re *vm.Error
	switch {
	case errors.As(err, &ce):
		fmt.Fprintf(stderr, "Parse error: %v\n", ce)
	case errors.As(err, &re):
		fmt.Fprintln(stderr, re.Error())
		if log.AllowLevel(commonlog.Info) {
			fmt.Fprint(stderr, re.Report())
		}
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 255
}

func printProfile(w io.Writer, p *vm.Profiler) {
	stats := p.Stats()
	fmt.Fprintf(w, "%d calls (%d user, %d builtin) to %d functions\n",
		stats.TotalCalls, stats.UserCalls, stats.BuiltinCalls, stats.Functions)
	for _, fp := range p.Top(10) {
		kind := "user"
		if fp.Builtin {
			kind = "builtin"
		}
		fmt.Fprintf(w, "  %8d  %s() [%s]\n", fp.Calls, fp.Name, kind)
	}
}
