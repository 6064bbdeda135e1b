package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dtscript/internal/config"
	"dtscript/internal/device"
	"dtscript/internal/report"
	"dtscript/internal/results"
	"dtscript/internal/vm"
)

type runFlags struct {
	common
	simulate bool
	trace    bool
	format   string
	parallel int
	missing  string
	vars     map[string]string
}

func runCommand(args []string) error {
	f := runFlags{vars: map[string]string{}}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	f.register(fs)
	fs.BoolVar(&f.simulate, "simulate", false, "run against a simulated device instead of the configured endpoints")
	fs.BoolVar(&f.trace, "trace", false, "print every instruction before it runs")
	fs.StringVar(&f.format, "format", "text", "report format: text, json or junit")
	fs.IntVar(&f.parallel, "parallel", 1, "scripts to run at once")
	fs.StringVar(&f.missing, "missing", "", "unset variable policy: ignore, warn or error")
	fs.Func("var", "initial runtime variable name=value (repeatable)", func(s string) error {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return fmt.Errorf("expected name=value, got %q", s)
		}
		f.vars[name] = value
		return nil
	})
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, os.Stderr); err != nil {
		return err
	}

	e, err := newEnv(f.common)
	if err != nil {
		return err
	}
	policy := e.cfg.Settings.MissingVariable
	if f.missing != "" {
		policy = config.MissingPolicy(f.missing)
		switch policy {
		case config.MissingIgnore, config.MissingWarn, config.MissingError:
		default:
			return fmt.Errorf("invalid -missing %q", f.missing)
		}
	}
	rep, ok := report.New(f.format, report.TextOptions{Out: os.Stdout, Verbose: f.verbose})
	if !ok {
		return fmt.Errorf("unknown report format %q", f.format)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	mem := results.NewMemory()
	var recorder results.Recorder = mem
	if e.cfg.Results.DSN != "" {
		store, err := results.Open(ctx, e.cfg.Results.Driver, e.cfg.Results.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = results.Multi(mem, store)
	}

	scripts := fs.Args()
	runs := make([]*report.Run, len(scripts))
	g, gctx := errgroup.WithContext(ctx)
	if f.parallel > 0 {
		g.SetLimit(f.parallel)
	}
	for i, path := range scripts {
		g.Go(func() error {
			runs[i] = e.runScript(gctx, path, f, policy, recorder, mem)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := false
	for _, run := range runs {
		rep.RunFinished(run)
		failed = failed || !run.Passed()
	}
	rep.Summary(report.NewStats(runs))
	if failed {
		return errFailed
	}
	return nil
}

// runScript compiles and executes one script with its own session and
// executor.
func (e *env) runScript(ctx context.Context, path string, f runFlags, policy config.MissingPolicy, rec results.Recorder, mem *results.Memory) *report.Run {
	run := &report.Run{ID: uuid.NewString(), Script: path, Start: time.Now()}
	defer func() {
		run.End = time.Now()
		run.Results = mem.Results(run.ID)
	}()

	script, err := e.compiler.CompileFile(path)
	if err != nil {
		run.Err = err
		return run
	}

	session, closeSession := e.session(f.simulate)
	defer closeSession()

	opts := []vm.Option{
		vm.WithSession(session),
		vm.WithRegistry(e.registry),
		vm.WithLoader(e.compiler),
		vm.WithRecorder(rec),
		vm.WithLogger(e.log.With("script", filepath.Base(path), "run", run.ID)),
		vm.WithMissingPolicy(policy),
		vm.WithRunID(run.ID),
		vm.WithVars(f.vars),
	}
	if f.trace {
		opts = append(opts, vm.WithHook(vm.NewTracer(os.Stderr, filepath.Base(path))))
	}
	run.Err = vm.New(script, opts...).Run(ctx)
	return run
}

func (e *env) session(simulate bool) (device.Session, func()) {
	if simulate {
		return device.NewSimulated(), func() {}
	}
	urls := make(map[string]string, len(e.cfg.Devices))
	for name, d := range e.cfg.Devices {
		urls[name] = d.URL
	}
	ws := device.NewWebSocket(urls)
	return ws, func() {
		if err := ws.Close(); err != nil {
			e.log.Warn("closing device connections", "error", err)
		}
	}
}
