package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"dtscript/internal/api"
	"dtscript/internal/compiler"
	"dtscript/internal/config"
	"dtscript/internal/syntax"
)

// errFailed reports a failure that has already been printed.
var errFailed = errors.New("failed")

// common holds the flags every command shares.
type common struct {
	configPath string
	schemaPath string
	lenient    bool
	verbose    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "TOML configuration file")
	fs.StringVar(&c.schemaPath, "schema", "", "schema file overriding the built-in one")
	fs.BoolVar(&c.lenient, "lenient", false, "skip lines with syntax errors instead of failing")
	fs.BoolVar(&c.verbose, "verbose", false, "debug logging")
}

// env is everything a command needs to compile scripts.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	syntax   *syntax.Manager
	registry *api.Registry
	compiler *compiler.Compiler
}

func newEnv(c common) (*env, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	log := newLogger(c.verbose)

	schemaPath := c.schemaPath
	if schemaPath == "" {
		schemaPath = cfg.Settings.Schema
	}
	schema := syntax.Default()
	if schemaPath != "" {
		s, err := syntax.LoadFile(schemaPath)
		if err != nil {
			return nil, err
		}
		schema = s
	}

	registry, err := api.NewRegistryFrom(schema, api.Builtins(), api.Aliases(cfg.Operations))
	if err != nil {
		return nil, err
	}
	// discovered names must lex as operations, not device commands
	mgr := syntax.NewManager(schema)
	mgr.RefreshOnce(registry.Specs())

	comp := compiler.NewCompiler(mgr, cfg, compiler.Options{
		Lenient:      !cfg.Settings.Strict || c.lenient,
		IncludePaths: cfg.Settings.IncludePaths,
		Logger:       log,
	})
	return &env{cfg: cfg, log: log, syntax: mgr, registry: registry, compiler: comp}, nil
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errFailed
		}
		return err
	}
	return nil
}

func needArgs(fs *flag.FlagSet, min int, w io.Writer) error {
	if fs.NArg() < min {
		fmt.Fprintf(w, "%s: expected at least %d script argument(s)\n", fs.Name(), min)
		fs.Usage()
		return errFailed
	}
	return nil
}
