// internal/compiler/compiler.go
package compiler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"dtscript/internal/bytecode"
	"dtscript/internal/errors"
	"dtscript/internal/lexer"
	"dtscript/internal/parser"
	"dtscript/internal/syntax"
)

type Options struct {
	Lenient      bool
	IncludePaths []string
	Logger       *slog.Logger
}

// Compiler turns script files into CompiledScripts and caches them by
// resolved path. Concurrent requests for one path share a single
// compilation; different paths compile in parallel.
type Compiler struct {
	syntax *syntax.Manager
	vars   Lookup
	opts   Options
	log    *slog.Logger

	mu      sync.RWMutex
	cache   map[string]*bytecode.CompiledScript
	flights singleflight.Group
}

func NewCompiler(m *syntax.Manager, vars Lookup, opts Options) *Compiler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Compiler{
		syntax: m,
		vars:   vars,
		opts:   opts,
		log:    log,
		cache:  make(map[string]*bytecode.CompiledScript),
	}
}

// CompileFile compiles path and every script it includes.
func (c *Compiler) CompileFile(path string) (*bytecode.CompiledScript, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "resolve script path")
	}
	script, err := c.compileOne(abs)
	if err != nil {
		return nil, err
	}
	if err := c.compileIncludes(script, []string{abs}); err != nil {
		return nil, err
	}
	return script, nil
}

// Load satisfies the executor's loader: it returns the cached script for an
// include target.
func (c *Compiler) Load(path string) (*bytecode.CompiledScript, error) {
	return c.CompileFile(path)
}

// CompileSource compiles text that does not live in the cache, such as a
// script read from stdin. name is used for diagnostics and to resolve
// relative includes.
func (c *Compiler) CompileSource(name, source string) (*bytecode.CompiledScript, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "resolve script path")
	}
	script, err := c.compileSource(abs, source)
	if err != nil {
		return nil, err
	}
	if err := c.compileIncludes(script, []string{abs}); err != nil {
		return nil, err
	}
	return script, nil
}

// Cached reports whether path has a cached compilation.
func (c *Compiler) Cached(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cache[abs]
	return ok
}

func (c *Compiler) compileOne(path string) (*bytecode.CompiledScript, error) {
	c.mu.RLock()
	if script, ok := c.cache[path]; ok {
		c.mu.RUnlock()
		return script, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.flights.Do(path, func() (any, error) {
		c.mu.RLock()
		script, ok := c.cache[path]
		c.mu.RUnlock()
		if ok {
			return script, nil
		}

		source, err := os.ReadFile(path)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "read script %s", path)
		}
		script, err = c.compileSource(path, string(source))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[path] = script
		c.mu.Unlock()
		return script, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bytecode.CompiledScript), nil
}

// compileIncludes walks the include graph outside of any flight so that a
// cycle is reported instead of waiting on itself.
func (c *Compiler) compileIncludes(script *bytecode.CompiledScript, chain []string) error {
	for _, inc := range script.Includes {
		if slices.Contains(chain, inc.Resolved) {
			cycle := append(slices.Clone(chain), inc.Resolved)
			return errors.NewSyntaxError(
				fmt.Sprintf("circular include: %s", strings.Join(cycle, " -> ")),
				script.Path, inc.Line)
		}
		child, err := c.compileOne(inc.Resolved)
		if err == nil {
			err = c.compileIncludes(child, append(slices.Clone(chain), inc.Resolved))
		}
		if err != nil {
			if se, ok := errors.As(err); ok {
				// flights hand the same error to every waiter
				framed := *se
				framed.CallStack = slices.Clone(se.CallStack)
				return framed.AddStackFrame(script.Path, inc.Line, -1)
			}
			return pkgerrors.Wrapf(err, "%s:%d: include %s", script.Path, inc.Line, inc.Raw)
		}
	}
	return nil
}

func (c *Compiler) compileSource(path, source string) (*bytecode.CompiledScript, error) {
	schema := c.syntax.Schema()

	lines := strings.Split(source, "\n")
	lex := lexer.New(schema)
	var tokens []lexer.Token
	for i, line := range lines {
		tokens = append(tokens, lex.Tokenize(expandLine(line, c.vars), i+1)...)
	}

	p := parser.NewParser(schema, parser.Options{Lenient: c.opts.Lenient, Logger: c.log}).WithSource(source)
	script, err := p.Parse(path, tokens)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]string, len(script.Includes))
	for i := range script.Includes {
		inc := &script.Includes[i]
		target, err := c.resolveInclude(path, *inc)
		if err != nil {
			return nil, err
		}
		inc.Resolved = target
		resolved[inc.Raw] = target
	}
	for _, code := range script.Instructions {
		if code.Op == bytecode.OpInclude {
			code.Params[0] = resolved[code.Params[0].(string)]
		}
	}

	c.log.Debug("compiled script", "path", path, "instructions", script.Len(),
		"sections", len(script.Sections), "includes", len(script.Includes))
	return script, nil
}

func (c *Compiler) resolveInclude(file string, inc bytecode.IncludeRef) (string, error) {
	rel, err := expandIncludePath(inc.Raw, file, inc.Line, c.vars)
	if err != nil {
		return "", err
	}

	var candidates []string
	if filepath.IsAbs(rel) {
		candidates = []string{rel}
	} else {
		candidates = append(candidates, filepath.Join(filepath.Dir(file), rel))
		for _, dir := range c.opts.IncludePaths {
			candidates = append(candidates, filepath.Join(dir, rel))
		}
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", pkgerrors.Wrap(err, "resolve include")
		}
		return abs, nil
	}
	return "", errors.NewSyntaxError(fmt.Sprintf("include '%s' not found (resolved to '%s')", inc.Raw, rel), file, inc.Line)
}
