package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"dtscript/internal/lexer"
	"dtscript/internal/syntax"
)

func dumpCommand(args []string) error {
	var c common
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	c.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, os.Stderr); err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	script, err := e.compiler.CompileFile(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Print(script.Dump())
	return nil
}

func checkCommand(args []string) error {
	var c common
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	c.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, os.Stderr); err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}

	failed := false
	for _, path := range fs.Args() {
		script, err := e.compiler.CompileFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n\n", err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok (%d instructions, %d includes)\n", path, script.Len(), len(script.Includes))
	}
	if failed {
		return errFailed
	}
	return nil
}

func tokensCommand(args []string) error {
	var c common
	fs := flag.NewFlagSet("tokens", flag.ContinueOnError)
	c.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, os.Stderr); err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	for _, tok := range lexer.New(e.syntax.Schema()).TokenizeSource(string(src)) {
		fmt.Println(tok)
	}
	return nil
}

func schemaCommand(args []string) error {
	var c common
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	c.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	s := e.syntax.Schema()

	fmt.Println("Operations:")
	for _, name := range sortedNames(s.OperationNames()) {
		op, _ := s.Operation(name)
		fmt.Printf("  %-10s %-10s %s\n", name, op.Mode, describeParams(op))
	}
	fmt.Println()
	fmt.Println("Keywords:")
	for _, name := range sortedNames(s.KeywordNames()) {
		kw, _ := s.Keyword(name)
		fmt.Printf("  <%s>  %s -> %s\n", name, kw.Kind, kw.Op())
	}
	return nil
}

func describeParams(op *syntax.OperationSpec) string {
	parts := make([]string, 0, len(op.Params))
	for _, p := range op.Params {
		s := p.Alias
		if op.Mode == syntax.Options {
			s = "-" + s
		}
		if p.Type == syntax.TypeInt {
			s += ":int"
		}
		if p.Rest {
			s += "..."
		}
		if p.Default != nil {
			s += fmt.Sprintf("=%v", p.Default)
		}
		if !p.Required {
			s = "[" + s + "]"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func sortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
