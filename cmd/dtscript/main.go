// cmd/dtscript/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

const VERSION = "0.3.0"

// Build variables - can be set during build with ldflags
var (
	BuildDate = time.Now().Format("2006-01-02")
	GitCommit = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "help", "--help", "-h":
		showUsage()
		return
	case "version", "--version", "-v":
		showVersion()
		return
	case "run":
		err = runCommand(args[1:])
	case "dump":
		err = dumpCommand(args[1:])
	case "check":
		err = checkCommand(args[1:])
	case "tokens":
		err = tokensCommand(args[1:])
	case "schema":
		err = schemaCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		showUsage()
		os.Exit(2)
	}

	if err != nil {
		if err != errFailed {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func showUsage() {
	fmt.Println("dtscript - device test script compiler and runner")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dtscript run [flags] <script>...    Compile and execute scripts")
	fmt.Println("  dtscript dump [flags] <script>      Print the compiled VM code")
	fmt.Println("  dtscript check [flags] <script>...  Compile without running")
	fmt.Println("  dtscript tokens [flags] <script>    Print the token stream")
	fmt.Println("  dtscript schema [flags]             List operations and keywords")
	fmt.Println("  dtscript version                    Show version information")
	fmt.Println()
	fmt.Println("Run 'dtscript <command> -h' for the flags of a command.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  dtscript run -config lab.toml -simulate smoke.dts")
	fmt.Println("  dtscript run -parallel 4 -format junit suites/*.dts > report.xml")
	fmt.Println("  dtscript dump boot.dts")
}

func showVersion() {
	fmt.Printf("dtscript %s (commit %s, built %s)\n", VERSION, GitCommit, BuildDate)
}
