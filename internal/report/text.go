package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"dtscript/internal/results"
)

const (
	green  = "\033[32m"
	red    = "\033[31m"
	yellow = "\033[33m"
	reset  = "\033[0m"
)

type TextOptions struct {
	Out     io.Writer
	Verbose bool
	// Color forces colour on or off; nil decides from the terminal.
	Color *bool
}

// Text prints human-readable results.
type Text struct {
	out     io.Writer
	verbose bool
	color   bool
}

func NewText(opts TextOptions) *Text {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	color := false
	if opts.Color != nil {
		color = *opts.Color
	} else if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Text{out: out, verbose: opts.Verbose, color: color}
}

func (r *Text) paint(color, s string) string {
	if !r.color {
		return s
	}
	return color + s + reset
}

func (r *Text) RunFinished(run *Run) {
	symbol, color := "✓", green
	if !run.Passed() {
		symbol, color = "✗", red
	}
	fmt.Fprintf(r.out, "%s %s (%s)\n", r.paint(color, symbol), run.Script, formatDuration(run.Duration()))

	for _, res := range run.Results {
		switch {
		case res.Outcome == results.Fail:
			fmt.Fprintf(r.out, "  %s line %d: %s %s\n", r.paint(red, "✗"), res.Line, res.Op, res.Detail)
		case r.verbose && res.Outcome == results.Pass:
			fmt.Fprintf(r.out, "  %s line %d: %s %s\n", r.paint(green, "✓"), res.Line, res.Op, res.Detail)
		case r.verbose:
			fmt.Fprintf(r.out, "  %s line %d: %s\n", r.paint(yellow, "·"), res.Line, res.Detail)
		}
	}
	if run.Err != nil {
		for _, line := range strings.Split(run.Err.Error(), "\n") {
			fmt.Fprintf(r.out, "  %s\n", line)
		}
	}
}

func (r *Text) Summary(stats *Stats) {
	fmt.Fprintf(r.out, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(r.out, "Scripts:   %s\n", humanize.Comma(int64(stats.Runs)))
	if stats.Passed > 0 {
		fmt.Fprintf(r.out, "%s\n", r.paint(green, fmt.Sprintf("Passed:    %s", humanize.Comma(int64(stats.Passed)))))
	}
	if stats.Failed > 0 {
		fmt.Fprintf(r.out, "%s\n", r.paint(red, fmt.Sprintf("Failed:    %s", humanize.Comma(int64(stats.Failed)))))
	}
	fmt.Fprintf(r.out, "Checks:    %s (%s failed)\n", humanize.Comma(int64(stats.Checks)), humanize.Comma(int64(stats.CheckFail)))
	fmt.Fprintf(r.out, "Time:      %s\n", formatDuration(stats.TotalTime))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Microsecond).String()
	}
	return humanize.FtoaWithDigits(d.Seconds(), 2) + "s"
}
