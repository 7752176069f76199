package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/vectorsynth/vsynth"
	"github.com/vectorsynth/vsynth/z3"
)

// CheckCommand represents a command for checking a transform file.
type CheckCommand struct{}

// NewCheckCommand returns a new instance of CheckCommand.
func NewCheckCommand() *CheckCommand {
	return &CheckCommand{}
}

// Run executes the "check" subcommand.
func (cmd *CheckCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("vsynth-check", flag.ContinueOnError)
	disableUndefInput := fs.Bool("disable-undef-input", false, "assume undef cannot flow into hole constants")
	disablePoisonInput := fs.Bool("disable-poison-input", false, "assume poison cannot flow into hole constants")
	eachVar := fs.Bool("each-var", false, "report each intermediate variable at most once")
	debug := fs.Bool("debug", false, "dump constraints and synthesized constants to stderr")
	timeout := fs.Duration("timeout", time.Minute, "per-query solver timeout (0 for none)")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("transform file required")
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many transform files specified")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	t, err := vsynth.ParseTransform(data)
	if err != nil {
		return err
	}

	solver := z3.NewSolver()
	defer solver.Close()
	solver.Timeout = *timeout

	cs := vsynth.NewConstantSynth(t, solver)
	cs.CheckEachVar = *eachVar
	cs.DisableUndefInput = *disableUndefInput
	cs.DisablePoisonInput = *disablePoisonInput
	if *debug {
		cs.DebugWriter = os.Stderr
	}

	result := make(map[*vsynth.ConstantInput]vsynth.Expr)
	errs := cs.Synthesize(result)
	return cmd.print(os.Stdout, t, result, errs)
}

// print renders the synthesis outcome: either the constant assignment or
// every recorded failure.
func (cmd *CheckCommand) print(w io.Writer, t *vsynth.Transform, result map[*vsynth.ConstantInput]vsynth.Expr, errs *vsynth.Errors) error {
	if !errs.IsEmpty() {
		for _, e := range errs.List() {
			fmt.Fprintln(w, e.Msg)
		}
		if errs.Counterexample() {
			return fmt.Errorf("transform does not verify")
		}
		return fmt.Errorf("transform could not be verified")
	}

	if len(result) == 0 {
		if len(t.Tgt.Holes()) > 0 {
			fmt.Fprintln(w, "no constants found; transform does not verify")
			return fmt.Errorf("transform does not verify")
		}
		fmt.Fprintln(w, "no constants to synthesize; transform verifies")
		return nil
	}

	holes := make([]*vsynth.ConstantInput, 0, len(result))
	for hole := range result {
		holes = append(holes, hole)
	}
	sort.Slice(holes, func(i, j int) bool { return holes[i].Name() < holes[j].Name() })

	for _, hole := range holes {
		value := result[hole]
		if c, ok := value.(*vsynth.ConstantExpr); ok {
			fmt.Fprintf(w, "%s = %s\n", hole.Name(), hole.Type().FormatVal(c))
		} else {
			fmt.Fprintf(w, "%s = %v\n", hole.Name(), value)
		}
	}
	return nil
}

func (cmd *CheckCommand) usage() {
	fmt.Fprintln(os.Stderr, `
Synthesize the hole constants of a transform and verify refinement.

Usage:

	vsynth check [arguments] FILE

FILE is a txtar archive with a "src" and a "tgt" function.

Arguments:

	-disable-undef-input
		assume undef cannot flow into hole constants
	-disable-poison-input
		assume poison cannot flow into hole constants
	-each-var
		report each intermediate variable at most once
	-debug
		dump constraints and synthesized constants to stderr
	-timeout duration
		per-query solver timeout (default 1m, 0 for none)
`[1:])
}
