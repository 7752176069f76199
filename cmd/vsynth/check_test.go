package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vectorsynth/vsynth"
)

func TestCheckCommand_Print(t *testing.T) {
	t.Run("EmptyResultWithHolesDoesNotVerify", func(t *testing.T) {
		// No single constant %h can equal %x for every input, so
		// synthesis yields an empty report and an empty assignment.
		tr := parseTransform(t, `
-- src --
%x = input i4
ret i4 %x
-- tgt --
%x = input i4
%h = hole i4
ret i4 %h
`)
		var buf bytes.Buffer
		cmd := NewCheckCommand()
		if err := cmd.print(&buf, tr, map[*vsynth.ConstantInput]vsynth.Expr{}, &vsynth.Errors{}); err == nil {
			t.Fatal("expected error")
		} else if got, want := buf.String(), "no constants found; transform does not verify\n"; got != want {
			t.Fatalf("output=%q, want %q", got, want)
		}
	})

	t.Run("EmptyResultWithoutHolesVerifies", func(t *testing.T) {
		tr := parseTransform(t, `
-- src --
%x = input i4
ret i4 %x
-- tgt --
%x = input i4
ret i4 %x
`)
		var buf bytes.Buffer
		cmd := NewCheckCommand()
		if err := cmd.print(&buf, tr, map[*vsynth.ConstantInput]vsynth.Expr{}, &vsynth.Errors{}); err != nil {
			t.Fatal(err)
		} else if got, want := buf.String(), "no constants to synthesize; transform verifies\n"; got != want {
			t.Fatalf("output=%q, want %q", got, want)
		}
	})

	t.Run("CounterexampleDoesNotVerify", func(t *testing.T) {
		tr := parseTransform(t, `
-- src --
%x = input i4
ret i4 %x
-- tgt --
%x = input i4
ret i4 %x
`)
		errs := &vsynth.Errors{}
		errs.Add("Source is more defined than target", true)

		var buf bytes.Buffer
		cmd := NewCheckCommand()
		if err := cmd.print(&buf, tr, map[*vsynth.ConstantInput]vsynth.Expr{}, errs); err == nil {
			t.Fatal("expected error")
		} else if !strings.Contains(buf.String(), "Source is more defined than target") {
			t.Fatalf("unexpected output: %q", buf.String())
		}
	})
}

func parseTransform(tb testing.TB, s string) *vsynth.Transform {
	tb.Helper()
	tr, err := vsynth.ParseTransform([]byte(strings.TrimPrefix(s, "\n")))
	if err != nil {
		tb.Fatal(err)
	}
	return tr
}
