package vsynth

import "io"

// Hooks for tests in the vsynth_test package.
var Preprocess = preprocess

// RenderVarVal renders sv the way counterexample reports do.
func RenderVarVal(w io.Writer, s Solver, m *Model, v Value, typ Type, sv StateValue) {
	p := &valuePrinter{solver: s, m: m}
	p.printVarVal(w, v, typ, sv)
}
