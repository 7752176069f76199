package vsynth_test

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/vectorsynth/vsynth"
)

// fakeSolver replays a scripted sequence of verdicts.
type fakeSolver struct {
	results []vsynth.Result
}

func (s *fakeSolver) Check(queries []vsynth.Query) {
	for _, q := range queries {
		if len(s.results) == 0 {
			panic("fakeSolver: no scripted result left")
		}
		r := s.results[0]
		s.results = s.results[1:]
		q.Callback(r)
	}
}

// enumSolver decides small formulas by exhaustive enumeration. Quantifiers
// are expanded over their full domains, so only narrow bit widths are
// tractable.
type enumSolver struct{}

func (enumSolver) Check(queries []vsynth.Query) {
	for _, q := range queries {
		q.Callback(checkEnum(q.Formula))
	}
}

func checkEnum(f vsynth.Expr) vsynth.Result {
	vars := vsynth.Vars(f)
	var total uint
	for _, v := range vars {
		total += v.Width
	}
	if total > 20 {
		panic(fmt.Sprintf("formula too wide to enumerate: %s", f))
	}

	assign := make(map[string]*vsynth.ConstantExpr, len(vars))
	var solve func(i int) bool
	solve = func(i int) bool {
		if i == len(vars) {
			e := f
			for _, v := range vars {
				e = vsynth.Subst(e, v, assign[v.Name])
			}
			return evalClosed(e)
		}
		v := vars[i]
		for val := uint64(0); val < 1<<v.Width; val++ {
			assign[v.Name] = vsynth.NewConstantExpr(val, v.Width)
			if solve(i + 1) {
				return true
			}
		}
		return false
	}

	if solve(0) {
		m := vsynth.NewModel(nil)
		for name, c := range assign {
			m.Set(name, c)
		}
		return vsynth.Sat{Model: m}
	}
	return vsynth.Unsat{}
}

// evalClosed evaluates a formula with no free variables.
func evalClosed(e vsynth.Expr) bool {
	switch e := e.(type) {
	case *vsynth.ConstantExpr:
		return e.IsTrue()
	case *vsynth.ForAllExpr:
		var all func(i int, body vsynth.Expr) bool
		all = func(i int, body vsynth.Expr) bool {
			if i == len(e.Vars) {
				return evalClosed(body)
			}
			v := e.Vars[i]
			for val := uint64(0); val < 1<<v.Width; val++ {
				if !all(i+1, vsynth.Subst(body, v, vsynth.NewConstantExpr(val, v.Width))) {
					return false
				}
			}
			return true
		}
		return all(0, e.Body)
	default:
		panic(fmt.Sprintf("non-constant closed formula: %s", e))
	}
}

// identityTransform returns a transform whose target trivially refines its
// source. Useful when only the verdict dispatch is under test.
func identityTransform(tb testing.TB) *vsynth.Transform {
	tb.Helper()
	i8 := vsynth.NewIntType(8)

	mkFn := func() *vsynth.Function {
		x := vsynth.NewInput("x", i8)
		return &vsynth.Function{
			FnName:  "f",
			RetType: i8,
			Inputs:  []vsynth.Value{x},
			Instrs:  []*vsynth.Instr{vsynth.NewRet(x)},
		}
	}
	return &vsynth.Transform{Name: "id", Src: mkFn(), Tgt: mkFn()}
}

func TestConstantSynth_Synthesize_Dispatch(t *testing.T) {
	run := func(results ...vsynth.Result) (*vsynth.Errors, map[*vsynth.ConstantInput]vsynth.Expr) {
		cs := vsynth.NewConstantSynth(identityTransform(t), &fakeSolver{results: results})
		consts := make(map[*vsynth.ConstantInput]vsynth.Expr)
		return cs.Synthesize(consts), consts
	}

	t.Run("UnsatRecordsNothing", func(t *testing.T) {
		errs, consts := run(vsynth.Unsat{}, vsynth.Unsat{})
		if !errs.IsEmpty() {
			t.Fatalf("unexpected errors: %s", errs)
		}
		if len(consts) != 0 {
			t.Fatalf("unexpected constants: %v", consts)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		errs, consts := run(vsynth.Unsat{}, vsynth.Timeout{})
		list := errs.List()
		if len(list) != 1 || list[0].Msg != "Timeout" || list[0].IsCounterexample {
			t.Fatalf("unexpected errors: %#v", list)
		}
		if len(consts) != 0 {
			t.Fatalf("unexpected constants: %v", consts)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		errs, _ := run(vsynth.Invalid{}, vsynth.Unsat{})
		list := errs.List()
		if len(list) != 1 || list[0].Msg != "Invalid expr" || list[0].IsCounterexample {
			t.Fatalf("unexpected errors: %#v", list)
		}
	})

	t.Run("SolverError", func(t *testing.T) {
		errs, _ := run(vsynth.Unsat{}, vsynth.SolverError{Reason: "unknown sort"})
		list := errs.List()
		if len(list) != 1 || list[0].Msg != "SMT Error: unknown sort" {
			t.Fatalf("unexpected errors: %#v", list)
		}
	})

	t.Run("Skipped", func(t *testing.T) {
		errs, _ := run(vsynth.Skipped{}, vsynth.Skipped{})
		list := errs.List()
		if len(list) != 2 || list[0].Msg != "Skip" || list[1].Msg != "Skip" {
			t.Fatalf("unexpected errors: %#v", list)
		}
		if errs.Counterexample() {
			t.Fatalf("tooling failures are not counterexamples")
		}
	})

	t.Run("BothFailuresAccumulate", func(t *testing.T) {
		errs, _ := run(vsynth.Timeout{}, vsynth.SolverError{Reason: "x"})
		if got := len(errs.List()); got != 2 {
			t.Fatalf("unexpected error count: %d", got)
		}
	})
}

func TestConstantSynth_Synthesize_Constant(t *testing.T) {
	i4 := vsynth.NewIntType(4)

	srcX := vsynth.NewInput("x", i4)
	srcAdd := vsynth.NewBinOp("r", vsynth.ADD, false, srcX, vsynth.NewLiteral(i4, 3))
	src := &vsynth.Function{
		FnName:  "src",
		RetType: i4,
		Inputs:  []vsynth.Value{srcX},
		Instrs:  []*vsynth.Instr{srcAdd, vsynth.NewRet(srcAdd)},
	}

	tgtX := vsynth.NewInput("x", i4)
	hole := vsynth.NewHole("h", i4)
	tgtAdd := vsynth.NewBinOp("r", vsynth.ADD, false, tgtX, hole)
	tgt := &vsynth.Function{
		FnName:  "tgt",
		RetType: i4,
		Inputs:  []vsynth.Value{tgtX, hole},
		Instrs:  []*vsynth.Instr{tgtAdd, vsynth.NewRet(tgtAdd)},
	}

	var debug bytes.Buffer
	cs := vsynth.NewConstantSynth(&vsynth.Transform{Name: "add-const", Src: src, Tgt: tgt}, enumSolver{})
	cs.DebugWriter = &debug

	consts := make(map[*vsynth.ConstantInput]vsynth.Expr)
	errs := cs.Synthesize(consts)
	if !errs.IsEmpty() {
		t.Fatalf("unexpected errors: %s", errs)
	}

	got, ok := consts[hole]
	if !ok {
		t.Fatalf("hole not synthesized: %v", consts)
	}
	if c, ok := got.(*vsynth.ConstantExpr); !ok || c.Value != 3 {
		t.Fatalf("unexpected constant: %s", got)
	}

	if !strings.Contains(debug.String(), ";result\n") {
		t.Fatalf("expected synthesized constants in debug output:\n%s", debug.String())
	}
	if !strings.Contains(debug.String(), "Value Constraints") {
		t.Fatalf("expected constraint dump in debug output:\n%s", debug.String())
	}
}

func TestConstantSynth_Synthesize_DomainCounterexample(t *testing.T) {
	i8 := vsynth.NewIntType(8)

	mkSrc := func() *vsynth.Function {
		x := vsynth.NewInput("x", i8)
		return &vsynth.Function{
			FnName:  "src",
			RetType: i8,
			Inputs:  []vsynth.Value{x},
			Instrs:  []*vsynth.Instr{vsynth.NewRet(x)},
		}
	}
	mkTgt := func() *vsynth.Function {
		x := vsynth.NewInput("x", i8)
		cmp := vsynth.NewICmp("b", vsynth.NE, x, vsynth.NewLiteral(i8, 42))
		return &vsynth.Function{
			FnName:  "tgt",
			RetType: i8,
			Inputs:  []vsynth.Value{x},
			Instrs:  []*vsynth.Instr{cmp, vsynth.NewAssume(cmp), vsynth.NewRet(x)},
		}
	}

	t.Run("FullSections", func(t *testing.T) {
		cs := vsynth.NewConstantSynth(&vsynth.Transform{Name: "narrow", Src: mkSrc(), Tgt: mkTgt()}, enumSolver{})
		errs := cs.Synthesize(make(map[*vsynth.ConstantInput]vsynth.Expr))

		list := errs.List()
		if len(list) != 1 {
			t.Fatalf("unexpected errors: %#v", list)
		}
		if !list[0].IsCounterexample {
			t.Fatalf("expected counterexample")
		}
		msg := list[0].Msg
		for _, want := range []string{
			"Source is more defined than target",
			"\n\nExample:\n",
			"i8 %x = 42\n",
			"\nSource:\n",
			"\nTarget:\n",
		} {
			if !strings.Contains(msg, want) {
				t.Fatalf("missing %q in counterexample:\n%s", want, msg)
			}
		}
	})

	t.Run("CheckEachVar", func(t *testing.T) {
		cs := vsynth.NewConstantSynth(&vsynth.Transform{Name: "narrow", Src: mkSrc(), Tgt: mkTgt()}, enumSolver{})
		cs.CheckEachVar = true
		errs := cs.Synthesize(make(map[*vsynth.ConstantInput]vsynth.Expr))

		list := errs.List()
		if len(list) != 1 {
			t.Fatalf("unexpected errors: %#v", list)
		}
		msg := list[0].Msg
		if strings.Contains(msg, "Source:") || strings.Contains(msg, "Target:") {
			t.Fatalf("unexpected section headers:\n%s", msg)
		}
		if got := strings.Count(msg, "%b ="); got != 1 {
			t.Fatalf("expected %%b reported once, got %d:\n%s", got, msg)
		}
	})
}

func TestConstantSynth_Synthesize_FromConstantInput(t *testing.T) {
	// The target's hole must take whatever value the source's symbolic
	// constant is pinned to.
	tr, err := vsynth.ParseTransform([]byte(`-- src --
%c = constinput i4
%b = icmp eq i4 %c, 5
assume i1 %b
ret i4 %c
-- tgt --
%h = hole i4
ret i4 %h
`))
	if err != nil {
		t.Fatal(err)
	}

	cs := vsynth.NewConstantSynth(tr, enumSolver{})
	consts := make(map[*vsynth.ConstantInput]vsynth.Expr)
	if errs := cs.Synthesize(consts); !errs.IsEmpty() {
		t.Fatalf("unexpected errors: %s", errs)
	}

	holes := tr.Tgt.Holes()
	if len(holes) != 1 {
		t.Fatalf("unexpected hole count: %d", len(holes))
	}
	if c, ok := consts[holes[0]].(*vsynth.ConstantExpr); !ok || c.Value != 5 {
		t.Fatalf("unexpected constant: %s", consts[holes[0]])
	}
}

func TestConstantSynth_Synthesize_Fixture(t *testing.T) {
	data, err := os.ReadFile("testdata/fold_add.txtar")
	if err != nil {
		t.Fatal(err)
	}
	tr, err := vsynth.ParseTransform(data)
	if err != nil {
		t.Fatal(err)
	}

	cs := vsynth.NewConstantSynth(tr, enumSolver{})
	consts := make(map[*vsynth.ConstantInput]vsynth.Expr)
	if errs := cs.Synthesize(consts); !errs.IsEmpty() {
		t.Fatalf("unexpected errors: %s", errs)
	}

	holes := tr.Tgt.Holes()
	if len(holes) != 1 {
		t.Fatalf("unexpected hole count: %d", len(holes))
	}
	if c, ok := consts[holes[0]].(*vsynth.ConstantExpr); !ok || c.Value != 3 {
		t.Fatalf("unexpected constant: %s", consts[holes[0]])
	}
}

func TestConstantSynth_Synthesize_Verifies(t *testing.T) {
	// Identical programs refine each other with no holes to fill.
	cs := vsynth.NewConstantSynth(identityTransform(t), enumSolver{})
	consts := make(map[*vsynth.ConstantInput]vsynth.Expr)
	errs := cs.Synthesize(consts)
	if !errs.IsEmpty() {
		t.Fatalf("unexpected errors: %s", errs)
	}
	if len(consts) != 0 {
		t.Fatalf("unexpected constants: %v", consts)
	}
}

func TestPreprocess(t *testing.T) {
	t.Run("MemoryPressureShortCircuits", func(t *testing.T) {
		ectx := vsynth.NewExecutionContext()
		ectx.MemoryPressure = func() bool { return true }

		x := vsynth.NewVarExpr("x", 4)
		e := vsynth.NewBinaryExpr(vsynth.ULT, x, vsynth.NewConstantExpr(5, 4))
		got := vsynth.Preprocess(ectx, nil, []*vsynth.VarExpr{x}, nil, e, false, false)
		want := vsynth.NewForAllExpr([]*vsynth.VarExpr{x}, e)
		if vsynth.CompareExpr(got, want) != 0 {
			t.Fatalf("unexpected formula: %s", got)
		}
	})

	t.Run("EliminatesBooleanQuantifiers", func(t *testing.T) {
		b := vsynth.NewVarExpr("b", 1)
		c := vsynth.NewVarExpr("c", 1)
		e := vsynth.NewBinaryExpr(vsynth.OR, b, c)

		// forall b. b || c is equivalent to c.
		got := vsynth.Preprocess(vsynth.NewExecutionContext(), nil, []*vsynth.VarExpr{b}, nil, e, false, false)
		if got != vsynth.Expr(c) {
			t.Fatalf("unexpected formula: %s", got)
		}
	})

	t.Run("NoUndefVarsQuantifiesDirectly", func(t *testing.T) {
		x := vsynth.NewVarExpr("x", 4)
		e := vsynth.NewBinaryExpr(vsynth.ULT, x, vsynth.NewConstantExpr(5, 4))
		got := vsynth.Preprocess(vsynth.NewExecutionContext(), nil, []*vsynth.VarExpr{x}, nil, e, false, false)
		if _, ok := got.(*vsynth.ForAllExpr); !ok {
			t.Fatalf("unexpected formula: %s", got)
		}
	})

	i4 := vsynth.NewIntType(4)
	undef := []*vsynth.VarExpr{vsynth.NewVarExpr("undef!0", 4)}

	t.Run("InstantiatesTypeTags", func(t *testing.T) {
		hole := vsynth.NewHole("h", i4)
		e := vsynth.NewBinaryExpr(vsynth.EQ, hole.TyVar(), vsynth.NewConstantExpr(1, 2))

		got := vsynth.Preprocess(vsynth.NewExecutionContext(), []*vsynth.ConstantInput{hole}, nil, undef, e, false, false)
		// The only surviving branch is the undef tag, guarded by it.
		if vsynth.CompareExpr(got, e) != 0 {
			t.Fatalf("unexpected formula: %s", got)
		}
	})

	t.Run("DisableUndefDropsBranch", func(t *testing.T) {
		hole := vsynth.NewHole("h", i4)
		e := vsynth.NewBinaryExpr(vsynth.EQ, hole.TyVar(), vsynth.NewConstantExpr(1, 2))

		got := vsynth.Preprocess(vsynth.NewExecutionContext(), []*vsynth.ConstantInput{hole}, nil, undef, e, true, false)
		if !vsynth.IsConstantFalse(got) {
			t.Fatalf("unexpected formula: %s", got)
		}
	})

	t.Run("DisablePoisonDropsBranch", func(t *testing.T) {
		hole := vsynth.NewHole("h", i4)
		e := vsynth.NewBinaryExpr(vsynth.EQ, hole.TyVar(), vsynth.NewConstantExpr(2, 2))

		got := vsynth.Preprocess(vsynth.NewExecutionContext(), []*vsynth.ConstantInput{hole}, nil, undef, e, false, true)
		if !vsynth.IsConstantFalse(got) {
			t.Fatalf("unexpected formula: %s", got)
		}
	})

	t.Run("UnrelatedHoleLeavesFormulaAlone", func(t *testing.T) {
		hole := vsynth.NewHole("h", i4)
		x := vsynth.NewVarExpr("x", 4)
		c := vsynth.NewVarExpr("c", 4)
		e := vsynth.NewBinaryExpr(vsynth.ULT, x, c)

		got := vsynth.Preprocess(vsynth.NewExecutionContext(), []*vsynth.ConstantInput{hole}, []*vsynth.VarExpr{x}, undef, e, false, false)
		want := vsynth.NewForAllExpr([]*vsynth.VarExpr{x}, e)
		if vsynth.CompareExpr(got, want) != 0 {
			t.Fatalf("unexpected formula: %s", got)
		}
	})

	t.Run("CapPreservesSatisfiability", func(t *testing.T) {
		h1 := vsynth.NewHole("h1", i4)
		h2 := vsynth.NewHole("h2", i4)
		holes := []*vsynth.ConstantInput{h1, h2}
		e := vsynth.NewBinaryExpr(vsynth.AND,
			vsynth.NewBinaryExpr(vsynth.EQ, h1.TyVar(), vsynth.NewConstantExpr(1, 2)),
			vsynth.NewBinaryExpr(vsynth.EQ, h2.TyVar(), vsynth.NewConstantExpr(1, 2)),
		)

		exactCtx := vsynth.NewExecutionContext()
		exact := vsynth.Preprocess(exactCtx, holes, nil, undef, e, false, false)

		cappedCtx := vsynth.NewExecutionContext()
		cappedCtx.InstanceCap = 1
		capped := vsynth.Preprocess(cappedCtx, holes, nil, undef, e, false, false)

		if _, ok := checkEnum(exact).(vsynth.Sat); !ok {
			t.Fatalf("expected satisfiable formula: %s", exact)
		}
		if _, ok := checkEnum(capped).(vsynth.Sat); !ok {
			t.Fatalf("expected satisfiable formula: %s", capped)
		}
	})

	t.Run("CapPreservesUnsatisfiability", func(t *testing.T) {
		// Contradictory tag constraints make the formula unsatisfiable
		// no matter which tags a capped instantiation picks. A cap of 1
		// stops after the first hole, leaving the second tag var free;
		// that must never manufacture a model the exact formula lacks.
		h1 := vsynth.NewHole("h1", i4)
		h2 := vsynth.NewHole("h2", i4)
		holes := []*vsynth.ConstantInput{h1, h2}
		e := vsynth.NewBinaryExpr(vsynth.AND,
			vsynth.NewBinaryExpr(vsynth.EQ, h1.TyVar(), h2.TyVar()),
			vsynth.NewBinaryExpr(vsynth.NE, h1.TyVar(), h2.TyVar()),
		)

		exact := vsynth.Preprocess(vsynth.NewExecutionContext(), holes, nil, undef, e, false, false)
		if _, ok := checkEnum(exact).(vsynth.Unsat); !ok {
			t.Fatalf("expected unsatisfiable formula: %s", exact)
		}

		cappedCtx := vsynth.NewExecutionContext()
		cappedCtx.InstanceCap = 1
		capped := vsynth.Preprocess(cappedCtx, holes, nil, undef, e, false, false)
		if _, ok := checkEnum(capped).(vsynth.Unsat); !ok {
			t.Fatalf("expected unsatisfiable formula: %s", capped)
		}
	})

	t.Run("BooleanEliminationIsEquisatisfiable", func(t *testing.T) {
		b := vsynth.NewVarExpr("b", 1)
		c := vsynth.NewVarExpr("c", 1)
		d := vsynth.NewVarExpr("d", 1)
		leaves := []vsynth.Expr{b, c, d,
			vsynth.NewBoolConstantExpr(true),
			vsynth.NewBoolConstantExpr(false),
		}
		ops := []vsynth.BinaryOp{vsynth.AND, vsynth.OR, vsynth.XOR, vsynth.EQ}

		rng := rand.New(rand.NewSource(1))
		var gen func(depth int) vsynth.Expr
		gen = func(depth int) vsynth.Expr {
			if depth == 0 || rng.Intn(4) == 0 {
				return leaves[rng.Intn(len(leaves))]
			}
			if rng.Intn(5) == 0 {
				return vsynth.NewNotExpr(gen(depth - 1))
			}
			return vsynth.NewBinaryExpr(ops[rng.Intn(len(ops))], gen(depth-1), gen(depth-1))
		}

		for i := 0; i < 100; i++ {
			f := gen(3)
			got := vsynth.Preprocess(vsynth.NewExecutionContext(), nil, []*vsynth.VarExpr{b}, nil, f, false, false)
			want := vsynth.NewForAllExpr([]*vsynth.VarExpr{b}, f)

			_, gotSat := checkEnum(got).(vsynth.Sat)
			_, wantSat := checkEnum(want).(vsynth.Sat)
			if gotSat != wantSat {
				t.Fatalf("case split of %s is sat=%v, quantified form is sat=%v", f, gotSat, wantSat)
			}
		}
	})
}

func TestRenderVarVal(t *testing.T) {
	i1 := vsynth.NewIntType(1)
	i4 := vsynth.NewIntType(4)
	i8 := vsynth.NewIntType(8)
	np := func(bits uint64, n uint) vsynth.Expr { return vsynth.NewConstantExpr(bits, n) }

	render := func(v vsynth.Value, typ vsynth.Type, sv vsynth.StateValue, m *vsynth.Model) string {
		var buf bytes.Buffer
		vsynth.RenderVarVal(&buf, enumSolver{}, m, v, typ, sv)
		return buf.String()
	}

	t.Run("Int", func(t *testing.T) {
		sv := vsynth.StateValue{Value: vsynth.NewConstantExpr(42, 8), NonPoison: np(1, 1)}
		if got := render(nil, i8, sv, vsynth.NewModel(nil)); got != "42" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("IntIsSigned", func(t *testing.T) {
		sv := vsynth.StateValue{Value: vsynth.NewConstantExpr(0xFF, 8), NonPoison: np(1, 1)}
		if got := render(nil, i8, sv, vsynth.NewModel(nil)); got != "-1" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("Poison", func(t *testing.T) {
		sv := vsynth.StateValue{Value: vsynth.NewConstantExpr(42, 8), NonPoison: np(0, 1)}
		if got := render(nil, i8, sv, vsynth.NewModel(nil)); got != "poison" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("UnknownPoisonRendersPoison", func(t *testing.T) {
		// A symbolic non-poison flag under a partial model is treated as
		// the worst case.
		sv := vsynth.StateValue{Value: vsynth.NewConstantExpr(42, 8), NonPoison: vsynth.NewVarExpr("p", 1)}
		if got := render(nil, i8, sv, vsynth.NewModel(nil)); got != "poison" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("InvalidExpr", func(t *testing.T) {
		if got := render(nil, i8, vsynth.StateValue{}, vsynth.NewModel(nil)); got != "(invalid expr)" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("Struct", func(t *testing.T) {
		typ := vsynth.NewStructType(i8, i1)
		sv := vsynth.StateValue{
			Value:     vsynth.NewConstantExpr(1<<8|5, 9),
			NonPoison: np(0b01, 2),
		}
		if got := render(nil, typ, sv, vsynth.NewModel(nil)); got != "{ 5, poison }" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("Vector", func(t *testing.T) {
		typ := vsynth.NewVectorType(i4, 2)
		sv := vsynth.StateValue{
			Value:     vsynth.NewConstantExpr(0x21, 8),
			NonPoison: np(0b11, 2),
		}
		if got := render(nil, typ, sv, vsynth.NewModel(nil)); got != "< 1, 2 >" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("HoleUndefTag", func(t *testing.T) {
		hole := vsynth.NewHole("h", i4)
		m := vsynth.NewModel(map[string]*vsynth.ConstantExpr{
			hole.TyVar().Name: vsynth.NewConstantExpr(1, 2),
		})
		sv := vsynth.StateValue{Value: hole.Var(), NonPoison: np(1, 1)}
		if got := render(hole, i4, sv, m); got != "undef" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("UndefValue", func(t *testing.T) {
		// A value forced equal to an arbitrary witness reads as undef.
		sv := vsynth.StateValue{Value: vsynth.NewVarExpr("undef!0", 4), NonPoison: np(1, 1)}
		if got := render(nil, i4, sv, vsynth.NewModel(nil)); got != "undef" {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("BasedOnUndefValue", func(t *testing.T) {
		// 2*undef only covers even values, so the value is not fully
		// undef; the rendering is annotated instead.
		sv := vsynth.StateValue{
			Value:     vsynth.NewBinaryExpr(vsynth.MUL, vsynth.NewVarExpr("undef!0", 4), vsynth.NewConstantExpr(2, 4)),
			NonPoison: np(1, 1),
		}
		got := render(nil, i4, sv, vsynth.NewModel(nil))
		if !strings.HasSuffix(got, "\t[based on undef value]") {
			t.Fatalf("unexpected rendering: %q", got)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		sv := vsynth.StateValue{
			Value:     vsynth.NewBinaryExpr(vsynth.MUL, vsynth.NewVarExpr("undef!0", 4), vsynth.NewConstantExpr(2, 4)),
			NonPoison: np(1, 1),
		}
		m := vsynth.NewModel(nil)
		if a, b := render(nil, i4, sv, m), render(nil, i4, sv, m); a != b {
			t.Fatalf("rendering not stable: %q != %q", a, b)
		}
	})
}
