package vsynth

import (
	"fmt"
	"io"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// ConstantSynth decides whether some assignment to the target's hole
// constants makes the target a correct refinement of the source, and
// extracts that assignment from a solver model.
type ConstantSynth struct {
	t      *Transform
	solver Solver
	ectx   *ExecutionContext

	// CheckEachVar reports each intermediate variable at most once in a
	// counterexample instead of full source/target sections.
	CheckEachVar bool

	// DisableUndefInput and DisablePoisonInput skip the corresponding
	// type-tag branch during instantiation.
	DisableUndefInput  bool
	DisablePoisonInput bool

	// DebugWriter, if set, receives constraint dumps and the synthesized
	// constant lines.
	DebugWriter io.Writer
}

// NewConstantSynth returns a synthesizer for t using the given solver.
func NewConstantSynth(t *Transform, solver Solver) *ConstantSynth {
	return &ConstantSynth{
		t:      t,
		solver: solver,
		ectx:   NewExecutionContext(),
	}
}

// ExecutionContext returns the context used for executions and
// preprocessing. Callers may adjust its cap or pressure signal before
// synthesizing.
func (cs *ConstantSynth) ExecutionContext() *ExecutionContext { return cs.ectx }

// Synthesize executes both programs, checks that the target's domain covers
// the source's and that the target refines the source for some hole
// assignment, and fills result with that assignment when one exists.
//
// Both checks append their failures to the returned report. A definite
// counterexample carries a rendered example; tooling failures carry only a
// short tag.
func (cs *ConstantSynth) Synthesize(result map[*ConstantInput]Expr) *Errors {
	cs.ectx.FreshNumbering()
	srcState := ExecuteFunction(cs.ectx, cs.t.Src, true)
	tgtState := ExecuteFunction(cs.ectx, cs.t.Tgt, false)

	// Rewrite "tgt && (src -> foo)" to "tgt && foo" where src and tgt
	// share conjuncts.
	preSrcAnd := srcState.Pre().Clone()
	preSrcAnd.Del(tgtState.Pre())
	preSrc := preSrcAnd.Expr()
	preTgt := tgtState.Pre().Expr()

	sv, tv := srcState.ReturnVal(), tgtState.ReturnVal()

	// The refinement query quantifies every source input so the synthesized
	// constants work for all inputs. The domain query leaves inputs free so
	// a model exhibits the concrete input the target rejects.
	qvars := append([]*VarExpr(nil), srcState.ForAlls()...)
	uvars := srcState.UndefVars()
	holes := cs.t.Tgt.Holes()

	domA := srcState.ReturnDomain()
	domB := tgtState.ReturnDomain()
	dom := NewBinaryExpr(AND, domA, domB)

	mkFml := func(qvars []*VarExpr, refines Expr) Expr {
		// The combined obligation already establishes that
		// "pre_tgt && pre_src" is satisfiable (or timed out), so with
		// refines false the whole formula collapses to false.
		if IsConstantFalse(refines) {
			return refines
		}
		fml := NewBinaryExpr(AND, preTgt, NewImpliesExpr(preSrc, refines))
		return preprocess(cs.ectx, holes, qvars, uvars, fml,
			cs.DisableUndefInput, cs.DisablePoisonInput)
	}

	poisonCnstr, valueCnstr := Refines(cs.t.Src.RetType, srcState, tgtState, sv, tv)
	if cs.DebugWriter != nil {
		fmt.Fprintln(cs.DebugWriter, "SV")
		spew.Fdump(cs.DebugWriter, sv)
		fmt.Fprintln(cs.DebugWriter, "TV")
		spew.Fdump(cs.DebugWriter, tv)
		fmt.Fprintln(cs.DebugWriter, "Value Constraints")
		spew.Fdump(cs.DebugWriter, valueCnstr)
		fmt.Fprintln(cs.DebugWriter, "Poison Constraints")
		spew.Fdump(cs.DebugWriter, poisonCnstr)
	}

	var errs Errors
	cs.solver.Check([]Query{
		{
			Formula: mkFml(uvars, NewNotImpliesExpr(domA, domB)),
			Callback: func(r Result) {
				cs.report(&errs, srcState, tgtState, r, nil,
					"Source is more defined than target")
			},
		},
		{
			Formula: mkFml(qvars, NewBinaryExpr(AND, dom, NewBinaryExpr(AND, valueCnstr, poisonCnstr))),
			Callback: func(r Result) {
				cs.extractHoles(&errs, srcState, tgtState, r, result)
			},
		},
	})
	return &errs
}

// report interprets the verdict of the domain query. A model is rendered
// into a full counterexample narrative; tooling outcomes become short tags.
func (cs *ConstantSynth) report(errs *Errors, srcState, tgtState *State, r Result, v Value, msg string) {
	var m *Model
	switch r := r.(type) {
	case Unsat:
		return
	case Invalid:
		errs.Add("Invalid expr", false)
		return
	case Timeout:
		errs.Add("Timeout", false)
		return
	case SolverError:
		errs.Add("SMT Error: "+r.Reason, false)
		return
	case Skipped:
		errs.Add("Skip", false)
		return
	case Sat:
		m = r.Model
	default:
		panic(fmt.Sprintf("unexpected solver result: %T", r))
	}

	var sb strings.Builder
	varName := ""
	sb.WriteString(msg)
	if v != nil {
		varName = v.Name()
		fmt.Fprintf(&sb, " for %s", v)
	}
	sb.WriteString("\n\nExample:\n")

	p := &valuePrinter{solver: cs.solver, m: m}

	for _, entry := range srcState.Values() {
		switch entry.Val.(type) {
		case *Input, *ConstantInput:
		default:
			continue
		}
		fmt.Fprintf(&sb, "%s = ", entry.Val)
		p.printVarVal(&sb, entry.Val, entry.Val.Type(), entry.SV)
		sb.WriteByte('\n')
	}

	seen := make(map[string]bool)
	for _, st := range []*State{srcState, tgtState} {
		if !cs.CheckEachVar {
			if st.IsSource() {
				sb.WriteString("\nSource:\n")
			} else {
				sb.WriteString("\nTarget:\n")
			}
		}

		for _, entry := range st.Values() {
			name := entry.Val.Name()
			if varName != "" && name == varName {
				break
			}
			if !strings.HasPrefix(name, "%") {
				continue
			}
			if _, ok := entry.Val.(*Input); ok {
				continue
			}
			if cs.CheckEachVar {
				if seen[name] {
					continue
				}
				seen[name] = true
			}

			fmt.Fprintf(&sb, "%s = ", entry.Val)
			p.printVarVal(&sb, entry.Val, entry.Val.Type(), entry.SV)
			sb.WriteByte('\n')
		}

		st.Memory().Print(&sb, func(w io.Writer, typ Type, sv StateValue) {
			p.printVarVal(w, nil, typ, sv)
		})
	}

	errs.Add(sb.String(), true)
}

// extractHoles interprets the verdict of the refinement query. A model
// means the transform is correct for the constants it assigns: every hole's
// value is evaluated under the model and recorded in result.
func (cs *ConstantSynth) extractHoles(errs *Errors, srcState, tgtState *State, r Result, result map[*ConstantInput]Expr) {
	var m *Model
	switch r := r.(type) {
	case Unsat:
		return
	case Invalid:
		errs.Add("Invalid expr", false)
		return
	case Timeout:
		errs.Add("Timeout", false)
		return
	case SolverError:
		errs.Add("SMT Error: "+r.Reason, false)
		return
	case Skipped:
		errs.Add("Skip", false)
		return
	case Sat:
		m = r.Model
	default:
		panic(fmt.Sprintf("unexpected solver result: %T", r))
	}

	var sb strings.Builder
	sb.WriteString(";result\n")
	p := &valuePrinter{solver: cs.solver, m: m}
	for _, entry := range tgtState.Values() {
		ci, ok := entry.Val.(*ConstantInput)
		if !ok || !strings.HasPrefix(ci.Name(), ReservedConstPrefix) {
			continue
		}
		result[ci] = m.Eval(entry.SV.Value, true)
		fmt.Fprintf(&sb, "%s = ", ci)
		p.printVarVal(&sb, ci, ci.Type(), entry.SV)
		sb.WriteByte('\n')
	}
	if cs.DebugWriter != nil {
		io.WriteString(cs.DebugWriter, sb.String())
	}
}

// instance pairs a tag-specialized formula with the guard recording the tag
// choices that produced it.
type instance struct {
	expr  Expr
	guard Expr
}

// instanceSet is the bounded accumulator rebuilt hole by hole during
// instantiation. Structurally equal formulas keep a single representative.
type instanceSet struct {
	list []instance
}

func (s *instanceSet) add(e, guard Expr) {
	for _, inst := range s.list {
		if CompareExpr(inst.expr, e) == 0 {
			return
		}
	}
	s.list = append(s.list, instance{expr: e, guard: guard})
}

// preprocess rewrites "forall qvars. e" into a solver-friendly form.
// Quantified boolean variables are eliminated by case splitting. When
// undef-read variables are present, the hole type-tag variables are
// eliminated by bounded manual instantiation: the result is a disjunction
// of tag-specialized quantified formulas, each guarded by its tag choice.
// Reaching the cap stops further splitting; tag vars of holes not yet
// instantiated simply stay free.
func preprocess(ectx *ExecutionContext, holes []*ConstantInput, qvars0, undefQvars []*VarExpr, e Expr, disableUndef, disablePoison bool) Expr {
	if ectx.MemoryPressure() {
		return NewForAllExpr(qvars0, e)
	}

	// Quantified boolean vars make the solver crawl. A 2-element domain
	// enumerates exactly.
	qvars := make([]*VarExpr, 0, len(qvars0))
	for _, v := range qvars0 {
		if v.Width != WidthBool {
			qvars = append(qvars, v)
			continue
		}
		e = NewBinaryExpr(AND,
			Subst(e, v, NewBoolConstantExpr(true)),
			Subst(e, v, NewBoolConstantExpr(false)),
		)
	}

	if len(undefQvars) == 0 || ectx.MemoryPressure() {
		return NewForAllExpr(qvars, e)
	}

	// Manually instantiate the hole type-tag vars.
	instances := &instanceSet{}
	instances.add(e, NewBoolConstantExpr(true))

	var tags [3]*ConstantExpr
	for i := range tags {
		tags[i] = NewConstantExpr(uint64(i), 2)
	}

	for _, hole := range holes {
		tyVar := hole.TyVar()
		next := &instanceSet{}

		for _, inst := range instances.list {
			for i := 0; i <= 2; i++ {
				if disableUndef && i == 1 {
					continue
				}
				if disablePoison && i == 2 {
					continue
				}

				newexpr := Subst(inst.expr, tyVar, tags[i])
				if CompareExpr(newexpr, inst.expr) == 0 {
					next.add(newexpr, inst.guard)
					break
				}
				if IsConstantFalse(newexpr) {
					continue
				}

				// The tag var stays free in the guard so
				// counterexamples can report the chosen tag.
				next.add(newexpr, NewBinaryExpr(AND, inst.guard,
					NewBinaryExpr(EQ, tyVar, tags[i])))
			}
		}
		instances = next

		// Bail out if it gets too big. It's very likely we can't
		// solve it anyway.
		if len(instances.list) >= ectx.InstanceCap || ectx.MemoryPressure() {
			break
		}
	}

	insts := Expr(NewBoolConstantExpr(false))
	for _, inst := range instances.list {
		insts = NewBinaryExpr(OR, insts,
			NewBinaryExpr(AND, NewForAllExpr(qvars, inst.expr), inst.guard))
	}
	return insts
}

// isUndefExpr reports whether e is forced equal to an arbitrary undef
// witness under every interpretation. A check that does not come back
// unsatisfiable, including a timeout, counts as not undef.
func isUndefExpr(s Solver, e Expr) bool {
	if IsConstantExpr(e) {
		return false
	}
	marker := NewVarExpr("#undef", ExprWidth(e))
	r := CheckExpr(s, NewForAllExpr(Vars(e), NewBinaryExpr(NE, marker, e)))
	_, ok := r.(Unsat)
	return ok
}

// valuePrinter renders state values against one model. It holds no mutable
// state, so rendering the same triple twice yields identical output.
type valuePrinter struct {
	solver Solver
	m      *Model
}

// printVarVal renders a possibly aggregate value. Struct values print
// inside braces, vector values inside angle brackets.
func (p *valuePrinter) printVarVal(w io.Writer, v Value, typ Type, sv StateValue) {
	agg, ok := typ.(AggregateType)
	if !ok {
		p.printSingleVarVal(w, v, typ, sv)
		return
	}

	_, isStruct := typ.(*StructType)
	if isStruct {
		io.WriteString(w, "{ ")
	} else {
		io.WriteString(w, "< ")
	}
	for i := 0; i < agg.NumChildren(); i++ {
		if i != 0 {
			io.WriteString(w, ", ")
		}
		p.printVarVal(w, v, agg.Child(i), agg.ExtractValue(sv, i))
	}
	if isStruct {
		io.WriteString(w, " }")
	} else {
		io.WriteString(w, " >")
	}
}

func (p *valuePrinter) printSingleVarVal(w io.Writer, v Value, typ Type, sv StateValue) {
	if !sv.IsValid() {
		io.WriteString(w, "(invalid expr)")
		return
	}

	// If the model is partial we don't know for sure whether the value is
	// poison. Counterexamples are usually triggered by the worst case,
	// which is poison.
	if np := p.m.Eval(sv.NonPoison, false); !IsConstantExpr(np) || IsConstantFalse(np) {
		io.WriteString(w, "poison")
		return
	}

	if in, ok := v.(*ConstantInput); ok && in.IsHole() {
		if n, ok := p.m.Uint64(in.TyVar()); ok && n == 1 {
			io.WriteString(w, "undef")
			return
		}
	}

	partial := p.m.Eval(sv.Value, false)
	if isUndefExpr(p.solver, partial) {
		io.WriteString(w, "undef")
		return
	}

	full, ok := p.m.Eval(sv.Value, true).(*ConstantExpr)
	assert(ok, "complete evaluation left a symbolic value")
	io.WriteString(w, typ.FormatVal(full))

	// Undef variables may not have a model since each read uses a copy.
	if !IsConstantExpr(partial) {
		for _, fv := range Vars(partial) {
			if strings.HasPrefix(fv.Name, UndefVarPrefix) {
				io.WriteString(w, "\t[based on undef value]")
				break
			}
		}
	}
}
