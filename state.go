package vsynth

import (
	"fmt"
	"io"
	"runtime"

	"github.com/benbjohnson/immutable"
)

// ExecutionContext carries the per-call knobs that used to live in process
// globals: the fresh-variable numbering, the instantiation cap, and the
// memory pressure signal consulted by the quantifier preprocessor.
type ExecutionContext struct {
	// InstanceCap bounds the instance set built during type-tag
	// instantiation.
	InstanceCap int

	// MemoryPressure reports whether expensive preprocessing should be
	// skipped. It is a coarse advisory signal, not a precise budget.
	MemoryPressure func() bool

	undefSeq int
}

// DefaultInstanceCap bounds type-tag instantiation; beyond this the query is
// very likely unsolvable anyway.
const DefaultInstanceCap = 128

// NewExecutionContext returns a context with the default cap and no memory
// pressure signal.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		InstanceCap:    DefaultInstanceCap,
		MemoryPressure: func() bool { return false },
	}
}

// FreshNumbering resets the fresh-variable counter. Called before each pair
// of executions so variable names are deterministic per synthesis call.
func (ectx *ExecutionContext) FreshNumbering() {
	ectx.undefSeq = 0
}

// nextUndefVar mints a fresh variable for one read of an undefined value.
func (ectx *ExecutionContext) nextUndefVar(width uint) *VarExpr {
	v := NewVarExpr(fmt.Sprintf("%s%d", UndefVarPrefix, ectx.undefSeq), width)
	ectx.undefSeq++
	return v
}

// MemoryPressureAt returns a signal that fires once the heap grows past half
// the given limit, mirroring a process-wide half-memory-limit guard.
func MemoryPressureAt(limit uint64) func() bool {
	return func() bool {
		if limit == 0 {
			return false
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return ms.HeapAlloc >= limit/2
	}
}

// StateValue pairs a value expression with its non-poison flag. For
// aggregates the flag carries one bit per leaf, leaf 0 at the low end.
type StateValue struct {
	Value     Expr
	NonPoison Expr
}

// IsValid returns true if the value holds an expression.
func (sv StateValue) IsValid() bool { return sv.Value != nil }

// Conjunction is an ordered set of boolean conjuncts. Adding an AND
// expression splits it into independent conjuncts, which lets equal
// conjuncts be subtracted structurally.
type Conjunction struct {
	exprs []Expr
}

// Add appends expr, splitting conjunctions and dropping constant true.
func (c *Conjunction) Add(expr Expr) {
	if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND && ExprWidth(expr) == WidthBool {
		c.Add(expr.LHS)
		c.Add(expr.RHS)
		return
	}
	if IsConstantTrue(expr) {
		return
	}
	c.exprs = append(c.exprs, expr)
}

// Del removes every conjunct of c that is structurally present in other.
func (c *Conjunction) Del(other *Conjunction) {
	kept := c.exprs[:0]
	for _, e := range c.exprs {
		if !other.contains(e) {
			kept = append(kept, e)
		}
	}
	c.exprs = kept
}

func (c *Conjunction) contains(expr Expr) bool {
	for _, e := range c.exprs {
		if CompareExpr(e, expr) == 0 {
			return true
		}
	}
	return false
}

// Clone returns a copy of the conjunction.
func (c *Conjunction) Clone() *Conjunction {
	other := &Conjunction{exprs: make([]Expr, len(c.exprs))}
	copy(other.exprs, c.exprs)
	return other
}

// Expr folds the conjuncts into a single expression.
func (c *Conjunction) Expr() Expr {
	e := Expr(NewBoolConstantExpr(true))
	for _, conjunct := range c.exprs {
		e = NewBinaryExpr(AND, e, conjunct)
	}
	return e
}

// memSlot holds the typed value stored in one memory slot.
type memSlot struct {
	typ Type
	sv  StateValue
}

// Memory is the slot-addressed memory model of a state. It is immutable;
// stores return a new memory sharing structure with the old one.
type Memory struct {
	slots *immutable.SortedMap[int, memSlot]
}

// NewMemory returns an empty memory.
func NewMemory() *Memory {
	return &Memory{slots: immutable.NewSortedMap[int, memSlot](nil)}
}

// Store returns a memory with the slot updated.
func (m *Memory) Store(slot int, typ Type, sv StateValue) *Memory {
	return &Memory{slots: m.slots.Set(slot, memSlot{typ: typ, sv: sv})}
}

// Load returns the current slot value. An unwritten slot reads as a zeroed,
// well-defined value.
func (m *Memory) Load(slot int, typ Type) StateValue {
	if s, ok := m.slots.Get(slot); ok {
		return s.sv
	}
	return StateValue{
		Value:     NewConstantExpr(0, typ.BitSize()),
		NonPoison: NewConstantExpr(bitmask(leafCount(typ)), leafCount(typ)),
	}
}

// Len returns the number of written slots.
func (m *Memory) Len() int { return m.slots.Len() }

// Print renders every written slot using the supplied value renderer.
func (m *Memory) Print(w io.Writer, render func(io.Writer, Type, StateValue)) {
	if m.Len() == 0 {
		return
	}
	fmt.Fprintf(w, "\nMemory:\n")
	itr := m.slots.Iterator()
	for !itr.Done() {
		slot, s, _ := itr.Next()
		fmt.Fprintf(w, "#%d = ", slot)
		render(w, s.typ, s.sv)
		fmt.Fprintln(w)
	}
}

// ValueEntry records one named value encountered during execution, in
// program order.
type ValueEntry struct {
	Val Value
	SV  StateValue
}

// State holds the result of symbolically executing one function: the
// reachable domain at the return point, the precondition, the quantifier
// sets, the return value, every named value in order, and the memory model.
// It is produced once per synthesis call and then only read.
type State struct {
	fn     *Function
	source bool

	domain *Conjunction
	pre    *Conjunction

	quantVars []*VarExpr
	undefVars []*VarExpr

	values   []ValueEntry
	bindings map[Value]StateValue

	mem *Memory
	ret StateValue
}

// ExecuteFunction symbolically executes fn and returns its final state.
// Execution is deterministic given fn and the context numbering.
func ExecuteFunction(ectx *ExecutionContext, fn *Function, isSource bool) *State {
	st := &State{
		fn:       fn,
		source:   isSource,
		domain:   &Conjunction{},
		pre:      &Conjunction{},
		bindings: make(map[Value]StateValue),
		mem:      NewMemory(),
	}

	for _, in := range fn.Inputs {
		sv := st.readInput(ectx, in)
		st.bindings[in] = sv
		st.values = append(st.values, ValueEntry{Val: in, SV: sv})
	}
	for _, instr := range fn.Instrs {
		st.exec(ectx, instr)
	}

	assert(st.ret.IsValid(), "function %q has no return", fn.FnName)
	return st
}

// readInput produces the state value bound to a function input.
func (st *State) readInput(ectx *ExecutionContext, in Value) StateValue {
	switch in := in.(type) {
	case *Input:
		v := in.Var()
		st.quantVars = append(st.quantVars, v)
		return StateValue{Value: v, NonPoison: NewBoolConstantExpr(true)}
	case *ConstantInput:
		if !in.IsHole() {
			return StateValue{Value: in.Var(), NonPoison: NewBoolConstantExpr(true)}
		}
		// A hole reads as its value variable, an undef copy, or poison
		// depending on the type-tag variable.
		undef := ectx.nextUndefVar(in.Type().BitSize())
		value := NewIteExpr(
			NewBinaryExpr(EQ, in.TyVar(), NewConstantExpr(1, 2)),
			undef,
			in.Var(),
		)
		np := NewBinaryExpr(NE, in.TyVar(), NewConstantExpr(2, 2))
		return StateValue{Value: value, NonPoison: np}
	default:
		panic(fmt.Sprintf("unexpected input kind: %T", in))
	}
}

// operand resolves an instruction argument against the current bindings.
func (st *State) operand(ectx *ExecutionContext, v Value) StateValue {
	switch v := v.(type) {
	case *Literal:
		return StateValue{Value: v.Const(), NonPoison: NewBoolConstantExpr(true)}
	case *Undef:
		// Every occurrence is an independent read. Source-side undef
		// choices are universally enumerable.
		u := ectx.nextUndefVar(v.Type().BitSize())
		if st.source {
			st.quantVars = append(st.quantVars, u)
			st.undefVars = append(st.undefVars, u)
		}
		return StateValue{Value: u, NonPoison: NewBoolConstantExpr(true)}
	default:
		sv, ok := st.bindings[v]
		assert(ok, "unbound operand: %s", v.Name())
		return sv
	}
}

func (st *State) exec(ectx *ExecutionContext, in *Instr) {
	switch in.Kind {
	case InstrBinOp:
		x, y := st.operand(ectx, in.Args[0]), st.operand(ectx, in.Args[1])
		value := NewBinaryExpr(in.Op, x.Value, y.Value)
		np := NewBinaryExpr(AND, x.NonPoison, y.NonPoison)
		switch in.Op {
		case UDIV, SDIV, UREM, SREM:
			// Division by zero is undefined behavior.
			st.domain.Add(NewBinaryExpr(NE, y.Value, NewConstantExpr(0, ExprWidth(y.Value))))
		case ADD, SUB:
			if in.NSW {
				np = NewBinaryExpr(AND, np, noSignedWrap(in.Op, x.Value, y.Value, value))
			}
		}
		st.define(in, StateValue{Value: value, NonPoison: np})

	case InstrICmp:
		x, y := st.operand(ectx, in.Args[0]), st.operand(ectx, in.Args[1])
		st.define(in, StateValue{
			Value:     NewBinaryExpr(in.Op, x.Value, y.Value),
			NonPoison: NewBinaryExpr(AND, x.NonPoison, y.NonPoison),
		})

	case InstrSelect:
		c, x, y := st.operand(ectx, in.Args[0]), st.operand(ectx, in.Args[1]), st.operand(ectx, in.Args[2])
		st.define(in, StateValue{
			Value:     NewIteExpr(c.Value, x.Value, y.Value),
			NonPoison: NewBinaryExpr(AND, c.NonPoison, NewIteExpr(c.Value, x.NonPoison, y.NonPoison)),
		})

	case InstrAssume:
		// Assuming a poison condition is undefined behavior.
		c := st.operand(ectx, in.Args[0])
		st.domain.Add(c.NonPoison)
		st.domain.Add(c.Value)

	case InstrRequire:
		c := st.operand(ectx, in.Args[0])
		st.pre.Add(c.NonPoison)
		st.pre.Add(c.Value)

	case InstrStore:
		x := st.operand(ectx, in.Args[0])
		st.mem = st.mem.Store(in.Slot, in.Args[0].Type(), x)

	case InstrLoad:
		st.define(in, st.mem.Load(in.Slot, in.typ))

	case InstrRet:
		st.ret = st.operand(ectx, in.Args[0])

	default:
		panic(fmt.Sprintf("unexpected instruction kind: %d", in.Kind))
	}
}

func (st *State) define(in *Instr, sv StateValue) {
	st.bindings[in] = sv
	st.values = append(st.values, ValueEntry{Val: in, SV: sv})
}

// noSignedWrap returns the condition under which op did not overflow the
// signed range: the operands predict the result sign.
func noSignedWrap(op BinaryOp, x, y, sum Expr) Expr {
	zero := NewConstantExpr(0, ExprWidth(x))
	xneg := NewBinaryExpr(SLT, x, zero)
	yneg := NewBinaryExpr(SLT, y, zero)
	sneg := NewBinaryExpr(SLT, sum, zero)

	sameSign := NewBinaryExpr(EQ, xneg, yneg)
	if op == SUB {
		sameSign = NewIsZeroExpr(sameSign)
	}
	overflow := NewBinaryExpr(AND, sameSign, NewIsZeroExpr(NewBinaryExpr(EQ, sneg, xneg)))
	return NewIsZeroExpr(overflow)
}

// IsSource returns true if the state belongs to the source function.
func (st *State) IsSource() bool { return st.source }

// Function returns the executed function.
func (st *State) Function() *Function { return st.fn }

// Values returns every named value in program order.
func (st *State) Values() []ValueEntry { return st.values }

// ReturnVal returns the (value, non-poison) pair at the return point.
func (st *State) ReturnVal() StateValue { return st.ret }

// ReturnDomain returns the path condition reachable at the return point.
func (st *State) ReturnDomain() Expr { return st.domain.Expr() }

// Pre returns the precondition conjunction.
func (st *State) Pre() *Conjunction { return st.pre }

// ForAlls returns the universally quantified variables of the state.
func (st *State) ForAlls() []*VarExpr { return st.quantVars }

// UndefVars returns the undef-read variables subject to enumeration.
func (st *State) UndefVars() []*VarExpr { return st.undefVars }

// Memory returns the memory model at the return point.
func (st *State) Memory() *Memory { return st.mem }
