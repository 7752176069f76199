package vsynth

// Query pairs a formula with the callback receiving its verdict. Batching
// queries lets a solver share one context across related checks.
type Query struct {
	Formula  Expr
	Callback func(Result)
}

// Solver checks the satisfiability of formulas. Implementations must invoke
// every callback exactly once, in order.
type Solver interface {
	Check(queries []Query)
}

// Result is the verdict of one satisfiability check. The concrete types
// form a closed set: Unsat, Sat, Invalid, Timeout, SolverError and Skipped.
type Result interface{ result() }

// Unsat reports that the formula has no model.
type Unsat struct{}

// Sat reports a model of the formula.
type Sat struct {
	Model *Model
}

// Invalid reports that the formula could not be translated to the solver.
type Invalid struct{}

// Timeout reports that the solver gave up within its time budget.
type Timeout struct{}

// SolverError reports a solver failure with the solver's reason string.
type SolverError struct {
	Reason string
}

// Skipped reports that the check was not attempted.
type Skipped struct{}

func (Unsat) result()       {}
func (Sat) result()         {}
func (Invalid) result()     {}
func (Timeout) result()     {}
func (SolverError) result() {}
func (Skipped) result()     {}

// CheckExpr checks a single formula and returns its verdict.
func CheckExpr(s Solver, e Expr) Result {
	var result Result
	s.Check([]Query{{Formula: e, Callback: func(r Result) { result = r }}})
	assert(result != nil, "solver did not invoke callback")
	return result
}

// Model maps variable names to constant values. A model may be partial;
// evaluation substitutes only the variables it knows unless completion is
// requested.
type Model struct {
	values map[string]*ConstantExpr
}

// NewModel returns a model over the given assignments.
func NewModel(values map[string]*ConstantExpr) *Model {
	if values == nil {
		values = make(map[string]*ConstantExpr)
	}
	return &Model{values: values}
}

// Set records an assignment.
func (m *Model) Set(name string, value *ConstantExpr) {
	m.values[name] = value
}

// Eval substitutes the model's assignments into e. With complete set, every
// remaining variable is additionally zeroed so the result is constant.
func (m *Model) Eval(e Expr, complete bool) Expr {
	for _, v := range Vars(e) {
		if value, ok := m.values[v.Name]; ok {
			assert(value.Width == v.Width, "model width mismatch for %q: %d != %d", v.Name, value.Width, v.Width)
			e = Subst(e, v, value)
		} else if complete {
			e = Subst(e, v, NewConstantExpr(0, v.Width))
		}
	}
	return e
}

// Uint64 returns the assignment of v, if any.
func (m *Model) Uint64(v *VarExpr) (uint64, bool) {
	value, ok := m.values[v.Name]
	if !ok {
		return 0, false
	}
	return value.Value, true
}
