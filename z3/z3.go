package z3

import (
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/vectorsynth/vsynth"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdio.h>
*/
import "C"

// Ensure solver implements interface.
var _ vsynth.Solver = (*Solver)(nil)

// Solver represents a solver that uses an embedded Z3 solver.
type Solver struct {
	ctx   *Context
	stats Stats

	// Timeout bounds each individual check. Zero means no limit.
	Timeout time.Duration
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		ctx: NewContext(),
	}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	return s.stats
}

// Check decides each query independently and invokes its callback exactly
// once with the verdict. A formula that cannot be translated yields an
// Invalid verdict rather than an error.
func (s *Solver) Check(queries []vsynth.Query) {
	for _, q := range queries {
		q.Callback(s.check(q.Formula))
	}
}

func (s *Solver) check(formula vsynth.Expr) vsynth.Result {
	t := time.Now()
	defer func() {
		s.stats.CheckN++
		s.stats.CheckTime += time.Since(t)
	}()

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return vsynth.SolverError{Reason: err.Error()}
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	if s.Timeout > 0 {
		if err := s.ctx.setSolverTimeout(solver, s.Timeout); err != nil {
			return vsynth.SolverError{Reason: err.Error()}
		}
	}

	ast, err := s.ctx.toAST(formula)
	if err != nil {
		return vsynth.Invalid{}
	}
	C.Z3_solver_assert(s.ctx.raw, solver, ast)
	if err := s.ctx.err("Z3_solver_assert"); err != nil {
		return vsynth.SolverError{Reason: err.Error()}
	}

	ret := C.Z3_solver_check(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return vsynth.SolverError{Reason: err.Error()}
	} else if ret == C.Z3_L_FALSE {
		return vsynth.Unsat{}
	} else if ret == C.Z3_L_UNDEF {
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"), strings.Contains(reason, "canceled"):
			return vsynth.Timeout{}
		case strings.Contains(reason, "(resource limits reached)"):
			return vsynth.Skipped{}
		default:
			return vsynth.SolverError{Reason: reason}
		}
	}

	model := C.Z3_solver_get_model(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return vsynth.SolverError{Reason: err.Error()}
	}
	C.Z3_model_inc_ref(s.ctx.raw, model)
	defer C.Z3_model_dec_ref(s.ctx.raw, model)

	m, err := s.ctx.evalVars(model, vsynth.Vars(formula))
	if err != nil {
		return vsynth.SolverError{Reason: err.Error()}
	}
	return vsynth.Sat{Model: m}
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return ctx.err("Z3_del_context")
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

func (ctx *Context) setSolverTimeout(solver C.Z3_solver, d time.Duration) error {
	params := C.Z3_mk_params(ctx.raw)
	if err := ctx.err("Z3_mk_params"); err != nil {
		return err
	}
	C.Z3_params_inc_ref(ctx.raw, params)
	defer C.Z3_params_dec_ref(ctx.raw, params)

	cname := C.CString("timeout")
	defer C.free(unsafe.Pointer(cname))
	sym := C.Z3_mk_string_symbol(ctx.raw, cname)
	C.Z3_params_set_uint(ctx.raw, params, sym, C.uint(d.Milliseconds()))
	if err := ctx.err("Z3_params_set_uint"); err != nil {
		return err
	}

	C.Z3_solver_set_params(ctx.raw, solver, params)
	return ctx.err("Z3_solver_set_params")
}

// toAST returns a new instance of Z3_ast from a vsynth expression.
// Width-1 expressions use the boolean sort.
func (ctx *Context) toAST(expr vsynth.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *vsynth.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *vsynth.VarExpr:
		return ctx.toVarAST(expr)
	case *vsynth.BinaryExpr:
		return ctx.toBinaryAST(expr)
	case *vsynth.NotExpr:
		return ctx.toNotAST(expr)
	case *vsynth.IteExpr:
		return ctx.toIteAST(expr)
	case *vsynth.ConcatExpr:
		return ctx.toConcatAST(expr)
	case *vsynth.ExtractExpr:
		return ctx.toExtractAST(expr)
	case *vsynth.ForAllExpr:
		return ctx.toForAllAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: invalid expression type: %T", expr)
	}
}

// toBVAST translates expr and coerces a boolean result into a 1-bit vector.
func (ctx *Context) toBVAST(expr vsynth.Expr) (C.Z3_ast, error) {
	ast, err := ctx.toAST(expr)
	if err != nil {
		return nil, err
	}
	if vsynth.ExprWidth(expr) != 1 {
		return ast, nil
	}
	one, err := ctx.makeUint64(1, 1)
	if err != nil {
		return nil, err
	}
	zero, err := ctx.makeUint64(1, 0)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, ast, one, zero), ctx.err("Z3_mk_ite")
}

func (ctx *Context) toConstantAST(expr *vsynth.ConstantExpr) (C.Z3_ast, error) {
	if expr.Width == 1 {
		if expr.IsTrue() {
			return ctx.makeTrue()
		}
		return ctx.makeFalse()
	} else if expr.Width <= 64 {
		return ctx.makeUint64(expr.Width, expr.Value)
	}
	return nil, fmt.Errorf("z3.Context.toConstantAST: invalid expression width: %d", expr.Width)
}

func (ctx *Context) toVarAST(expr *vsynth.VarExpr) (C.Z3_ast, error) {
	var sort C.Z3_sort
	var err error
	if expr.Width == 1 {
		sort = C.Z3_mk_bool_sort(ctx.raw)
		if err = ctx.err("Z3_mk_bool_sort"); err != nil {
			return nil, err
		}
	} else if sort, err = ctx.makeBVSort(expr.Width); err != nil {
		return nil, err
	}

	cname := C.CString(expr.Name)
	defer C.free(unsafe.Pointer(cname))
	sym := C.Z3_mk_string_symbol(ctx.raw, cname)
	return C.Z3_mk_const(ctx.raw, sym, sort), ctx.err("Z3_mk_const")
}

func (ctx *Context) toNotAST(expr *vsynth.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If boolean, use boolean NOT operation.
	if vsynth.ExprWidth(expr.Expr) == 1 {
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	}
	return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
}

func (ctx *Context) toIteAST(expr *vsynth.IteExpr) (C.Z3_ast, error) {
	cond, err := ctx.toAST(expr.Cond)
	if err != nil {
		return nil, err
	}
	then, err := ctx.toAST(expr.Then)
	if err != nil {
		return nil, err
	}
	els, err := ctx.toAST(expr.Else)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, cond, then, els), ctx.err("Z3_mk_ite")
}

func (ctx *Context) toConcatAST(expr *vsynth.ConcatExpr) (C.Z3_ast, error) {
	msb, err := ctx.toBVAST(expr.MSB)
	if err != nil {
		return nil, err
	}
	lsb, err := ctx.toBVAST(expr.LSB)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_concat(ctx.raw, msb, lsb), ctx.err("Z3_mk_concat")
}

func (ctx *Context) toExtractAST(expr *vsynth.ExtractExpr) (C.Z3_ast, error) {
	src, err := ctx.toBVAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If extracting single bit, use EQ expression to convert to bool sort.
	if expr.Width == 1 {
		extractExpr := C.Z3_mk_extract(ctx.raw, C.uint(expr.Offset), C.uint(expr.Offset), src)
		if err := ctx.err("Z3_mk_extract[bool]"); err != nil {
			return nil, err
		}
		one, err := ctx.makeUint64(1, 1)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_eq(ctx.raw, extractExpr, one), ctx.err("Z3_mk_eq")
	}

	return C.Z3_mk_extract(ctx.raw, C.uint(expr.Offset+expr.Width-1), C.uint(expr.Offset), src), ctx.err("Z3_mk_extract")
}

func (ctx *Context) toForAllAST(expr *vsynth.ForAllExpr) (C.Z3_ast, error) {
	body, err := ctx.toAST(expr.Body)
	if err != nil {
		return nil, err
	}
	if len(expr.Vars) == 0 {
		return body, nil
	}

	bound := make([]C.Z3_app, len(expr.Vars))
	for i, v := range expr.Vars {
		ast, err := ctx.toVarAST(v)
		if err != nil {
			return nil, err
		}
		bound[i] = C.Z3_to_app(ctx.raw, ast)
		if err := ctx.err("Z3_to_app"); err != nil {
			return nil, err
		}
	}
	return C.Z3_mk_forall_const(ctx.raw, 0, C.uint(len(bound)), &bound[0], 0, nil, body),
		ctx.err("Z3_mk_forall_const")
}

func (ctx *Context) toBinaryAST(expr *vsynth.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}
	boolean := vsynth.ExprWidth(expr.LHS) == 1

	switch expr.Op {
	case vsynth.ADD:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case vsynth.SUB:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case vsynth.MUL:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case vsynth.UDIV:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case vsynth.SDIV:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case vsynth.UREM:
		return C.Z3_mk_bvurem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvurem")
	case vsynth.SREM:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case vsynth.AND:
		if boolean {
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
		}
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case vsynth.OR:
		if boolean {
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
		}
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case vsynth.XOR:
		if boolean {
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		}
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	case vsynth.SHL:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case vsynth.LSHR:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case vsynth.ASHR:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case vsynth.EQ:
		if boolean {
			return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
		}
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case vsynth.NE:
		var eq C.Z3_ast
		if boolean {
			eq = C.Z3_mk_iff(ctx.raw, lhs, rhs)
			if err := ctx.err("Z3_mk_iff"); err != nil {
				return nil, err
			}
		} else {
			eq = C.Z3_mk_eq(ctx.raw, lhs, rhs)
			if err := ctx.err("Z3_mk_eq"); err != nil {
				return nil, err
			}
		}
		return C.Z3_mk_not(ctx.raw, eq), ctx.err("Z3_mk_not")
	case vsynth.ULT:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case vsynth.ULE:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case vsynth.UGT:
		return C.Z3_mk_bvugt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvugt")
	case vsynth.UGE:
		return C.Z3_mk_bvuge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvuge")
	case vsynth.SLT:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case vsynth.SLE:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	case vsynth.SGT:
		return C.Z3_mk_bvsgt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsgt")
	case vsynth.SGE:
		return C.Z3_mk_bvsge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsge")
	default:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected operation: %s", expr.Op)
	}
}

// evalVars reads the interpretation of each variable out of a Z3 model.
// Variables the model does not constrain are completed with defaults so the
// returned model always covers every requested variable.
func (ctx *Context) evalVars(model C.Z3_model, vars []*vsynth.VarExpr) (*vsynth.Model, error) {
	m := vsynth.NewModel(nil)
	for _, v := range vars {
		ast, err := ctx.toVarAST(v)
		if err != nil {
			return nil, err
		}

		var out C.Z3_ast
		C.Z3_model_eval(ctx.raw, model, ast, C.bool(true), &out)
		if err := ctx.err("Z3_model_eval"); err != nil {
			return nil, err
		}

		if v.Width == 1 {
			switch C.Z3_get_bool_value(ctx.raw, out) {
			case C.Z3_L_TRUE:
				m.Set(v.Name, vsynth.NewBoolConstantExpr(true))
			case C.Z3_L_FALSE:
				m.Set(v.Name, vsynth.NewBoolConstantExpr(false))
			default:
				return nil, fmt.Errorf("z3: non-constant model value for %q", v.Name)
			}
			continue
		}

		var n C.uint64_t
		if !bool(C.Z3_get_numeral_uint64(ctx.raw, out, &n)) {
			if err := ctx.err("Z3_get_numeral_uint64"); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("z3: non-numeral model value for %q", v.Name)
		}
		m.Set(v.Name, vsynth.NewConstantExpr(uint64(n), v.Width))
	}
	return m, nil
}

func (ctx *Context) makeTrue() (C.Z3_ast, error) {
	return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
}

func (ctx *Context) makeFalse() (C.Z3_ast, error) {
	return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
}

func (ctx *Context) makeBVSort(width uint) (C.Z3_sort, error) {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width)), ctx.err("Z3_mk_bv_sort")
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	t, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), t), ctx.err("Z3_mk_unsigned_int64")
}

func (ctx *Context) astToString(ast C.Z3_ast) string {
	return C.GoString(C.Z3_ast_to_string(ctx.raw, ast))
}

func (ctx *Context) modelToString(model C.Z3_model) string {
	return C.GoString(C.Z3_model_to_string(ctx.raw, model))
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

// Stats aggregates timing across checks.
type Stats struct {
	CheckN    int
	CheckTime time.Duration
}
