package vsynth

import (
	"fmt"
	"strings"
)

// Type represents the type of an IR value.
type Type interface {
	typ()
	// BitSize returns the total width of the value encoding in bits.
	BitSize() uint
	// FormatVal renders a fully evaluated constant of this type.
	FormatVal(c *ConstantExpr) string
	String() string
}

func (*IntType) typ()    {}
func (*StructType) typ() {}
func (*VectorType) typ() {}

// AggregateType is implemented by types composed of child values.
type AggregateType interface {
	Type
	// NumChildren returns the number of direct children.
	NumChildren() int
	// Child returns the type of the i-th child.
	Child(i int) Type
	// ExtractValue returns the state value of the i-th child of v.
	ExtractValue(v StateValue, i int) StateValue
}

// IsAggregateType returns true if t is a struct or vector type.
func IsAggregateType(t Type) bool {
	_, ok := t.(AggregateType)
	return ok
}

// IntType represents a fixed-width integer type.
type IntType struct {
	Bits uint
}

// NewIntType returns a new instance of IntType.
func NewIntType(bits uint) *IntType {
	assert(bits > 0, "integer type width cannot be zero")
	return &IntType{Bits: bits}
}

// BitSize returns the width of the integer in bits.
func (t *IntType) BitSize() uint { return t.Bits }

// FormatVal renders the constant as a signed decimal.
func (t *IntType) FormatVal(c *ConstantExpr) string {
	if t.Bits == WidthBool {
		return fmt.Sprintf("%d", c.Value)
	}
	return fmt.Sprintf("%d", c.Int64())
}

// String returns the string representation of the type.
func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }

// StructType represents a structure with heterogeneous fields.
type StructType struct {
	Fields []Type
}

// NewStructType returns a new instance of StructType.
func NewStructType(fields ...Type) *StructType {
	assert(len(fields) > 0, "struct type cannot be empty")
	return &StructType{Fields: fields}
}

// BitSize returns the sum of the field widths.
func (t *StructType) BitSize() uint {
	var n uint
	for _, f := range t.Fields {
		n += f.BitSize()
	}
	return n
}

// NumChildren returns the number of fields.
func (t *StructType) NumChildren() int { return len(t.Fields) }

// Child returns the type of the i-th field.
func (t *StructType) Child(i int) Type { return t.Fields[i] }

// ExtractValue returns the state value of the i-th field of v.
func (t *StructType) ExtractValue(v StateValue, i int) StateValue {
	var offset uint
	for j := 0; j < i; j++ {
		offset += t.Fields[j].BitSize()
	}
	return extractChild(v, offset, t.Fields[i].BitSize(), leafOffset(t, i), leafCount(t.Fields[i]))
}

// FormatVal is never called for aggregates; the renderer recurses instead.
func (t *StructType) FormatVal(c *ConstantExpr) string {
	panic("FormatVal called on aggregate type")
}

// String returns the string representation of the type.
func (t *StructType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// VectorType represents a vector of identically typed elements.
type VectorType struct {
	Elem Type
	N    int
}

// NewVectorType returns a new instance of VectorType.
func NewVectorType(elem Type, n int) *VectorType {
	assert(n > 0, "vector type cannot be empty")
	return &VectorType{Elem: elem, N: n}
}

// BitSize returns the total width of the vector.
func (t *VectorType) BitSize() uint { return t.Elem.BitSize() * uint(t.N) }

// NumChildren returns the element count.
func (t *VectorType) NumChildren() int { return t.N }

// Child returns the element type.
func (t *VectorType) Child(i int) Type { return t.Elem }

// ExtractValue returns the state value of the i-th element of v.
func (t *VectorType) ExtractValue(v StateValue, i int) StateValue {
	return extractChild(v, uint(i)*t.Elem.BitSize(), t.Elem.BitSize(), leafOffset(t, i), leafCount(t.Elem))
}

// FormatVal is never called for aggregates; the renderer recurses instead.
func (t *VectorType) FormatVal(c *ConstantExpr) string {
	panic("FormatVal called on aggregate type")
}

// String returns the string representation of the type.
func (t *VectorType) String() string {
	return fmt.Sprintf("<%d x %s>", t.N, t.Elem)
}

// leafCount returns the number of scalar leaves of t.
func leafCount(t Type) uint {
	agg, ok := t.(AggregateType)
	if !ok {
		return 1
	}
	var n uint
	for i := 0; i < agg.NumChildren(); i++ {
		n += leafCount(agg.Child(i))
	}
	return n
}

// leafOffset returns the index of the first leaf belonging to child i of t.
func leafOffset(t AggregateType, i int) uint {
	var n uint
	for j := 0; j < i; j++ {
		n += leafCount(t.Child(j))
	}
	return n
}

// extractChild slices the child value occupying width bits at bit offset,
// and its non-poison flags: one bit per leaf, leaf 0 at the low end.
func extractChild(v StateValue, offset, width, np uint, npWidth uint) StateValue {
	return StateValue{
		Value:     NewExtractExpr(v.Value, offset, width),
		NonPoison: NewExtractExpr(v.NonPoison, np, npWidth),
	}
}

// Refines returns the poison and value constraints for "tgt refines src" at
// type t. For aggregates the constraints are conjoined across children.
func Refines(t Type, src, tgt *State, sv, tv StateValue) (poison, value Expr) {
	agg, ok := t.(AggregateType)
	if !ok {
		// A poison source value refines to anything. Values must agree
		// whenever both sides are well defined.
		poison = NewImpliesExpr(sv.NonPoison, tv.NonPoison)
		value = NewImpliesExpr(
			NewBinaryExpr(AND, sv.NonPoison, tv.NonPoison),
			NewBinaryExpr(EQ, sv.Value, tv.Value),
		)
		return poison, value
	}

	poison, value = NewBoolConstantExpr(true), NewBoolConstantExpr(true)
	for i := 0; i < agg.NumChildren(); i++ {
		p, v := Refines(agg.Child(i), src, tgt, agg.ExtractValue(sv, i), agg.ExtractValue(tv, i))
		poison = NewBinaryExpr(AND, poison, p)
		value = NewBinaryExpr(AND, value, v)
	}
	return poison, value
}

// Value represents a named IR value. The concrete types form a closed set:
// *Input, *ConstantInput and *Instr, plus the operand-only *Literal and
// *Undef which never appear in a state's value list.
type Value interface {
	value()
	Name() string
	Type() Type
}

func (*Input) value()         {}
func (*ConstantInput) value() {}
func (*Instr) value()         {}
func (*Literal) value()       {}

// Input represents an ordinary function input. Its value variable is
// universally quantified in correctness queries.
type Input struct {
	name string
	typ  Type
}

// NewInput returns a new instance of Input.
func NewInput(name string, typ Type) *Input {
	return &Input{name: "%" + name, typ: typ}
}

// Name returns the value name, including the leading '%'.
func (v *Input) Name() string { return v.name }

// Type returns the declared type.
func (v *Input) Type() Type { return v.typ }

// Var returns the value variable bound to the input.
func (v *Input) Var() *VarExpr { return NewVarExpr(v.name, v.typ.BitSize()) }

// String returns the name and type of the input.
func (v *Input) String() string { return fmt.Sprintf("%s %s", v.typ, v.name) }

// ConstantInput represents a symbolic constant input. A hole, a constant to
// be synthesized, is a ConstantInput whose name carries ReservedConstPrefix.
// Holes additionally own a type-tag variable selecting between an ordinary
// value (0), undef (1) and poison (2).
type ConstantInput struct {
	name  string
	typ   Type
	tyVar *VarExpr // nil unless the input is a hole
}

// NewConstantInput returns a constant input with a fixed symbolic value.
func NewConstantInput(name string, typ Type) *ConstantInput {
	return &ConstantInput{name: "%" + name, typ: typ}
}

// NewHole returns a hole constant to be synthesized. The given suffix is
// appended to the reserved marker prefix.
func NewHole(suffix string, typ Type) *ConstantInput {
	name := ReservedConstPrefix + suffix
	return &ConstantInput{
		name:  name,
		typ:   typ,
		tyVar: NewVarExpr("ty_"+name, 2),
	}
}

// Name returns the value name, including the leading '%'.
func (v *ConstantInput) Name() string { return v.name }

// Type returns the declared type.
func (v *ConstantInput) Type() Type { return v.typ }

// Var returns the value variable bound to the constant.
func (v *ConstantInput) Var() *VarExpr { return NewVarExpr(v.name, v.typ.BitSize()) }

// TyVar returns the type-tag variable, or nil if the input is not a hole.
func (v *ConstantInput) TyVar() *VarExpr { return v.tyVar }

// IsHole returns true if the constant is an unresolved synthesis hole.
func (v *ConstantInput) IsHole() bool { return v.tyVar != nil }

// String returns the name and type of the input.
func (v *ConstantInput) String() string { return fmt.Sprintf("%s %s", v.typ, v.name) }

// Literal represents an inline constant operand. It never appears in a
// state's value list; its name is its decimal rendering.
type Literal struct {
	typ Type
	val uint64
}

// NewLiteral returns a new instance of Literal.
func NewLiteral(typ Type, value uint64) *Literal {
	return &Literal{typ: typ, val: value}
}

// Name returns the decimal rendering of the literal.
func (v *Literal) Name() string { return fmt.Sprintf("%d", v.val) }

// Type returns the literal type.
func (v *Literal) Type() Type { return v.typ }

// Const returns the literal as a constant expression.
func (v *Literal) Const() *ConstantExpr { return NewConstantExpr(v.val, v.typ.BitSize()) }

// String returns the name and type of the literal.
func (v *Literal) String() string { return fmt.Sprintf("%s %d", v.typ, v.val) }

// Undef is the operand marking an undefined value. Each read mints a fresh
// universally enumerable variable.
type Undef struct {
	typ Type
}

// NewUndef returns a new instance of Undef.
func NewUndef(typ Type) *Undef { return &Undef{typ: typ} }

func (v *Undef) value() {}

// Name returns the literal token for undef operands.
func (v *Undef) Name() string { return "undef" }

// Type returns the operand type.
func (v *Undef) Type() Type { return v.typ }

// String returns the name and type of the operand.
func (v *Undef) String() string { return fmt.Sprintf("%s undef", v.typ) }

// InstrKind enumerates the instruction set.
type InstrKind int

const (
	InstrBinOp InstrKind = iota + 1
	InstrICmp
	InstrSelect
	InstrAssume
	InstrRequire
	InstrStore
	InstrLoad
	InstrRet
)

// Instr represents a single instruction. Instructions that produce a result
// are themselves values, named like "%t0".
type Instr struct {
	name string
	typ  Type

	Kind InstrKind
	Op   BinaryOp // BinOp/ICmp only
	NSW  bool     // BinOp only: poison on signed overflow
	Args []Value
	Slot int // Store/Load only
}

// Name returns the result name, or "" for instructions without a result.
func (in *Instr) Name() string { return in.name }

// Type returns the result type.
func (in *Instr) Type() Type { return in.typ }

// String returns the name and type of the result.
func (in *Instr) String() string { return fmt.Sprintf("%s %s", in.typ, in.name) }

// NewBinOp returns an arithmetic instruction producing name.
func NewBinOp(name string, op BinaryOp, nsw bool, x, y Value) *Instr {
	assert(op.IsArithmetic(), "binop requires an arithmetic operator: %s", op)
	return &Instr{name: "%" + name, typ: x.Type(), Kind: InstrBinOp, Op: op, NSW: nsw, Args: []Value{x, y}}
}

// NewICmp returns a comparison instruction producing a boolean name.
func NewICmp(name string, op BinaryOp, x, y Value) *Instr {
	assert(op.IsCompare(), "icmp requires a comparison operator: %s", op)
	return &Instr{name: "%" + name, typ: NewIntType(WidthBool), Kind: InstrICmp, Op: op, Args: []Value{x, y}}
}

// NewSelect returns a select instruction: cond ? x : y.
func NewSelect(name string, cond, x, y Value) *Instr {
	return &Instr{name: "%" + name, typ: x.Type(), Kind: InstrSelect, Args: []Value{cond, x, y}}
}

// NewAssume returns an instruction constraining the reachable domain.
func NewAssume(cond Value) *Instr {
	return &Instr{Kind: InstrAssume, Args: []Value{cond}}
}

// NewRequire returns an instruction contributing to the precondition.
func NewRequire(cond Value) *Instr {
	return &Instr{Kind: InstrRequire, Args: []Value{cond}}
}

// NewStore returns an instruction writing x into a memory slot.
func NewStore(slot int, x Value) *Instr {
	return &Instr{Kind: InstrStore, Slot: slot, Args: []Value{x}}
}

// NewLoad returns an instruction reading a memory slot.
func NewLoad(name string, typ Type, slot int) *Instr {
	return &Instr{name: "%" + name, typ: typ, Kind: InstrLoad, Slot: slot}
}

// NewRet returns the function terminator.
func NewRet(x Value) *Instr {
	return &Instr{Kind: InstrRet, Args: []Value{x}}
}

// Function represents a straight-line IR function.
type Function struct {
	FnName  string
	RetType Type
	Inputs  []Value // *Input and *ConstantInput, in declaration order
	Instrs  []*Instr
}

// Holes returns the unresolved hole constants in input order.
func (fn *Function) Holes() []*ConstantInput {
	var holes []*ConstantInput
	for _, in := range fn.Inputs {
		if ci, ok := in.(*ConstantInput); ok && ci.IsHole() {
			holes = append(holes, ci)
		}
	}
	return holes
}

// Transform pairs a source function with a candidate target.
type Transform struct {
	Name string
	Src  *Function
	Tgt  *Function
}
