package vsynth

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/tools/txtar"
)

// ParseTransform reads a source/target function pair from a txtar archive.
// The archive must contain a "src" file and a "tgt" file, each holding one
// straight-line function in the textual form accepted by parseFunction.
// The archive comment, first line only, names the transform.
func ParseTransform(data []byte) (*Transform, error) {
	arc := txtar.Parse(data)

	t := &Transform{}
	if comment := strings.TrimSpace(string(arc.Comment)); comment != "" {
		t.Name, _, _ = strings.Cut(comment, "\n")
	}

	for _, f := range arc.Files {
		fn, err := parseFunction(f.Name, string(f.Data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		switch f.Name {
		case "src":
			t.Src = fn
		case "tgt":
			t.Tgt = fn
		default:
			return nil, fmt.Errorf("unexpected file %q in transform archive", f.Name)
		}
	}
	if t.Src == nil {
		return nil, fmt.Errorf("transform archive has no src function")
	}
	if t.Tgt == nil {
		return nil, fmt.Errorf("transform archive has no tgt function")
	}
	return t, nil
}

// parseFunction reads one function in a line-oriented textual form:
//
//	%x = input i8
//	%c = constinput i8
//	%h = hole i8
//	%t0 = add nsw i8 %x, %c
//	%t1 = icmp slt i8 %t0, 10
//	%t2 = select i1 %t1, i8 %t0, i8 0
//	assume i1 %t1
//	require i1 %t1
//	store i8 %t0, slot 0
//	%t3 = load i8, slot 0
//	ret i8 %t3
//
// Operands are names, decimal integers, or the token "undef". Lines that
// are blank or start with ";" are skipped. Only integer types are
// accepted; aggregate-typed functions are built programmatically.
func parseFunction(name, text string) (*Function, error) {
	p := &functionParser{
		fn:       &Function{FnName: name},
		bindings: make(map[string]Value),
	}

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if err := p.parseLine(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	if p.fn.RetType == nil {
		return nil, fmt.Errorf("function has no ret instruction")
	}
	return p.fn, nil
}

type functionParser struct {
	fn       *Function
	bindings map[string]Value
}

func (p *functionParser) parseLine(line string) error {
	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))

	// Result-producing lines start with "%name =".
	if strings.HasPrefix(fields[0], "%") {
		if len(fields) < 3 || fields[1] != "=" {
			return fmt.Errorf("malformed assignment: %q", line)
		}
		return p.parseAssign(strings.TrimPrefix(fields[0], "%"), fields[2:])
	}

	switch fields[0] {
	case "assume", "require":
		if len(fields) != 3 {
			return fmt.Errorf("malformed %s: %q", fields[0], line)
		}
		typ, err := parseType(fields[1])
		if err != nil {
			return err
		}
		cond, err := p.operand(typ, fields[2])
		if err != nil {
			return err
		}
		if fields[0] == "assume" {
			p.fn.Instrs = append(p.fn.Instrs, NewAssume(cond))
		} else {
			p.fn.Instrs = append(p.fn.Instrs, NewRequire(cond))
		}
		return nil

	case "store":
		if len(fields) != 5 || fields[3] != "slot" {
			return fmt.Errorf("malformed store: %q", line)
		}
		typ, err := parseType(fields[1])
		if err != nil {
			return err
		}
		x, err := p.operand(typ, fields[2])
		if err != nil {
			return err
		}
		slot, err := strconv.Atoi(fields[4])
		if err != nil {
			return fmt.Errorf("malformed slot: %q", fields[4])
		}
		p.fn.Instrs = append(p.fn.Instrs, NewStore(slot, x))
		return nil

	case "ret":
		if len(fields) != 3 {
			return fmt.Errorf("malformed ret: %q", line)
		}
		typ, err := parseType(fields[1])
		if err != nil {
			return err
		}
		x, err := p.operand(typ, fields[2])
		if err != nil {
			return err
		}
		p.fn.Instrs = append(p.fn.Instrs, NewRet(x))
		p.fn.RetType = typ
		return nil

	default:
		return fmt.Errorf("unknown instruction: %q", fields[0])
	}
}

func (p *functionParser) parseAssign(name string, rest []string) error {
	switch rest[0] {
	case "input", "constinput", "hole":
		if len(rest) != 2 {
			return fmt.Errorf("malformed %s declaration", rest[0])
		}
		typ, err := parseType(rest[1])
		if err != nil {
			return err
		}
		var v Value
		switch rest[0] {
		case "input":
			v = NewInput(name, typ)
		case "constinput":
			v = NewConstantInput(name, typ)
		case "hole":
			v = NewHole(name, typ)
		}
		p.fn.Inputs = append(p.fn.Inputs, v)
		return p.bind(name, v)

	case "icmp":
		if len(rest) != 5 {
			return fmt.Errorf("malformed icmp")
		}
		op, err := parseOp(rest[1], BinaryOp.IsCompare)
		if err != nil {
			return err
		}
		typ, err := parseType(rest[2])
		if err != nil {
			return err
		}
		x, err := p.operand(typ, rest[3])
		if err != nil {
			return err
		}
		y, err := p.operand(typ, rest[4])
		if err != nil {
			return err
		}
		in := NewICmp(name, op, x, y)
		p.fn.Instrs = append(p.fn.Instrs, in)
		return p.bind(name, in)

	case "select":
		if len(rest) != 7 {
			return fmt.Errorf("malformed select")
		}
		condType, err := parseType(rest[1])
		if err != nil {
			return err
		}
		cond, err := p.operand(condType, rest[2])
		if err != nil {
			return err
		}
		xType, err := parseType(rest[3])
		if err != nil {
			return err
		}
		x, err := p.operand(xType, rest[4])
		if err != nil {
			return err
		}
		yType, err := parseType(rest[5])
		if err != nil {
			return err
		}
		y, err := p.operand(yType, rest[6])
		if err != nil {
			return err
		}
		in := NewSelect(name, cond, x, y)
		p.fn.Instrs = append(p.fn.Instrs, in)
		return p.bind(name, in)

	case "load":
		if len(rest) != 4 || rest[2] != "slot" {
			return fmt.Errorf("malformed load")
		}
		typ, err := parseType(rest[1])
		if err != nil {
			return err
		}
		slot, err := strconv.Atoi(rest[3])
		if err != nil {
			return fmt.Errorf("malformed slot: %q", rest[3])
		}
		in := NewLoad(name, typ, slot)
		p.fn.Instrs = append(p.fn.Instrs, in)
		return p.bind(name, in)

	default:
		// Arithmetic binop, with an optional nsw marker.
		op, err := parseOp(rest[0], BinaryOp.IsArithmetic)
		if err != nil {
			return err
		}
		rest = rest[1:]
		nsw := false
		if len(rest) > 0 && rest[0] == "nsw" {
			if op != ADD && op != SUB {
				return fmt.Errorf("nsw only applies to add and sub")
			}
			nsw = true
			rest = rest[1:]
		}
		if len(rest) != 3 {
			return fmt.Errorf("malformed %s", op)
		}
		typ, err := parseType(rest[0])
		if err != nil {
			return err
		}
		x, err := p.operand(typ, rest[1])
		if err != nil {
			return err
		}
		y, err := p.operand(typ, rest[2])
		if err != nil {
			return err
		}
		in := NewBinOp(name, op, nsw, x, y)
		p.fn.Instrs = append(p.fn.Instrs, in)
		return p.bind(name, in)
	}
}

func (p *functionParser) bind(name string, v Value) error {
	if _, ok := p.bindings[name]; ok {
		return fmt.Errorf("duplicate definition of %%%s", name)
	}
	p.bindings[name] = v
	return nil
}

// operand resolves a name, a decimal literal, or the undef token.
func (p *functionParser) operand(typ Type, tok string) (Value, error) {
	switch {
	case strings.HasPrefix(tok, "%"):
		v, ok := p.bindings[strings.TrimPrefix(tok, "%")]
		if !ok {
			return nil, fmt.Errorf("undefined value: %s", tok)
		}
		return v, nil
	case tok == "undef":
		return NewUndef(typ), nil
	default:
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed operand: %q", tok)
		}
		return NewLiteral(typ, uint64(n)&bitmask(typ.BitSize())), nil
	}
}

func parseType(tok string) (Type, error) {
	if !strings.HasPrefix(tok, "i") {
		return nil, fmt.Errorf("malformed type: %q", tok)
	}
	bits, err := strconv.Atoi(strings.TrimPrefix(tok, "i"))
	if err != nil || bits < 1 || bits > 64 {
		return nil, fmt.Errorf("malformed type: %q", tok)
	}
	return NewIntType(uint(bits)), nil
}

func parseOp(tok string, valid func(BinaryOp) bool) (BinaryOp, error) {
	for op, s := range binaryOps {
		if s == tok && valid(BinaryOp(op)) {
			return BinaryOp(op), nil
		}
	}
	return 0, fmt.Errorf("unknown operator: %q", tok)
}
