// Package vsynth implements the constant-synthesis core of a translation
// validation tool. Given the symbolic execution result of a source function
// and of a target function containing unresolved "hole" constants, it decides
// whether some assignment to the holes makes the target a refinement of the
// source for all inputs, and extracts that assignment from a solver model.
package vsynth

import "fmt"

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

// ReservedConstPrefix marks the value variable of a synthesized hole
// constant. Model extraction keys off this prefix.
const ReservedConstPrefix = "%_reservedc"

// UndefVarPrefix names the fresh variables minted for each read of an
// undefined value. The counterexample renderer recognizes them.
const UndefVarPrefix = "undef!"

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
