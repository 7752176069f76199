package vsynth

import "strings"

// Error describes one reason a transform could not be validated. Tooling
// failures (timeouts, solver errors) are recorded alongside genuine
// counterexamples so the caller can tell them apart.
type Error struct {
	Msg              string
	IsCounterexample bool
}

// Errors accumulates validation failures in the order they were found.
type Errors struct {
	errs []Error
}

// Add records a failure.
func (e *Errors) Add(msg string, isCounterexample bool) {
	e.errs = append(e.errs, Error{Msg: msg, IsCounterexample: isCounterexample})
}

// IsEmpty returns true if no failure was recorded.
func (e *Errors) IsEmpty() bool { return len(e.errs) == 0 }

// Counterexample returns true if any recorded failure is a genuine
// counterexample rather than a tooling failure.
func (e *Errors) Counterexample() bool {
	for _, err := range e.errs {
		if err.IsCounterexample {
			return true
		}
	}
	return false
}

// List returns the recorded failures.
func (e *Errors) List() []Error { return e.errs }

// String returns every failure message, one after another.
func (e *Errors) String() string {
	var sb strings.Builder
	for _, err := range e.errs {
		sb.WriteString(err.Msg)
	}
	return sb.String()
}
