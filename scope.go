package postmortem

import (
	"context"
	"runtime"
	"slices"
	"sync"
)

// Local is a value bound to a name in a Scope.
type Local struct {
	Name  string
	Value any
	// Receiver marks the value the function was called on.
	// Its fields are listed once more after the locals of the frame.
	Receiver bool
}

// Scope holds the locals of one function call.
// Go cannot inspect the variables of a running function, so the function
// binds the values worth seeing in a dump itself:
//
//	func (s *Store) Put(ctx context.Context, key string, v []byte) error {
//		ctx, scope := postmortem.Enter(ctx)
//		scope.Receiver("s", s).Bind("key", key).Bind("v", v)
//		...
//	}
//
// A Scope is matched to a stack frame by the name of its function.
type Scope struct {
	parent   *Scope
	trail    *trail
	file     string
	line     int
	function string

	mu     sync.Mutex
	locals []Local
}

// Enter opens a scope for the calling function and returns a context carrying it.
// Pass the context to callees so their scopes are linked to this one.
func Enter(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{parent: scopeFromContext(ctx), trail: trailFromContext(ctx)}
	var pcs [1]uintptr
	if runtime.Callers(2, pcs[:]) == 1 {
		frame, _ := runtime.CallersFrames(pcs[:]).Next()
		s.file, s.line, s.function = frame.File, frame.Line, frame.Function
	}
	if s.trail != nil {
		s.trail.record(s)
	}
	return context.WithValue(ctx, scopeKey, s), s
}

// Bind records a local. Binding a name again replaces its value and keeps its position.
func (s *Scope) Bind(name string, value any) *Scope {
	s.bind(Local{Name: name, Value: value})
	return s
}

// Receiver records the value the function was called on.
func (s *Scope) Receiver(name string, value any) *Scope {
	s.bind(Local{Name: name, Value: value, Receiver: true})
	return s
}

func (s *Scope) bind(l Local) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.locals {
		if s.locals[i].Name == l.Name {
			s.locals[i] = l
			return
		}
	}
	s.locals = append(s.locals, l)
}

// Locals returns the bound locals in binding order.
func (s *Scope) Locals() []Local {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.locals)
}

// Function returns the package qualified name of the function that entered the scope.
func (s *Scope) Function() string { return s.function }

// frame returns the scope as a frame at the line where it was entered.
func (s *Scope) frame() Frame {
	return Frame{
		File:     s.file,
		Line:     s.line,
		Function: s.function,
		Package:  packageOf(s.function),
		Locals:   s.Locals(),
	}
}
