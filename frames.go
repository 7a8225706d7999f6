package postmortem

import (
	"context"
	"net/url"
	"reflect"
	"runtime"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Frame is one call of a captured stack with the locals its Scope bound.
type Frame struct {
	File     string
	Line     int
	Function string
	// Package is the import path of the function. Frames of generated code
	// carry the package of their caller.
	Package string
	Locals  []Local
}

var selfPackage = reflect.TypeOf(Frame{}).PkgPath()

const maxStackDepth = 512

// Stack returns the frames of the calling goroutine, oldest first, with the
// locals of the scopes found in ctx.
func Stack(ctx context.Context) []Frame {
	return liveStack(scopeFromContext(ctx))
}

func liveStack(newest *Scope) []Frame {
	frames := toFrames(liveSegment(callers()))
	bind(frames, newest)
	slices.Reverse(frames)
	return frames
}

// failureStack returns the frames, oldest first, between a guard and the
// place of failure. Without frames, the scopes on the trail are used.
func failureStack(trace []runtime.Frame, t *trail) []Frame {
	frames := toFrames(failureSegment(trace))
	if t == nil {
		slices.Reverse(frames)
		return frames
	}
	if len(frames) == 0 {
		return t.synthesize()
	}
	functions := make(map[string]bool, len(frames))
	for _, each := range frames {
		functions[each.Function] = true
	}
	bind(frames, t.find(func(s *Scope) bool { return functions[s.function] }))
	slices.Reverse(frames)
	return frames
}

func callers() []runtime.Frame {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2, pcs)
	return resolve(pcs[:n])
}

func resolve(pcs []uintptr) []runtime.Frame {
	if len(pcs) == 0 {
		return nil
	}
	var frames []runtime.Frame
	it := runtime.CallersFrames(pcs)
	for {
		frame, more := it.Next()
		frames = append(frames, frame)
		if !more {
			break
		}
	}
	return frames
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// errorFrames returns the stack recorded by the innermost cause of err that has one.
func errorFrames(err error) []runtime.Frame {
	var trace errors.StackTrace
	for each := err; each != nil; each = errors.Unwrap(each) {
		if st, ok := each.(stackTracer); ok {
			trace = st.StackTrace()
		}
	}
	pcs := make([]uintptr, len(trace))
	for i, each := range trace {
		pcs[i] = uintptr(each)
	}
	return resolve(pcs)
}

// isMachinery reports whether function belongs to the capture or logging code.
func isMachinery(function string) bool {
	pkg := packageOf(function)
	switch {
	case pkg == selfPackage, strings.HasPrefix(pkg, selfPackage+"/internal/"):
		return true
	case pkg == "runtime", pkg == "log/slog":
		return true
	case pkg == "go.uber.org/zap", strings.HasPrefix(pkg, "go.uber.org/zap/"):
		return true
	}
	return false
}

func trimMachinery(frames []runtime.Frame) []runtime.Frame {
	for len(frames) > 0 && isMachinery(frames[0].Function) {
		frames = frames[1:]
	}
	return frames
}

// liveSegment drops the capture frames on top and the runtime frames below main.
func liveSegment(frames []runtime.Frame) []runtime.Frame {
	frames = trimMachinery(frames)
	for len(frames) > 0 && packageOf(frames[len(frames)-1].Function) == "runtime" {
		frames = frames[:len(frames)-1]
	}
	return frames
}

// failureSegment drops the capture frames on top and stops at the guard.
func failureSegment(frames []runtime.Frame) []runtime.Frame {
	frames = trimMachinery(frames)
	for i, each := range frames {
		if packageOf(each.Function) == selfPackage {
			return frames[:i]
		}
	}
	return frames
}

// toFrames converts runtime frames, innermost first. Frames without a function
// or of generated code take the package of the nearest older frame and are
// dropped when there is none.
func toFrames(trace []runtime.Frame) []Frame {
	packages := make([]string, len(trace))
	inherited := ""
	for i := len(trace) - 1; i >= 0; i-- {
		if resolvable(trace[i]) {
			inherited = packageOf(trace[i].Function)
		}
		packages[i] = inherited
	}
	frames := make([]Frame, 0, len(trace))
	for i, each := range trace {
		if packages[i] == "" {
			continue
		}
		frames = append(frames, Frame{
			File:     each.File,
			Line:     each.Line,
			Function: each.Function,
			Package:  packages[i],
		})
	}
	return frames
}

func resolvable(frame runtime.Frame) bool {
	return frame.Function != "" && frame.File != "<autogenerated>"
}

// packageOf returns the import path part of a function name such as
// "github.com/org/repo/pkg.(*T).Method". Symbol names escape the dots of the
// last path element, as in "gopkg.in/yaml%2ev3.Unmarshal"; the result is unescaped.
func packageOf(function string) string {
	if i := strings.Index(function, "["); i >= 0 {
		function = function[:i]
	}
	slash := strings.LastIndex(function, "/")
	dot := strings.Index(function[slash+1:], ".")
	if dot < 0 {
		return ""
	}
	pkg := function[:slash+1+dot]
	if strings.Contains(pkg, "%") {
		if unescaped, err := url.PathUnescape(pkg); err == nil {
			return unescaped
		}
	}
	return pkg
}

// bind attaches locals to frames, innermost first. Each frame takes the first
// scope along the chain from s with the same function; scopes skipped over
// are not used for older frames.
func bind(frames []Frame, s *Scope) {
	for i := range frames {
		for probe := s; probe != nil; probe = probe.parent {
			if probe.function == frames[i].Function {
				frames[i].Locals = probe.Locals()
				s = probe.parent
				break
			}
		}
	}
}

// inPackage reports whether pkg is filter or nested under it.
// An empty filter keeps every package.
func inPackage(pkg, filter string) bool {
	return filter == "" || pkg == filter || strings.HasPrefix(pkg, filter+"/")
}
