// Package render turns arbitrary values into deterministic, indentation aware
// text for stack and locals dumps.
//
// A rendering always starts with the name, followed by " = " and the value.
// Maps and structs put each entry on its own line, indented by two spaces per
// level:
//
//	x = <map[string]int>
//	  x["a"] = 1
//	  x["b"] = 2
//
// Multi-line renderings of collections and plain values are prefixed with a
// line continuation marker (a backslash and a newline) so they can follow a
// "name <type> = " prefix without breaking the alignment of the lines below.
package render

import (
	"reflect"
	"strings"
)

const indent = "  "

// Render returns the textual form of a named value.
// It does not modify value; it may call its GoString, Error or String methods.
func Render(name string, value any) string {
	p := &printer{visiting: map[visit]bool{}}
	return p.render(name, reflect.ValueOf(value))
}

// visit identifies a pointer, map or slice that is being rendered higher up.
// Slices also need their length: a shorter slice of the same array is a
// different value.
type visit struct {
	addr uintptr
	typ  reflect.Type
	len  int
}

type printer struct {
	visiting map[visit]bool
}

func (p *printer) render(name string, v reflect.Value) string {
	return p.classify(v).render(p, name)
}

// enter marks a map or slice as being rendered. It returns false if it
// already is; otherwise the caller must call leave with the key.
func (p *printer) enter(v reflect.Value) (visit, bool) {
	if !v.IsValid() || v.IsNil() {
		return visit{}, true
	}
	key := visit{addr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		if v.Len() == 0 {
			return visit{}, true
		}
		key.len = v.Len()
	}
	if p.visiting[key] {
		return key, false
	}
	p.visiting[key] = true
	return key, true
}

func (p *printer) leave(key visit) {
	delete(p.visiting, key)
}

func cycle(name string, t reflect.Type) string {
	return name + " = <cycle " + t.String() + ">"
}

// classify evaluates the capability checks in order; the first match wins.
func (p *printer) classify(v reflect.Value) strategy {
	for v.IsValid() && v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if !v.IsValid() {
		return fallback{value: v}
	}
	if s, ok := asExchange(v); ok {
		return s
	}
	if s, ok := asMapping(v); ok {
		return s
	}
	if s, ok := asCollection(v); ok {
		return s
	}
	if s, ok := asSelfDescribing(v); ok {
		return s
	}
	if s, ok := asPointer(v); ok {
		return s
	}
	if s, ok := asRecord(v); ok {
		return s
	}
	return fallback{value: v}
}

// nest indents every line after the first one.
func nest(s string) string {
	return strings.ReplaceAll(s, "\n", "\n"+indent)
}

// continued applies the line continuation marker to multi-line text.
func continued(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	return "\\\n" + indent + nest(s)
}

func tag(t reflect.Type) string {
	return "<" + t.String() + ">"
}
