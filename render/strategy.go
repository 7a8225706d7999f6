package render

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/eapache/queue"
)

// strategy renders one classified value under a name.
// The set of strategies is closed: exchange, mapping, collection,
// self-describing, pointer, record and fallback.
type strategy interface {
	render(p *printer, name string) string
}

type exchange struct {
	recognizer Recognizer
	value      any
}

func asExchange(v reflect.Value) (strategy, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	all := recognizers()
	if len(all) == 0 {
		return nil, false
	}
	value := v.Interface()
	for _, each := range all {
		if each.Recognizes(value) {
			return exchange{recognizer: each, value: value}, true
		}
	}
	return nil, false
}

func (e exchange) render(_ *printer, name string) string {
	return e.recognizer.Render(name, e.value)
}

type mapping struct {
	value reflect.Value
}

func asMapping(v reflect.Value) (strategy, bool) {
	if v.Kind() != reflect.Map || isSet(v.Type()) {
		return nil, false
	}
	return mapping{value: v}, true
}

func (m mapping) render(p *printer, name string) string {
	key, ok := p.enter(m.value)
	if !ok {
		return cycle(name, m.value.Type())
	}
	defer p.leave(key)
	var b strings.Builder
	b.WriteString(name + " = " + tag(m.value.Type()))
	for _, key := range sortedKeys(m.value) {
		b.WriteString("\n" + indent)
		b.WriteString(nest(p.render(name+"["+repr(key)+"]", m.value.MapIndex(key))))
	}
	return b.String()
}

// isSet reports whether t is a map used as a set, such as map[string]struct{}.
func isSet(t reflect.Type) bool {
	elem := t.Elem()
	return elem.Kind() == reflect.Struct && elem.NumField() == 0
}

type collection struct {
	// value is the slice, or the deque pointer, checked for cycles
	value    reflect.Value
	typ      reflect.Type
	elements []reflect.Value
	literal  func() string
}

func asCollection(v reflect.Value) (strategy, bool) {
	switch v.Kind() {
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		return sequence(v), true
	case reflect.Array:
		return sequence(v), true
	case reflect.Map:
		if !isSet(v.Type()) {
			return nil, false
		}
		keys := sortedKeys(v)
		return collection{
			typ:      v.Type(),
			elements: keys,
			literal:  func() string { return braced(v.Type().String(), keys) },
		}, true
	case reflect.Pointer:
		if v.IsNil() || !v.CanInterface() {
			return nil, false
		}
		q, ok := v.Interface().(*queue.Queue)
		if !ok {
			return nil, false
		}
		elements := make([]reflect.Value, q.Length())
		for i := range elements {
			elements[i] = reflect.ValueOf(q.Get(i))
		}
		return collection{
			value:    v,
			typ:      v.Type(),
			elements: elements,
			literal:  func() string { return braced(v.Type().String(), elements) },
		}, true
	}
	return nil, false
}

func sequence(v reflect.Value) collection {
	elements := make([]reflect.Value, v.Len())
	for i := range elements {
		elements[i] = v.Index(i)
	}
	var value reflect.Value
	if v.Kind() == reflect.Slice {
		value = v
	}
	return collection{
		value:    value,
		typ:      v.Type(),
		elements: elements,
		literal:  func() string { return repr(v) },
	}
}

func (c collection) render(p *printer, name string) string {
	if allScalar(c.elements) {
		return continued(name + " = " + c.literal())
	}
	if c.value.IsValid() {
		key, ok := p.enter(c.value)
		if !ok {
			return cycle(name, c.typ)
		}
		defer p.leave(key)
	}
	var b strings.Builder
	b.WriteString(name + " = " + tag(c.typ))
	for i, each := range c.elements {
		b.WriteString("\n" + indent)
		b.WriteString(nest(p.render(fmt.Sprintf("%s[%d]", name, i), each)))
	}
	return continued(b.String())
}

// allScalar reports whether every element is an integer, a bool or a string.
func allScalar(elements []reflect.Value) bool {
	for _, each := range elements {
		for each.IsValid() && each.Kind() == reflect.Interface && !each.IsNil() {
			each = each.Elem()
		}
		if !each.IsValid() {
			return false
		}
		switch each.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
			reflect.Bool, reflect.String:
		default:
			return false
		}
	}
	return true
}

func braced(typeName string, elements []reflect.Value) string {
	parts := make([]string, len(elements))
	for i, each := range elements {
		parts[i] = repr(each)
	}
	return typeName + "{" + strings.Join(parts, ", ") + "}"
}

// selfDescribing holds the text a value produced about itself.
type selfDescribing struct {
	text string
}

func asSelfDescribing(v reflect.Value) (strategy, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, false
	}
	switch x := v.Interface().(type) {
	case fmt.GoStringer:
		return selfDescribing{text: x.GoString()}, true
	case error:
		return selfDescribing{text: fmt.Sprintf("%s(%q)", v.Type(), x.Error())}, true
	case fmt.Stringer:
		return selfDescribing{text: fmt.Sprintf("%s(%q)", v.Type(), x.String())}, true
	}
	return nil, false
}

func (s selfDescribing) render(_ *printer, name string) string {
	return continued(name + " = " + s.text)
}

type pointer struct {
	value reflect.Value
}

func asPointer(v reflect.Value) (strategy, bool) {
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, false
	}
	return pointer{value: v}, true
}

func (ptr pointer) render(p *printer, name string) string {
	key := visit{addr: ptr.value.Pointer(), typ: ptr.value.Type()}
	if p.visiting[key] {
		return cycle(name, ptr.value.Type())
	}
	p.visiting[key] = true
	defer delete(p.visiting, key)
	return p.render(name, ptr.value.Elem())
}

type record struct {
	value reflect.Value
}

func asRecord(v reflect.Value) (strategy, bool) {
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	return record{value: v}, true
}

func (r record) render(p *printer, name string) string {
	var b strings.Builder
	t := r.value.Type()
	b.WriteString(name + " = " + tag(t))
	for i := 0; i < t.NumField(); i++ {
		b.WriteString("\n" + indent)
		b.WriteString(nest(p.render(name+"."+t.Field(i).Name, r.value.Field(i))))
	}
	return b.String()
}

type fallback struct {
	value reflect.Value
}

func (f fallback) render(_ *printer, name string) string {
	return continued(name + " = " + repr(f.value))
}
