package postmortem

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/emicklei/postmortem/render"
	"github.com/pkg/errors"
)

// Dumps returns the text of a stack and locals dump: the frames of package
// pkg (all frames if empty), oldest first, and, if failure is not nil, a
// summary of the failure.
//
//	Locals from file "/src/app/count.go", line 12, in example.com/app.count:
//	  count <int> = count = 3
//
//	Exception:
//	  *errors.errorString: count exceeded
//	  args: []string{"count exceeded"}
func Dumps(frames []Frame, failure any, pkg string) string {
	text := stackDumps(frames, pkg)
	if failure == nil {
		return text
	}
	return text + "\n\n" + exceptionDumps(failure)
}

// Dump writes the result of Dumps followed by a newline to w.
func Dump(w io.Writer, frames []Frame, failure any, pkg string) error {
	_, err := io.WriteString(w, Dumps(frames, failure, pkg)+"\n")
	return err
}

func stackDumps(frames []Frame, pkg string) string {
	var b strings.Builder
	for _, frame := range frames {
		if !inPackage(frame.Package, pkg) {
			continue
		}
		fmt.Fprintf(&b, "Locals from file %q, line %d, in %s:\n", frame.File, frame.Line, frame.Function)
		var receivers []Local
		for _, local := range frame.Locals {
			rendered := strings.ReplaceAll(render.Render(local.Name, local.Value), "\n", "\n  ")
			fmt.Fprintf(&b, "  %s %s = %s\n", local.Name, typeTag(local.Value), rendered)
			if local.Receiver {
				receivers = append(receivers, local)
			}
		}
		b.WriteString("\n")
		for _, each := range receivers {
			if dict, ok := objectDict(each.Value); ok {
				b.WriteString("Object dict:\n" + dict + "\n\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func exceptionDumps(failure any) string {
	return fmt.Sprintf("Exception:\n  %s: %s\n  args: %s",
		qualifiedType(reflect.TypeOf(failure)), message(failure), arguments(failure))
}

func message(failure any) string {
	if err, ok := failure.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(failure)
}

// arguments returns the messages along the chain of an error, or the
// panic value itself.
func arguments(failure any) string {
	err, ok := failure.(error)
	if !ok {
		return fmt.Sprintf("%#v", []any{failure})
	}
	var messages []string
	for each := err; each != nil; each = errors.Unwrap(each) {
		msg := each.Error()
		if len(messages) > 0 && messages[len(messages)-1] == msg {
			continue
		}
		messages = append(messages, msg)
	}
	return fmt.Sprintf("%#v", messages)
}

// qualifiedType returns the type name with its full import path, such as
// "*github.com/pkg/errors.fundamental".
func qualifiedType(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	stars := ""
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		stars += "*"
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return stars + t.String()
	}
	return stars + t.PkgPath() + "." + t.Name()
}

func typeTag(v any) string {
	if v == nil {
		return "<nil>"
	}
	return "<" + reflect.TypeOf(v).String() + ">"
}

// objectDict lists the fields of a struct receiver as {Name:value ...}
// without calling methods of the receiver.
func objectDict(receiver any) (string, bool) {
	v := reflect.ValueOf(receiver)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}
	t := v.Type()
	fields := make([]string, t.NumField())
	for i := range fields {
		fields[i] = fmt.Sprintf("%s:%+v", t.Field(i).Name, v.Field(i))
	}
	return "{" + strings.Join(fields, " ") + "}", true
}
