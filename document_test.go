package postmortem

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

func assertText(t *testing.T, got string, want ...string) {
	t.Helper()
	expected := strings.Join(want, "\n")
	if got == expected {
		return
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected + "\n"),
		B:        difflib.SplitLines(got + "\n"),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	t.Errorf("document mismatch\n%s", diff)
}

type store struct {
	Name string
	size int
}

func sampleFrames() []Frame {
	return []Frame{
		{
			File: "/src/app/main.go", Line: 10, Function: "example.com/app.main", Package: "example.com/app",
			Locals: []Local{{Name: "x", Value: map[string]int{"b": 2, "a": 1}}},
		},
		{
			File: "/src/lib/lib.go", Line: 3, Function: "example.org/lib.Do", Package: "example.org/lib",
			Locals: []Local{{Name: "hidden", Value: 1}},
		},
		{
			File: "/src/app/store/store.go", Line: 20, Function: "example.com/app/store.(*store).Put", Package: "example.com/app/store",
			Locals: []Local{
				{Name: "s", Value: struct{ Name string }{"orders"}},
				{Name: "key", Value: "k"},
			},
		},
	}
}

func TestDumpsFiltersByPackage(t *testing.T) {
	assertText(t, Dumps(sampleFrames(), nil, "example.com/app"),
		`Locals from file "/src/app/main.go", line 10, in example.com/app.main:`,
		`  x <map[string]int> = x = <map[string]int>`,
		`    x["a"] = 1`,
		`    x["b"] = 2`,
		``,
		`Locals from file "/src/app/store/store.go", line 20, in example.com/app/store.(*store).Put:`,
		`  s <struct { Name string }> = s = <struct { Name string }>`,
		`    s.Name = "orders"`,
		`  key <string> = key = "k"`,
	)
}

func TestDumpsWithoutFilter(t *testing.T) {
	if got := Dumps(sampleFrames(), nil, ""); !strings.Contains(got, "in example.org/lib.Do:\n  hidden <int> = hidden = 1\n") {
		t.Errorf("expected all frames in\n%s", got)
	}
}

func TestDumpsPrefixIsNotAPackage(t *testing.T) {
	if got := Dumps(sampleFrames(), nil, "example.com/ap"); got != "" {
		t.Errorf("expected empty document, got\n%s", got)
	}
}

func TestDumpsObjectDict(t *testing.T) {
	frames := []Frame{{
		File: "/src/app/store.go", Line: 20, Function: "example.com/app.(*store).Put", Package: "example.com/app",
		Locals: []Local{
			{Name: "s", Value: &store{Name: "orders", size: 2}, Receiver: true},
			{Name: "key", Value: "k"},
		},
	}}
	assertText(t, Dumps(frames, nil, ""),
		`Locals from file "/src/app/store.go", line 20, in example.com/app.(*store).Put:`,
		`  s <*postmortem.store> = s = <postmortem.store>`,
		`    s.Name = "orders"`,
		`    s.size = 2`,
		`  key <string> = key = "k"`,
		``,
		`Object dict:`,
		`{Name:orders size:2}`,
	)
}

func TestDumpsContinuedValue(t *testing.T) {
	frames := []Frame{{
		File: "f.go", Line: 1, Function: "example.com/app.f", Package: "example.com/app",
		Locals: []Local{{Name: "m", Value: [][]int{{1}, {2}}}, {Name: "none", Value: nil}},
	}}
	assertText(t, Dumps(frames, nil, ""),
		`Locals from file "f.go", line 1, in example.com/app.f:`,
		`  m <[][]int> = \`,
		`    m = <[][]int>`,
		`      m[0] = []int{1}`,
		`      m[1] = []int{2}`,
		`  none <nil> = none = nil`,
	)
}

func TestDumpsException(t *testing.T) {
	frames := sampleFrames()[:1]
	frames[0].Locals = nil
	assertText(t, Dumps(frames, errors.New("boom"), ""),
		`Locals from file "/src/app/main.go", line 10, in example.com/app.main:`,
		``,
		`Exception:`,
		`  *errors.errorString: boom`,
		`  args: []string{"boom"}`,
	)
	assertText(t, Dumps(nil, "oops", ""),
		``,
		``,
		`Exception:`,
		`  string: oops`,
		`  args: []interface {}{"oops"}`,
	)
}

type failure struct{}

func (f failure) Error() string { return "failure" }

func TestQualifiedType(t *testing.T) {
	for _, each := range []struct {
		value any
		want  string
	}{
		{errors.New("x"), "*errors.errorString"},
		{failure{}, "github.com/emicklei/postmortem.failure"},
		{&failure{}, "*github.com/emicklei/postmortem.failure"},
		{42, "int"},
		{[]string{}, "[]string"},
		{nil, "nil"},
	} {
		if got := qualifiedType(reflect.TypeOf(each.value)); got != each.want {
			t.Errorf("got [%v] want [%v]", got, each.want)
		}
	}
}

func TestArgumentsOfWrappedError(t *testing.T) {
	err := errors.Join(errors.New("a"))
	wrapped := wrap{err: err}
	if got, want := arguments(wrapped), `[]string{"outer: a", "a"}`; got != want {
		t.Errorf("got [%[1]v:%[1]T] want [%[2]v:%[2]T]", got, want)
	}
}

type wrap struct{ err error }

func (w wrap) Error() string { return "outer: " + w.err.Error() }
func (w wrap) Unwrap() error { return w.err }
