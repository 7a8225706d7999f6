package render

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// repr returns the debug representation of a value.
func repr(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		typeName := v.Type().String()
		if v.Type().Name() == "" {
			typeName = "[]byte"
		}
		if v.IsNil() {
			return typeName + "(nil)"
		}
		return typeName + "(" + strconv.Quote(string(v.Bytes())) + ")"
	}
	if v.CanInterface() {
		return fmt.Sprintf("%#v", v.Interface())
	}
	// unexported struct fields; fmt prints them without calling methods
	return fmt.Sprintf("%#v", v)
}

// sortedKeys returns the keys of a map in a stable order.
func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	sort.SliceStable(keys, func(i, j int) bool {
		return lessKey(keys[i], keys[j])
	})
	return keys
}

func lessKey(a, b reflect.Value) bool {
	for a.Kind() == reflect.Interface && !a.IsNil() {
		a = a.Elem()
	}
	for b.Kind() == reflect.Interface && !b.IsNil() {
		b = b.Elem()
	}
	if a.Kind() == b.Kind() {
		switch a.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Int() < b.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return a.Uint() < b.Uint()
		case reflect.Float32, reflect.Float64:
			return a.Float() < b.Float()
		case reflect.String:
			return a.String() < b.String()
		case reflect.Bool:
			return !a.Bool() && b.Bool()
		}
	}
	return repr(a) < repr(b)
}
