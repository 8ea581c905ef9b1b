package condition

import (
	"fmt"
	"reflect"
	"strings"
)

// functions are available to every condition. "contains" is reserved by expr
// as a string operator, so membership uses has and includes.
var functions = map[string]any{
	"has":      hasFunc,
	"includes": hasFunc,
	"length":   lengthFunc,
}

// hasFunc reports whether a slice holds an element, a map holds a key, or a
// string holds a substring.
func hasFunc(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires exactly 2 arguments, got %d", len(args))
	}
	collection, target := args[0], args[1]
	if collection == nil {
		return false, nil
	}

	v := reflect.ValueOf(collection)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if reflect.DeepEqual(v.Index(i).Interface(), target) {
				return true, nil
			}
		}
		return false, nil
	case reflect.Map:
		key := reflect.ValueOf(target)
		if !key.IsValid() || !key.Type().AssignableTo(v.Type().Key()) {
			return false, nil
		}
		return v.MapIndex(key).IsValid(), nil
	case reflect.String:
		sub, ok := target.(string)
		if !ok || sub == "" {
			return false, nil
		}
		return strings.Contains(v.String(), sub), nil
	default:
		return false, nil
	}
}

func lengthFunc(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("length requires exactly 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return 0, nil
	}
	v := reflect.ValueOf(args[0])
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("length: unsupported type %T", args[0])
	}
}
