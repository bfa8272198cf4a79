package record

import (
	"reflect"
	"time"
)

// ShallowEqual compares two records field by field, one level deep.
//
// Rules per field value:
//   - time.Time values compare by instant (Equal)
//   - slices compare element-wise with strict element equality
//   - nested maps compare one level of keys with strict value equality
//   - structs and arrays compare with reflect.DeepEqual
//   - everything else compares with == when comparable, else reflect.DeepEqual
func ShallowEqual(a, b Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !fieldEqual(av, bv) {
			return false
		}
	}
	return true
}

func fieldEqual(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case *time.Time:
		bv, ok := b.(*time.Time)
		if !ok {
			return false
		}
		if av == nil || bv == nil {
			return av == bv
		}
		return av.Equal(*bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !strictEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case []string:
		bv, ok := b.([]string)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			if br, isRec := b.(Record); isRec {
				bv, ok = map[string]any(br), true
			}
		}
		return ok && nestedEqual(av, bv)
	case Record:
		return fieldEqual(map[string]any(av), b)
	}
	return strictEqual(a, b)
}

func nestedEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !strictEqual(av, bv) {
			return false
		}
	}
	return true
}

// strictEqual is reference/strict equality: == for comparable scalars,
// identity for maps and slices, deep equality for structs and arrays.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Struct, reflect.Array:
		// == panics when an interface field holds a slice or map.
		return reflect.DeepEqual(a, b)
	case reflect.Map, reflect.Slice:
		if va.Len() != vb.Len() {
			return false
		}
		return va.Len() == 0 || va.Pointer() == vb.Pointer()
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// SameRef reports whether two records are the same map instance.
func SameRef(a, b Record) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
