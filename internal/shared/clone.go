// Package shared provides helpers used across layers.
package shared

import "reflect"

type visitKey struct {
	typ reflect.Type
	ptr uintptr
}

// DeepCopy returns a structurally independent copy of an arbitrary value.
// Model and generator snapshots rely on it: mutating the original after
// copying must not be observable through the copy. Cyclic references are
// preserved. Unexported struct fields are carried over by the initial
// shallow set but their pointee data is not followed; snapshot state must
// live in exported fields.
func DeepCopy(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	copied := deepCopyValue(reflect.ValueOf(value), make(map[visitKey]reflect.Value))
	if !copied.IsValid() {
		return nil
	}
	return copied.Interface()
}

func deepCopyValue(value reflect.Value, seen map[visitKey]reflect.Value) reflect.Value {
	if !value.IsValid() {
		return value
	}

	switch value.Kind() {
	case reflect.Map:
		if value.IsNil() {
			return reflect.Zero(value.Type())
		}
		key := visitKey{typ: value.Type(), ptr: value.Pointer()}
		if cached, ok := seen[key]; ok {
			return cached
		}
		out := reflect.MakeMapWithSize(value.Type(), value.Len())
		seen[key] = out
		for _, mk := range value.MapKeys() {
			out.SetMapIndex(deepCopyValue(mk, seen), deepCopyValue(value.MapIndex(mk), seen))
		}
		return out

	case reflect.Slice:
		if value.IsNil() {
			return reflect.Zero(value.Type())
		}
		key := visitKey{typ: value.Type(), ptr: value.Pointer()}
		if cached, ok := seen[key]; ok {
			return cached
		}
		out := reflect.MakeSlice(value.Type(), value.Len(), value.Len())
		seen[key] = out
		for i := 0; i < value.Len(); i++ {
			out.Index(i).Set(deepCopyValue(value.Index(i), seen))
		}
		return out

	case reflect.Array:
		out := reflect.New(value.Type()).Elem()
		for i := 0; i < value.Len(); i++ {
			out.Index(i).Set(deepCopyValue(value.Index(i), seen))
		}
		return out

	case reflect.Ptr:
		if value.IsNil() {
			return reflect.Zero(value.Type())
		}
		key := visitKey{typ: value.Type(), ptr: value.Pointer()}
		if cached, ok := seen[key]; ok {
			return cached
		}
		out := reflect.New(value.Type().Elem())
		seen[key] = out
		out.Elem().Set(deepCopyValue(value.Elem(), seen))
		return out

	case reflect.Interface:
		if value.IsNil() {
			return reflect.Zero(value.Type())
		}
		return deepCopyValue(value.Elem(), seen)

	case reflect.Struct:
		out := reflect.New(value.Type()).Elem()
		out.Set(value)
		for i := 0; i < value.NumField(); i++ {
			dst := out.Field(i)
			if !dst.CanSet() {
				continue
			}
			field := deepCopyValue(value.Field(i), seen)
			if !field.IsValid() {
				continue
			}
			if field.Type().AssignableTo(dst.Type()) {
				dst.Set(field)
			}
		}
		return out

	default:
		return value
	}
}
