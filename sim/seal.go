package sim

import (
	"reflect"
	"unsafe"
)

// sealer is implemented by every port type.
type sealer interface {
	seal()
}

var sealerType = reflect.TypeOf((*sealer)(nil)).Elem()

// sealPorts seals every port reachable from v, through pointers, interfaces,
// struct fields (exported or not), slices, arrays and map values.
func sealPorts(v any) {
	if v == nil {
		return
	}
	w := portWalker{seen: make(map[visit]bool)}
	w.walk(reflect.ValueOf(v))
}

type visit struct {
	ptr uintptr
	typ reflect.Type
}

type portWalker struct {
	seen map[visit]bool
}

func (w *portWalker) walk(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		// unexported fields are read-only to reflect; rebuild the pointer
		p := reflect.NewAt(v.Type().Elem(), unsafe.Pointer(v.Pointer()))
		if p.Type().Implements(sealerType) {
			p.Interface().(sealer).seal()
			return
		}
		key := visit{ptr: p.Pointer(), typ: p.Type()}
		if w.seen[key] {
			return
		}
		w.seen[key] = true
		w.walk(p.Elem())
	case reflect.Interface:
		if !v.IsNil() {
			w.walk(v.Elem())
		}
	case reflect.Struct:
		if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(sealerType) {
			reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Interface().(sealer).seal()
			return
		}
		for i := 0; i < v.NumField(); i++ {
			w.walk(v.Field(i))
		}
	case reflect.Slice, reflect.Array:
		if !mayHoldPorts(v.Type().Elem()) {
			return
		}
		for i := 0; i < v.Len(); i++ {
			w.walk(v.Index(i))
		}
	case reflect.Map:
		if !mayHoldPorts(v.Type().Elem()) {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			w.walk(iter.Value())
		}
	}
}

func mayHoldPorts(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}
