package effects

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"github.com/davecgh/go-spew/spew"
)

// Key identifies an effect across passes. Two effects with equal keys are the
// same effect and a running instance of one is kept for the other.
//
// Keys of semantically different effects must differ; the loop cannot tell
// them apart otherwise.
type Key string

// KeyFunc derives the identity of an effect. It must be deterministic and
// free of side effects; the loop calls it once per effect per pass.
type KeyFunc[V any] func(Effect[V]) Key

// EqualFunc reports whether two effects denote the same running effect. It
// must be an equivalence relation.
type EqualFunc[V any] func(a, b Effect[V]) bool

// argDumper renders arguments structurally. Pointer addresses are kept, so
// reference-typed arguments compare by identity.
var argDumper = spew.ConfigState{
	Indent:                  " ",
	DisableMethods:          true,
	DisablePointerMethods:   true,
	DisableCapacities:       true,
	SortKeys:                true,
	SpewKeys:                true,
	DisablePointerAddresses: false,
}

// DefaultKey returns e.Key when set. Otherwise it combines the effect name
// (or the symbol name of its function) with a hash of a structural dump of
// the arguments.
//
// Closures share the symbol name of their literal, so two closures from the
// same literal with equal arguments are the same effect. Prefer an explicit
// Key whenever the function alone does not identify the effect.
func DefaultKey[V any](e Effect[V]) Key {
	if e.Key != "" {
		return e.Key
	}
	name := e.Name
	if name == "" {
		name = funcName(e.Fn)
	}
	if len(e.Args) == 0 {
		return Key(name)
	}
	dump := argDumper.Sdump(e.Args...)
	return Key(fmt.Sprintf("%s/%016x", name, xxhash.Sum64String(dump)))
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "<nil>"
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return fmt.Sprintf("func@%x", v.Pointer())
}
