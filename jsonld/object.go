package jsonld

import (
	"encoding/json"
	"math"
)

// TypedLiteral is a JSON-LD value object carrying an explicit datatype.
// It serializes as {"@value": ..., "@type": ...}.
type TypedLiteral struct {
	Value    string
	Datatype string
}

// MarshalJSON implements [json.Marshaler].
func (l TypedLiteral) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"@value": l.Value,
		"@type":  l.Datatype,
	})
}

// Object is a string-keyed container that preserves key insertion order.
// It is the in-memory representation of JSON-LD documents and sub-shape
// objects. Values may be scalars, [TypedLiteral], *Object, or []any of
// those.
//
// Object is not safe for concurrent mutation.
type Object struct {
	vals map[string]any
	keys []string
}

// NewObject creates an empty [Object].
func NewObject() *Object {
	return &Object{
		vals: make(map[string]any),
	}
}

// Set stores v under key. A new key is appended to the key order; an
// existing key keeps its position.
func (o *Object) Set(key string, v any) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}

	o.vals[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.vals[key]

	return v, ok
}

// Delete removes key and its value, preserving the order of the
// remaining keys.
func (o *Object) Delete(key string) {
	if _, ok := o.vals[key]; !ok {
		return
	}

	delete(o.vals, key)

	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)

			break
		}
	}
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

// Keys returns the keys in insertion order. The returned slice is shared;
// callers must not modify it.
func (o *Object) Keys() []string {
	return o.keys
}

// Clone returns a deep copy of the object. Nested *Object and []any
// values are cloned recursively; scalars are copied by value.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}

	clone := NewObject()

	for _, k := range o.keys {
		clone.Set(k, cloneValue(o.vals[k]))
	}

	return clone
}

// Equal reports deep equality of two objects, including key order.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}

	if len(o.keys) != len(other.keys) {
		return false
	}

	for i, k := range o.keys {
		if other.keys[i] != k {
			return false
		}

		if !valueEqual(o.vals[k], other.vals[k]) {
			return false
		}
	}

	return true
}

// MarshalJSON implements [json.Marshaler], emitting keys in insertion
// order. It returns [ErrNonFinite] if any float value is NaN or infinite.
func (o *Object) MarshalJSON() ([]byte, error) {
	return appendObject(nil, o)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Object:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}

func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case *Object:
		bv, ok := b.(*Object)

		return ok && av.Equal(bv)

	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}

		for i := range av {
			if !valueEqual(av[i], bv[i]) {
				return false
			}
		}

		return true

	default:
		return a == b
	}
}

// IsFinite reports whether v is not a non-finite float. Non-float values
// are always finite.
func IsFinite(v any) bool {
	switch f := v.(type) {
	case float64:
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	case float32:
		f64 := float64(f)

		return !math.IsNaN(f64) && !math.IsInf(f64, 0)
	}

	return true
}
