// Package transform provides the named value-transform registry applied
// by the field mapper. Built-in transforms cover the common cleanups for
// education records: concept-scheme prefixing, date normalization,
// identifier cleaning, and code-list lookup.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Func is a pure value transform. It receives a scalar rendered as a
// string and returns the transformed value.
type Func func(string) (string, error)

var (
	// ErrUnknownTransform indicates a transform name has no registration.
	ErrUnknownTransform = errors.New("unknown transform")
	// ErrBuiltinRedefinition indicates an attempt to replace a built-in
	// transform.
	ErrBuiltinRedefinition = errors.New("cannot redefine built-in transform")
	// ErrRegistryFrozen indicates a registration after the registry was
	// frozen.
	ErrRegistryFrozen = errors.New("transform registry is frozen")
	// ErrInvalidDate indicates a date string that is not an accepted ISO
	// form or is an impossible calendar date.
	ErrInvalidDate = errors.New("invalid date")
	// ErrNotInteger indicates a value with no usable digits, or a
	// non-finite numeric rendering.
	ErrNotInteger = errors.New("not an integer")
	// ErrUnknownCode indicates a code-list lookup miss.
	ErrUnknownCode = errors.New("unknown code")
)

// Registry maps transform names to functions. The zero value is not
// usable; create instances with [NewRegistry], which installs the
// built-ins. A Registry is safe for concurrent reads; registration is
// allowed only until [Registry.Freeze] is called (the pipeline freezes
// its registry once the mapper is compiled).
type Registry struct {
	fns      map[string]Func
	builtins map[string]bool
	mu       sync.RWMutex
	frozen   bool
}

// NewRegistry creates a [Registry] populated with the built-in
// transforms.
func NewRegistry() *Registry {
	r := &Registry{
		fns:      make(map[string]Func),
		builtins: make(map[string]bool),
	}

	for name, fn := range map[string]Func{
		"sex_prefix":       SexPrefix,
		"race_prefix":      RacePrefix,
		"first_pipe_split": FirstPipeSplit,
		"date_format":      DateFormat,
		"int_clean":        IntClean,
	} {
		r.fns[name] = fn
		r.builtins[name] = true
	}

	return r
}

// Register adds a user transform. Redefining a built-in returns
// [ErrBuiltinRedefinition]; registering after [Registry.Freeze] returns
// [ErrRegistryFrozen].
func (r *Registry) Register(name string, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: %q", ErrRegistryFrozen, name)
	}

	if r.builtins[name] {
		return fmt.Errorf("%w: %q", ErrBuiltinRedefinition, name)
	}

	r.fns[name] = fn

	return nil
}

// Freeze disallows further registration. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// IsBuiltin reports whether name is one of the built-in transforms.
func (r *Registry) IsBuiltin(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.builtins[name]
}

// Get returns the transform registered under name.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.fns[name]

	return fn, ok
}

// Names returns all registered transform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.fns))
	for name := range r.fns {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// Apply runs the named transforms in order over v.
func (r *Registry) Apply(names []string, v string) (string, error) {
	for _, name := range names {
		fn, ok := r.Get(name)
		if !ok {
			return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownTransform, name, strings.Join(r.Names(), ", "))
		}

		var err error

		v, err = fn(v)
		if err != nil {
			return "", fmt.Errorf("transform %q: %w", name, err)
		}
	}

	return v, nil
}

// SexPrefix prefixes a non-empty value with "Sex_", forming a named
// individual in the Sex concept scheme.
func SexPrefix(v string) (string, error) {
	if v == "" {
		return "", nil
	}

	return "Sex_" + v, nil
}

// RacePrefix prefixes a non-empty value with "RaceAndEthnicity_".
func RacePrefix(v string) (string, error) {
	if v == "" {
		return "", nil
	}

	return "RaceAndEthnicity_" + v, nil
}

// FirstPipeSplit returns the segment before the first "|". Pure-digit
// values are returned verbatim so identifiers of any length survive
// without numeric conversion.
func FirstPipeSplit(v string) (string, error) {
	if v != "" && isDigits(v) {
		return v, nil
	}

	first, _, _ := strings.Cut(v, "|")

	return first, nil
}

// acceptedDateLayouts are the ISO-style layouts DateFormat normalizes.
// American MM-DD-YYYY is deliberately absent.
var acceptedDateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"20060102",
}

// DateFormat normalizes a date string to YYYY-MM-DD. Impossible calendar
// dates and non-ISO orderings are rejected with [ErrInvalidDate].
func DateFormat(v string) (string, error) {
	if v == "" {
		return "", nil
	}

	for _, layout := range acceptedDateLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t.Format("2006-01-02"), nil
		}
	}

	return "", fmt.Errorf("%w: %q is not an ISO date (expected YYYY-MM-DD)", ErrInvalidDate, v)
}

// IntClean strips every non-digit character, preserving a leading minus
// sign. The result stays a string at full precision. Non-finite
// renderings ("NaN", "Infinity") and digit-free values are rejected.
func IntClean(v string) (string, error) {
	trimmed := strings.TrimSpace(v)
	lowered := strings.ToLower(strings.TrimLeft(trimmed, "+-"))

	if lowered == "nan" || lowered == "inf" || lowered == "infinity" {
		return "", fmt.Errorf("%w: %q", ErrNotInteger, v)
	}

	var sb strings.Builder

	if strings.HasPrefix(trimmed, "-") {
		sb.WriteByte('-')
	}

	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] >= '0' && trimmed[i] <= '9' {
			sb.WriteByte(trimmed[i])
		}
	}

	out := sb.String()
	if out == "" || out == "-" {
		return "", fmt.Errorf("%w: %q has no digits", ErrNotInteger, v)
	}

	return out, nil
}

// CodeListLookup returns a transform that resolves human-readable values
// through a caller-supplied code table, yielding the mapped IRI or
// notation.
func CodeListLookup(table map[string]string) Func {
	return func(v string) (string, error) {
		if v == "" {
			return "", nil
		}

		mapped, ok := table[v]
		if !ok {
			known := make([]string, 0, len(table))
			for k := range table {
				known = append(known, k)
			}

			sort.Strings(known)

			return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownCode, v, strings.Join(known, ", "))
		}

		return mapped, nil
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
