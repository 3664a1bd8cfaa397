// Package opt carries optional call arguments.
package opt

// Value is an optional value. The zero Value is absent.
type Value[T any] struct {
	v  T
	ok bool
}

// Some wraps v as a present value.
func Some[T any](v T) Value[T] { return Value[T]{v: v, ok: true} }

// None returns an absent value.
func None[T any]() Value[T] { return Value[T]{} }

// Get returns the value and whether it is present.
func (o Value[T]) Get() (T, bool) { return o.v, o.ok }

// IsSet reports whether the value is present.
func (o Value[T]) IsSet() bool { return o.ok }

// Or returns the value, or def when absent.
func (o Value[T]) Or(def T) T {
	if o.ok {
		return o.v
	}
	return def
}

// Float is shorthand for optional float64 arguments.
type Float = Value[float64]

// F wraps a float64.
func F(v float64) Float { return Some(v) }
