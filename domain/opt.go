package domain

import (
	"bytes"
	"encoding/json"
)

type presence uint8

const (
	unobserved presence = iota
	cleared
	present
)

// Opt is a mutable field that distinguishes "not observed in this event" from
// "explicitly set to null" and "set to a value". Unobserved fields are omitted
// from JSON (omitzero) and never overwrite a base value during a merge.
type Opt[T any] struct {
	val   T
	state presence
}

func Some[T any](v T) Opt[T] { return Opt[T]{val: v, state: present} }

func Null[T any]() Opt[T] { return Opt[T]{state: cleared} }

func (o Opt[T]) IsZero() bool   { return o.state == unobserved }
func (o Opt[T]) Observed() bool { return o.state != unobserved }
func (o Opt[T]) IsNull() bool   { return o.state == cleared }
func (o Opt[T]) Present() bool  { return o.state == present }

// Get returns the value and whether one is present.
func (o Opt[T]) Get() (T, bool) { return o.val, o.state == present }

func (o Opt[T]) ValueOr(def T) T {
	if o.state == present {
		return o.val
	}
	return def
}

// Or returns o when it was observed, otherwise base.
func (o Opt[T]) Or(base Opt[T]) Opt[T] {
	if o.state == unobserved {
		return base
	}
	return o
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if o.state != present {
		return []byte("null"), nil
	}
	return json.Marshal(o.val)
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.val, o.state = zero, cleared
		return nil
	}
	if err := json.Unmarshal(data, &o.val); err != nil {
		return err
	}
	o.state = present
	return nil
}
