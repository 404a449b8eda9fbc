// Package model holds the building blocks domain models use to satisfy the
// repository, cache and event contracts.
package model

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Field is an optional value that remembers whether it was explicitly set.
//
// Repositories rely on this to drop unset fields on create and to apply
// merge-patch semantics on update. A JSON null decodes as set to null, so an
// update can clear a column; msgpack nil decodes as unset.
type Field[T any] struct {
	value T
	set   bool
	null  bool
}

// Set returns a Field holding v.
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// Null returns a Field explicitly set to null.
func Null[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}

// FromPtr returns an unset Field for nil, otherwise a Field holding *p.
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Field[T]{}
	}
	return Set(*p)
}

// Get returns the value and whether a non-null value was set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set && !f.null
}

// Value returns the held value, or the zero value when unset or null.
func (f Field[T]) Value() T {
	return f.value
}

// IsSet reports whether the field was explicitly provided, null included.
func (f Field[T]) IsSet() bool {
	return f.set
}

// IsNull reports whether the field was explicitly set to null.
func (f Field[T]) IsNull() bool {
	return f.null
}

// IsZero lets `omitzero` drop unset fields when encoding.
func (f Field[T]) IsZero() bool {
	return !f.set
}

// Ptr returns a pointer to a copy of the value, or nil when unset or null.
func (f Field[T]) Ptr() *T {
	if !f.set || f.null {
		return nil
	}
	v := f.value
	return &v
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set || f.null {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Set(v)
	return nil
}

func (f Field[T]) EncodeMsgpack(enc *msgpack.Encoder) error {
	if !f.set || f.null {
		return enc.EncodeNil()
	}
	return enc.Encode(f.value)
}

func (f *Field[T]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var v *T
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*f = FromPtr(v)
	return nil
}

// Dumper is implemented by models that know how to render only the fields
// that were set. Event publishers prefer it over plain encoding.
type Dumper interface {
	Dump() map[string]any
}
