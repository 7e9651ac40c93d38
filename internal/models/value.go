package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved keys that carry encryption metadata. They are never part of the
// decrypted document.
const (
	KeyEncryption = "_encryption"
	KeyEncrypted  = "_encrypted"
	KeyData       = "_data"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindScalar Kind = iota
	KindSequence
	KindMapping
	KindEnvelope
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

// Value is a JSON document node. The set of implementations is closed:
// Scalar, Sequence, Mapping and Envelope.
type Value interface {
	Kind() Kind
	// Interface converts the node back to plain Go values
	// (map[string]any, []any, string, json.Number, bool, nil).
	Interface() any

	sealed()
}

// Scalar is a string, number, boolean or null.
type Scalar struct {
	V any
}

// Sequence is an ordered list of nodes.
type Sequence []Value

// Mapping is a keyed object.
type Mapping map[string]Value

// Envelope is a ciphertext node awaiting decryption. Data is empty when the
// envelope was malformed.
type Envelope struct {
	Data string
}

func (Scalar) Kind() Kind   { return KindScalar }
func (Sequence) Kind() Kind { return KindSequence }
func (Mapping) Kind() Kind  { return KindMapping }
func (Envelope) Kind() Kind { return KindEnvelope }

func (Scalar) sealed()   {}
func (Sequence) sealed() {}
func (Mapping) sealed()  {}
func (Envelope) sealed() {}

func (s Scalar) Interface() any { return s.V }

func (s Sequence) Interface() any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v.Interface()
	}
	return out
}

func (m Mapping) Interface() any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

func (e Envelope) Interface() any {
	return map[string]any{KeyEncrypted: true, KeyData: e.Data}
}

// Keys returns the mapping keys in sorted order.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue decodes JSON into a Value tree. Numbers are kept as json.Number.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return FromInterface(raw), nil
}

// FromInterface classifies a decoded JSON value. Any object whose _encrypted
// field is true becomes an Envelope, even if _data is missing.
func FromInterface(raw any) Value {
	switch v := raw.(type) {
	case []any:
		seq := make(Sequence, len(v))
		for i, item := range v {
			seq[i] = FromInterface(item)
		}
		return seq
	case map[string]any:
		if flag, ok := v[KeyEncrypted].(bool); ok && flag {
			data, _ := v[KeyData].(string)
			return Envelope{Data: data}
		}
		m := make(Mapping, len(v))
		for k, item := range v {
			m[k] = FromInterface(item)
		}
		return m
	default:
		return Scalar{V: v}
	}
}

// HasEnvelopes reports whether any node in the tree is an Envelope.
func HasEnvelopes(v Value) bool {
	switch n := v.(type) {
	case Envelope:
		return true
	case Sequence:
		for _, item := range n {
			if HasEnvelopes(item) {
				return true
			}
		}
	case Mapping:
		for _, item := range n {
			if HasEnvelopes(item) {
				return true
			}
		}
	}
	return false
}
