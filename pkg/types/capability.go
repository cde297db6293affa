package types

import (
	"errors"
	"time"
)

// ErrDataUnavailable is returned by collaborators when the data a cycle needs
// is absent or could not be fetched.
var ErrDataUnavailable = errors.New("data unavailable")

// ValueKind is the type held in a CapabilityValue.
type ValueKind string

const (
	ValueKindNull   ValueKind = "null"
	ValueKindNumber ValueKind = "number"
	ValueKindBool   ValueKind = "bool"
	ValueKindTime   ValueKind = "time"
	ValueKindText   ValueKind = "text"
)

// CapabilityValue is a single named value persisted for a device. A stored
// null differs from a value that was never set, which stores report as nil.
type CapabilityValue struct {
	Kind   ValueKind `json:"kind"`
	Number float64   `json:"number,omitempty"`
	Bool   bool      `json:"bool,omitempty"`
	Time   time.Time `json:"time,omitzero"`
	Text   string    `json:"text,omitempty"`
}

func NullValue() CapabilityValue {
	return CapabilityValue{Kind: ValueKindNull}
}

func NumberValue(v float64) CapabilityValue {
	return CapabilityValue{Kind: ValueKindNumber, Number: v}
}

func BoolValue(v bool) CapabilityValue {
	return CapabilityValue{Kind: ValueKindBool, Bool: v}
}

func TimeValue(v time.Time) CapabilityValue {
	return CapabilityValue{Kind: ValueKindTime, Time: v}
}

func TextValue(v string) CapabilityValue {
	return CapabilityValue{Kind: ValueKindText, Text: v}
}

// IsNull reports whether the value holds nothing.
func (v CapabilityValue) IsNull() bool {
	return v.Kind == "" || v.Kind == ValueKindNull
}

// Equal compares two values, treating times by instant.
func (v CapabilityValue) Equal(o CapabilityValue) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() == o.IsNull()
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueKindNumber:
		return v.Number == o.Number
	case ValueKindBool:
		return v.Bool == o.Bool
	case ValueKindTime:
		return v.Time.Equal(o.Time)
	case ValueKindText:
		return v.Text == o.Text
	}
	return false
}

// Any returns the value as a plain JSON-friendly Go value.
func (v CapabilityValue) Any() any {
	switch v.Kind {
	case ValueKindNumber:
		return v.Number
	case ValueKindBool:
		return v.Bool
	case ValueKindTime:
		return v.Time
	case ValueKindText:
		return v.Text
	}
	return nil
}
