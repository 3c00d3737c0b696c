// Package schema defines the pluggable validation contract used by flow
// inputs, success payloads, and error payloads. The core never depends on a
// concrete schema library; it only depends on Contract.
package schema

import (
	"fmt"
	"reflect"
)

// Issue describes a single validation failure.
type Issue struct {
	Message string
	Path    []string
}

// ValidationError collects every Issue a Contract found for one value.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "schema: validation failed"
	}
	return fmt.Sprintf("schema: validation failed: %s", e.Issues[0].Message)
}

// Contract validates a value and either returns the (possibly coerced)
// value or a *ValidationError describing why it was rejected.
type Contract interface {
	Validate(value any) (any, error)
}

// ContractFunc adapts a plain function to Contract.
type ContractFunc func(value any) (any, error)

func (f ContractFunc) Validate(value any) (any, error) { return f(value) }

// customContract accepts any value unchanged. This is the adapter the core
// ships by default so a caller who doesn't need validation never has to
// depend on a schema library to use flows.
type customContract struct{}

func (customContract) Validate(value any) (any, error) { return value, nil }

// Custom returns the passthrough identity adapter for T.
func Custom[T any]() Contract {
	return customContract{}
}

func issue(path []string, format string, args ...any) error {
	return &ValidationError{Issues: []Issue{{Message: fmt.Sprintf(format, args...), Path: path}}}
}

func prependPath(err error, segment string) error {
	ve, ok := err.(*ValidationError)
	if !ok {
		return err
	}
	for i := range ve.Issues {
		ve.Issues[i].Path = append([]string{segment}, ve.Issues[i].Path...)
	}
	return ve
}

// StringContract validates strings.
type StringContract struct {
	MinLength int
	MaxLength int
}

func (s *StringContract) Validate(value any) (any, error) {
	str, ok := value.(string)
	if !ok {
		return nil, issue(nil, "value is not a string")
	}
	if s.MinLength > 0 && len(str) < s.MinLength {
		return nil, issue(nil, "string length %d is less than minimum %d", len(str), s.MinLength)
	}
	if s.MaxLength > 0 && len(str) > s.MaxLength {
		return nil, issue(nil, "string length %d is greater than maximum %d", len(str), s.MaxLength)
	}
	return str, nil
}

// String creates a new string contract.
func String() *StringContract { return &StringContract{} }

// NumberContract validates numeric values, coerced to float64 for range
// checks but returned to the caller in their original type.
type NumberContract struct {
	Min     float64
	Max     float64
	Integer bool
}

func (s *NumberContract) Validate(value any) (any, error) {
	var num float64
	switch v := value.(type) {
	case int:
		num = float64(v)
	case int32:
		num = float64(v)
	case int64:
		num = float64(v)
	case float32:
		num = float64(v)
	case float64:
		num = v
	default:
		return nil, issue(nil, "value is not a number")
	}
	if s.Min != 0 && num < s.Min {
		return nil, issue(nil, "number %v is less than minimum %v", num, s.Min)
	}
	if s.Max != 0 && num > s.Max {
		return nil, issue(nil, "number %v is greater than maximum %v", num, s.Max)
	}
	if s.Integer && float64(int64(num)) != num {
		return nil, issue(nil, "number %v must be an integer", num)
	}
	return value, nil
}

// Number creates a new number contract.
func Number() *NumberContract { return &NumberContract{} }

// BoolContract validates booleans.
type BoolContract struct{}

func (BoolContract) Validate(value any) (any, error) {
	if _, ok := value.(bool); !ok {
		return nil, issue(nil, "value is not a boolean")
	}
	return value, nil
}

// Bool creates a new boolean contract.
func Bool() Contract { return BoolContract{} }

// ArrayContract validates a slice, optionally checking each element
// against an item contract.
type ArrayContract struct {
	Item     Contract
	MinItems int
	MaxItems int
}

func (s *ArrayContract) Validate(value any) (any, error) {
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return nil, issue(nil, "value is not an array")
	}
	length := val.Len()
	if s.MinItems > 0 && length < s.MinItems {
		return nil, issue(nil, "array length %d is less than minimum %d", length, s.MinItems)
	}
	if s.MaxItems > 0 && length > s.MaxItems {
		return nil, issue(nil, "array length %d is greater than maximum %d", length, s.MaxItems)
	}
	if s.Item == nil {
		return value, nil
	}
	for i := 0; i < length; i++ {
		if _, err := s.Item.Validate(val.Index(i).Interface()); err != nil {
			return nil, prependPath(err, fmt.Sprintf("[%d]", i))
		}
	}
	return value, nil
}

// Array creates a new array contract validating each element with item.
func Array(item Contract) *ArrayContract {
	return &ArrayContract{Item: item}
}

// ObjectContract validates a map[string]any against per-key contracts.
type ObjectContract struct {
	Properties map[string]Contract
	Required   []string
}

func (s *ObjectContract) Validate(value any) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, issue(nil, "value is not an object")
	}
	for _, req := range s.Required {
		if _, present := m[req]; !present {
			return nil, issue(nil, "required property %q is missing", req)
		}
	}
	for key, contract := range s.Properties {
		propVal, present := m[key]
		if !present {
			continue
		}
		if _, err := contract.Validate(propVal); err != nil {
			return nil, prependPath(err, key)
		}
	}
	return value, nil
}

// Object creates a new object contract.
func Object(properties map[string]Contract, required ...string) *ObjectContract {
	return &ObjectContract{Properties: properties, Required: required}
}
