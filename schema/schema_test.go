package schema

import (
	"errors"
	"testing"
)

func TestCustomPassesAnything(t *testing.T) {
	c := Custom[string]()
	for _, v := range []any{"x", 42, nil} {
		got, err := c.Validate(v)
		if err != nil {
			t.Errorf("Custom must accept %v, got %v", v, err)
		}
		if got != v {
			t.Errorf("Custom must pass the value through, got %v", got)
		}
	}
}

func TestStringContract(t *testing.T) {
	c := &StringContract{MinLength: 2, MaxLength: 4}

	if _, err := c.Validate("abc"); err != nil {
		t.Errorf("expected abc to pass, got %v", err)
	}
	if _, err := c.Validate("a"); err == nil {
		t.Error("expected too-short string to fail")
	}
	if _, err := c.Validate("abcde"); err == nil {
		t.Error("expected too-long string to fail")
	}
	if _, err := c.Validate(42); err == nil {
		t.Error("expected non-string to fail")
	}
}

func TestNumberContract(t *testing.T) {
	c := &NumberContract{Min: 1, Max: 10, Integer: true}

	if _, err := c.Validate(5); err != nil {
		t.Errorf("expected 5 to pass, got %v", err)
	}
	if _, err := c.Validate(int64(7)); err != nil {
		t.Errorf("expected int64 to pass, got %v", err)
	}
	if _, err := c.Validate(0.5); err == nil {
		t.Error("expected below-min to fail")
	}
	if _, err := c.Validate(11); err == nil {
		t.Error("expected above-max to fail")
	}
	if _, err := c.Validate(2.5); err == nil {
		t.Error("expected non-integer to fail the integer constraint")
	}
	if _, err := c.Validate("5"); err == nil {
		t.Error("expected non-number to fail")
	}
}

func TestBoolContract(t *testing.T) {
	if _, err := Bool().Validate(true); err != nil {
		t.Errorf("expected bool to pass, got %v", err)
	}
	if _, err := Bool().Validate("true"); err == nil {
		t.Error("expected non-bool to fail")
	}
}

func TestArrayContractItemPath(t *testing.T) {
	c := Array(String())

	if _, err := c.Validate([]any{"a", "b"}); err != nil {
		t.Errorf("expected string slice to pass, got %v", err)
	}

	_, err := c.Validate([]any{"a", 42})
	if err == nil {
		t.Fatal("expected element type mismatch to fail")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Issues) == 0 || len(verr.Issues[0].Path) == 0 || verr.Issues[0].Path[0] != "[1]" {
		t.Errorf("expected the failing element's index on the issue path, got %+v", verr.Issues)
	}
}

func TestObjectContract(t *testing.T) {
	c := Object(map[string]Contract{
		"name": String(),
		"age":  Number(),
	}, "name")

	if _, err := c.Validate(map[string]any{"name": "ada", "age": 36}); err != nil {
		t.Errorf("expected valid object to pass, got %v", err)
	}
	if _, err := c.Validate(map[string]any{"age": 36}); err == nil {
		t.Error("expected missing required property to fail")
	}

	_, err := c.Validate(map[string]any{"name": 42})
	if err == nil {
		t.Fatal("expected property type mismatch to fail")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Issues[0].Path[0] != "name" {
		t.Errorf("expected the property name on the issue path, got %+v", verr.Issues)
	}
	if _, err := c.Validate("not an object"); err == nil {
		t.Error("expected non-map to fail")
	}
}

func TestContractFunc(t *testing.T) {
	upper := ContractFunc(func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, &ValidationError{Issues: []Issue{{Message: "not a string"}}}
		}
		return s, nil
	})

	if _, err := upper.Validate("ok"); err != nil {
		t.Errorf("expected pass, got %v", err)
	}
	if _, err := upper.Validate(1); err == nil {
		t.Error("expected fail")
	}
}
