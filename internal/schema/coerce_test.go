package schema

import (
	"errors"
	"testing"

	"github.com/chatquery/chatquery/internal/domain"
)

func TestCoerce(t *testing.T) {
	cases := []struct {
		name    string
		t       FieldType
		in      any
		want    any
		wantErr bool
	}{
		{"numeric from float", TypeNumeric, 9.99, 9.99, false},
		{"numeric from string", TypeNumeric, "9.99", 9.99, false},
		{"numeric from garbage", TypeNumeric, "cheap", nil, true},
		{"integer from whole float", TypeInteger, float64(5), int64(5), false},
		{"integer from fractional float", TypeInteger, 5.5, nil, true},
		{"integer from string", TypeInteger, "42", int64(42), false},
		{"boolean from bool", TypeBoolean, true, true, false},
		{"boolean from string", TypeBoolean, "false", false, false},
		{"boolean from number", TypeBoolean, 1.0, nil, true},
		{"string", TypeString, "Product A", "Product A", false},
		{"string from number", TypeString, 3.0, nil, true},
		{"uuid valid", TypeUUID, "7f9c24e5-2f42-4a44-9a6a-3d8f6cb2a111", "7f9c24e5-2f42-4a44-9a6a-3d8f6cb2a111", false},
		{"uuid invalid", TypeUUID, "John", nil, true},
		{"timestamp valid", TypeTimestamp, "2025-01-02T15:04:05Z", nil, false},
		{"timestamp invalid", TypeTimestamp, "yesterday", nil, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Coerce(c.t, c.in)
			if c.wantErr {
				if !errors.Is(err, domain.ErrInvalidValueType) {
					t.Fatalf("Coerce(%s, %v) err=%v; want ErrInvalidValueType", c.t, c.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%s, %v) unexpected error: %v", c.t, c.in, err)
			}
			if c.want != nil && got != c.want {
				t.Fatalf("Coerce(%s, %v)=%v; want %v", c.t, c.in, got, c.want)
			}
		})
	}
}
