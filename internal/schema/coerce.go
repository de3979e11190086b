package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatquery/chatquery/internal/domain"
)

// Coerce converts a raw JSON value to the declared field type. Values arrive
// from encoding/json, so the inputs are string, float64, bool or nil.
func Coerce(t FieldType, v any) (any, error) {
	switch t {
	case TypeUUID:
		s, ok := v.(string)
		if !ok {
			return nil, coerceErr(t, v)
		}
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, coerceErr(t, v)
		}
		return id.String(), nil

	case TypeString, TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, coerceErr(t, v)
		}
		return s, nil

	case TypeNumeric:
		switch n := v.(type) {
		case float64:
			return n, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, coerceErr(t, v)
			}
			return f, nil
		}
		return nil, coerceErr(t, v)

	case TypeInteger:
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, coerceErr(t, v)
			}
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, coerceErr(t, v)
			}
			return i, nil
		}
		return nil, coerceErr(t, v)

	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, coerceErr(t, v)
			}
			return parsed, nil
		}
		return nil, coerceErr(t, v)

	case TypeTimestamp:
		s, ok := v.(string)
		if !ok {
			return nil, coerceErr(t, v)
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
		if err != nil {
			return nil, coerceErr(t, v)
		}
		return ts, nil
	}
	return nil, coerceErr(t, v)
}

func coerceErr(t FieldType, v any) error {
	return fmt.Errorf("%w: %v is not a valid %s", domain.ErrInvalidValueType, v, t)
}
