package coerce

import (
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ============================================================================
// SAFE COERCION HELPERS
// Every helper converts an interface{} to the wanted type and reports a
// readable error instead of panicking.
// ============================================================================

// ToString converts almost anything to a string. Nil becomes "".
func ToString(input interface{}) string {
	if input == nil {
		return ""
	}
	s, err := cast.ToStringE(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return s
}

// ToInt accepts numeric strings, integral floats and every int kind.
func ToInt(input interface{}) (int, error) {
	if input == nil {
		return 0, nil
	}
	i, err := cast.ToIntE(input)
	if err != nil {
		return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int", input, input)
	}
	return i, nil
}

// ToInt64 is ToInt for database ids and timestamps.
func ToInt64(input interface{}) (int64, error) {
	if input == nil {
		return 0, nil
	}
	i, err := cast.ToInt64E(input)
	if err != nil {
		return 0, fmt.Errorf("failed to coerce value '%v' (type %T) to int64", input, input)
	}
	return i, nil
}

// ToFloat64 converts numeric strings and numbers to float64.
func ToFloat64(input interface{}) (float64, error) {
	if input == nil {
		return 0.0, nil
	}
	f, err := cast.ToFloat64E(input)
	if err != nil {
		return 0.0, fmt.Errorf("failed to coerce value '%v' (type %T) to float64", input, input)
	}
	return f, nil
}

// ToBool understands true/false, 1/0 and their string forms.
func ToBool(input interface{}) (bool, error) {
	if input == nil {
		return false, nil
	}
	b, err := cast.ToBoolE(input)
	if err != nil {
		return false, fmt.Errorf("failed to coerce value '%v' (type %T) to bool", input, input)
	}
	return b, nil
}

// ToSlice converts any slice or array to []interface{}.
func ToSlice(input interface{}) ([]interface{}, error) {
	if input == nil {
		return nil, nil
	}
	if s, err := cast.ToSliceE(input); err == nil {
		return s, nil
	}
	v := reflect.ValueOf(input)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("failed to coerce value (type %T) to slice", input)
	}
	out := make([]interface{}, v.Len())
	for i := range out {
		out[i] = v.Index(i).Interface()
	}
	return out, nil
}

// IntDef returns the int value of input, or def when input is empty or invalid.
func IntDef(input interface{}, def int) int {
	if input == nil || input == "" {
		return def
	}
	val, err := ToInt(input)
	if err != nil || val == 0 {
		return def
	}
	return val
}

// Key turns a relation key value into a map key, so that an int64 read from
// the database and an int supplied by the caller land in the same bucket.
// Nil (and nil pointers) report false: such a value can never be matched.
func Key(input interface{}) (string, bool) {
	if input == nil {
		return "", false
	}
	v := reflect.ValueOf(input)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", false
		}
		return Key(v.Elem().Interface())
	}

	switch x := input.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case decimal.Decimal:
		return x.String(), true
	case float32:
		return decimal.NewFromFloat32(x).String(), true
	case float64:
		return decimal.NewFromFloat(x).String(), true
	}
	return ToString(input), true
}
