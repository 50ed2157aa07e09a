package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// flexInt decodes integers the server sends either as numbers or as
// decimal strings. An empty string or null decodes to zero.
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		b = []byte(s)
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		// 1.0 and 1e3 are integers written as floats; 0.5 and 1e20 are not.
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %q: %w", b, err)
		}
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return fmt.Errorf("invalid integer %q: not an int64", b)
		}
		v = int64(f)
	}
	*n = flexInt(v)
	return nil
}

// flexString accepts a string or a bare number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("invalid string %q: %w", b, err)
	}
	*s = flexString(num.String())
	return nil
}

// ParseInt decodes a JSON integer in any of the forms the server uses.
func ParseInt(raw json.RawMessage) (int64, error) {
	var n flexInt
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return int64(n), nil
}
