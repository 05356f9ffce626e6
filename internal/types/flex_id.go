package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexID is an identifier that can be unmarshaled from either a JSON string
// or a JSON number. Clients send user ids both ways.
type FlexID string

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}

	// Try unmarshaling as a string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexID(s)
		return nil
	}

	// Then as a number
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexID(strconv.FormatUint(n, 10))
		return nil
	}

	return fmt.Errorf("FlexID: unexpected type, expected number or string")
}

// MarshalJSON implements the json.Marshaler interface.
func (f FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// String converts FlexID back to string.
func (f FlexID) String() string {
	return string(f)
}
