package schema

import (
	"bytes"
	"encoding/json"
)

// decodeJSON decodes raw JSON text into a generic interface{} tree suitable
// for Gate.Validate, the same way ValidateValue decodes the JSON it
// marshals (numbers kept as json.Number).
func decodeJSON(raw string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
