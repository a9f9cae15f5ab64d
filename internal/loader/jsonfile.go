package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// decodeJSON accepts a top-level array of objects or {"data":[...]}. The
// header is the union of keys across all objects in first-seen order.
func decodeJSON(data []byte) ([]string, [][]string, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	arrayRaw := data
	switch typed := payload.(type) {
	case []any:
	case map[string]any:
		if _, ok := typed["data"].([]any); !ok {
			return nil, nil, fmt.Errorf("%w: expected an array of objects or a data field", ErrMalformed)
		}
		var wrapper struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		arrayRaw = wrapper.Data
	default:
		return nil, nil, fmt.Errorf("%w: expected an array of objects or a data field", ErrMalformed)
	}

	objects, header, err := scanObjectArray(arrayRaw)
	if err != nil {
		return nil, nil, err
	}

	records := make([][]string, 0, len(objects))
	for _, obj := range objects {
		row := make([]string, len(header))
		for i, key := range header {
			row[i] = stringifyJSON(obj[key])
		}
		records = append(records, row)
	}
	return header, records, nil
}

// scanObjectArray walks the array token by token so object key order, which
// plain map decoding loses, is preserved for the header union.
func scanObjectArray(raw []byte) ([]map[string]any, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return nil, nil, fmt.Errorf("%w: expected an array of objects", ErrMalformed)
	}

	var header []string
	seen := make(map[string]bool)
	var objects []map[string]any

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if tok != json.Delim('{') {
			return nil, nil, fmt.Errorf("%w: array elements must be objects", ErrMalformed)
		}
		obj := make(map[string]any)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, nil, fmt.Errorf("%w: invalid object key", ErrMalformed)
			}
			var value any
			if err := dec.Decode(&value); err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			obj[key] = value
			if !seen[key] {
				seen[key] = true
				header = append(header, key)
			}
		}
		if _, err := dec.Token(); err != nil { // consume '}'
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		objects = append(objects, obj)
	}
	return objects, header, nil
}

func stringifyJSON(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
