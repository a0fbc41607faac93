package templating

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Decode reads a single JSON document from r. Numbers are kept as
// json.Number so they print exactly as they were written. Trailing data
// after the first value is an error.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode json document: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("failed to decode json document: unexpected data after top-level value")
	}
	return doc, nil
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(data []byte) (any, error) {
	return Decode(bytes.NewReader(data))
}

// Canonical returns the canonical JSON text of a value: compact, object
// members sorted by name, no HTML escaping. This is the format used when a
// composite value is printed by a template.
func Canonical(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// primitiveText returns the textual value of a string, number or boolean.
func primitiveText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

// writeValue writes the printed form of a resolved value.
func writeValue(w io.Writer, value any) error {
	if text, ok := primitiveText(value); ok {
		_, err := io.WriteString(w, text)
		return err
	}
	data, err := Canonical(value)
	if err != nil {
		// Only reachable with Go values that did not come from a JSON decoder.
		_, err = fmt.Fprint(w, value)
		return err
	}
	_, err = w.Write(data)
	return err
}
