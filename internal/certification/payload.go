package certification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodePayload reads one JSON object. Numbers are kept as json.Number so the
// canonical encoding reproduces them digit for digit.
func DecodePayload(r io.Reader) (Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("payload has trailing data")
	}
	return p, nil
}

// Canonicalize encodes p with object keys sorted at every depth, no HTML
// escaping and no trailing newline. Equal payloads always encode to equal bytes.
func Canonicalize(p Payload) ([]byte, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("payload does not serialize: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
