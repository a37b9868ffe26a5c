package reseller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Result is the decoded reseller response: either Structured or Opaque
type Result interface {
	// String renders the result for storage in server_response
	String() string
	isResult()
}

// Structured is a response whose body was a JSON object
type Structured map[string]interface{}

// Opaque is a response body that was not a JSON object, kept verbatim
type Opaque string

func (Structured) isResult() {}
func (Opaque) isResult()     {}

func (s Structured) String() string {
	b, err := json.Marshal(map[string]interface{}(s))
	if err != nil {
		return fmt.Sprint(map[string]interface{}(s))
	}
	return string(b)
}

func (o Opaque) String() string { return string(o) }

// Text renders field key as text. JSON true renders "true", numbers keep their literal form.
func (s Structured) Text(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return "", false
	}
	return render(v), true
}

func render(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func parseResult(raw []byte) Result {
	if obj, ok := decodeObject(raw); ok {
		return obj
	}
	return Opaque(raw)
}

func decodeObject(raw []byte) (Structured, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return Structured(obj), true
}
