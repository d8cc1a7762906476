package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is a decoded remote response. Numbers are kept as json.Number.
type Payload map[string]interface{}

// Lookup walks nested objects along path.
func (p Payload) Lookup(path ...string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(p)
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether every key of path exists.
func (p Payload) Has(path ...string) bool {
	_, ok := p.Lookup(path...)
	return ok
}

// ErrorMessage returns Result.Error.Message, or "" when the payload carries no error.
func (p Payload) ErrorMessage() string {
	v, ok := p.Lookup("Result", "Error", "Message")
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Decode re-encodes the value at path and decodes it into dst.
func (p Payload) Decode(dst interface{}, path ...string) error {
	v, ok := p.Lookup(path...)
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrMalformedResponse, strings.Join(path, "."))
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to re-encode %s: %w", strings.Join(path, "."), err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, strings.Join(path, "."), err)
	}
	return nil
}

// ErrorPayload builds a payload carrying an embedded error message, the way the
// remote service reports failures.
func ErrorPayload(message string) Payload {
	return Payload{
		"Result": map[string]interface{}{
			"Error": map[string]interface{}{"Message": message},
		},
	}
}

// Attachment is a file listed on a form.
type Attachment struct {
	FileID   int64  `json:"FileID"`
	FileName string `json:"FileName"`
}

// FormHeader is the subset of Result.Form the exporter needs to lay out artifacts.
type FormHeader struct {
	Number  Text         `json:"Number"`
	Started Text         `json:"Started"`
	Files   []Attachment `json:"Files"`
}

// RemoteTimeLayout is the timestamp format used by the remote service.
const RemoteTimeLayout = "2006-01-02 15:04:05"
