package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotArray is returned by UnmarshalArray when the payload's top level is not a JSON array.
var ErrNotArray = errors.New("jsonutil: top-level value is not an array")

// MarshalNoEscape encodes v without escaping <, > and & (feedback markers are HTML comments).
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalArray decodes a payload whose top level must be a JSON array.
// Models sometimes double-escape unicode inside string values, so a failed
// direct decode is retried once after unescaping.
func UnmarshalArray(raw []byte, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return ErrNotArray
	}
	return UnmarshalFlex(trimmed, v)
}

// UnmarshalFlex tries a direct decode, then a decode of the unicode-normalized payload.
func UnmarshalFlex(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	norm, nerr := NormalizeJSONUnicode(raw)
	if nerr != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}

// NormalizeJSONUnicode re-encodes raw with every string value unescaped one more level
// ("\\u003e" becomes ">").
func NormalizeJSONUnicode(raw []byte) ([]byte, error) {
	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, err
	}
	return MarshalNoEscape(deepUnescape(val))
}

// UnescapeUnicodeString resolves JSON escapes left inside an already-decoded string.
func UnescapeUnicodeString(s string) (string, error) {
	if !strings.Contains(s, `\u`) {
		return s, nil
	}
	quoted := `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	var out string
	if err := json.Unmarshal([]byte(quoted), &out); err != nil {
		return "", err
	}
	return out, nil
}

func deepUnescape(v any) any {
	switch x := v.(type) {
	case string:
		if s, err := UnescapeUnicodeString(x); err == nil {
			return s
		}
		return x
	case []any:
		for i := range x {
			x[i] = deepUnescape(x[i])
		}
		return x
	case map[string]any:
		for k, vv := range x {
			x[k] = deepUnescape(vv)
		}
		return x
	default:
		return v
	}
}
