package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Flag decodes the backend's success marker, which is sent either as a JSON
// boolean or as 1/0.
type Flag bool

// OK reports whether the flag is set.
func (f Flag) OK() bool { return bool(f) }

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1", `"1"`, `"true"`:
		*f = true
	case "false", "0", `"0"`, `"false"`, `""`, "null":
		*f = false
	default:
		return fmt.Errorf("flag: unsupported value %s", data)
	}
	return nil
}

// KeywordCount is one entry of a keyword frequency table.
type KeywordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Frequencies is a keyword frequency table that keeps the key order of the
// JSON object it was decoded from.
type Frequencies []KeywordCount

// UnmarshalJSON decodes a {"word": count} object, preserving key order.
func (f *Frequencies) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("frequencies: %w", err)
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("frequencies: expected object, got %v", tok)
	}

	out := Frequencies{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("frequencies: %w", err)
		}
		word, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("frequencies: unexpected key %v", keyTok)
		}
		var n float64
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("frequencies: count for %q: %w", word, err)
		}
		out = append(out, KeywordCount{Word: word, Count: int(n)})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("frequencies: %w", err)
	}
	*f = out
	return nil
}

// MarshalJSON encodes the table as a JSON object in table order.
func (f Frequencies) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kc := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kc.Word)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(kc.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
