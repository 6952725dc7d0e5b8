package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is a single key/value pair of a Doc.
type Field struct {
	Key   string
	Value any
}

// Doc is an ordered document. Field order survives every backend so that
// readers can rely on the order a document was written in.
type Doc []Field

// Get returns the value stored under key.
func (d Doc) Get(key string) (any, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys of d in order.
func (d Doc) Keys() []string {
	keys := make([]string, len(d))
	for i, f := range d {
		keys[i] = f.Key
	}
	return keys
}

// Set replaces the value of key, or appends it when absent.
func (d Doc) Set(key string, value any) Doc {
	for i, f := range d {
		if f.Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, Field{Key: key, Value: value})
}

// Clone returns a copy of d that shares no backing array with it.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	copy(out, d)
	return out
}

func (d Doc) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping its key order. Nested objects
// become Docs and numbers are kept as json.Number.
func (d *Doc) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("store: document must be a JSON object")
	}

	doc, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

func decodeObject(dec *json.Decoder) (Doc, error) {
	doc := Doc{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("store: unexpected object key %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		doc = append(doc, Field{Key: key, Value: val})
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		return decodeObject(dec)
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("store: unexpected delimiter %v", delim)
	}
}
