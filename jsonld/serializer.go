package jsonld

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrNonFinite indicates a NaN or infinite float reached the
	// serializer.
	ErrNonFinite = errors.New("non-finite float value")
	// ErrSerialize indicates a document could not be encoded.
	ErrSerialize = errors.New("serialize document")
	// ErrDeserialize indicates bytes could not be decoded as a document.
	ErrDeserialize = errors.New("deserialize document")
)

// Marshal encodes a document to compact JSON, preserving key order.
func Marshal(o *Object) ([]byte, error) {
	out, err := appendObject(nil, o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialize, err)
	}

	return out, nil
}

// MarshalIndent encodes a document to indented JSON, preserving key order.
func MarshalIndent(o *Object, prefix, indent string) ([]byte, error) {
	compact, err := Marshal(o)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	err = json.Indent(&buf, compact, prefix, indent)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialize, err)
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes JSON bytes into a document, preserving the key order
// of the input. Numbers are kept as [json.Number] so that integer values
// of any magnitude round-trip without precision loss.
func Unmarshal(data []byte) (*Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeserialize, err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrDeserialize)
	}

	obj, err := decodeObject(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeserialize, err)
	}

	return obj, nil
}

// decodeObject reads key/value pairs until the closing brace. The opening
// brace has already been consumed.
func decodeObject(dec *json.Decoder) (*Object, error) {
	obj := NewObject()

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", keyTok)
		}

		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}

		obj.Set(key, val)
	}

	// Consume the closing brace.
	_, err := dec.Token()
	if err != nil {
		return nil, err
	}

	return obj, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return tok, nil
	}
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	var out []any

	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}

		out = append(out, val)
	}

	// Consume the closing bracket.
	_, err := dec.Token()
	if err != nil {
		return nil, err
	}

	return out, nil
}

// WriteTo writes the compact encoding of o followed by a newline to w.
// It returns the number of bytes written.
func WriteTo(w io.Writer, o *Object) (int, error) {
	data, err := Marshal(o)
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')

	return w.Write(data)
}

func appendObject(buf []byte, o *Object) ([]byte, error) {
	buf = append(buf, '{')

	for i, k := range o.keys {
		if i > 0 {
			buf = append(buf, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}

		buf = append(buf, keyBytes...)
		buf = append(buf, ':')

		buf, err = appendValue(buf, o.vals[k])
		if err != nil {
			return nil, err
		}
	}

	return append(buf, '}'), nil
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case *Object:
		return appendObject(buf, val)

	case []any:
		buf = append(buf, '[')

		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}

			var err error

			buf, err = appendValue(buf, item)
			if err != nil {
				return nil, err
			}
		}

		return append(buf, ']'), nil

	case TypedLiteral:
		buf = append(buf, `{"@value":`...)

		valueBytes, err := json.Marshal(val.Value)
		if err != nil {
			return nil, err
		}

		buf = append(buf, valueBytes...)
		buf = append(buf, `,"@type":`...)

		typeBytes, err := json.Marshal(val.Datatype)
		if err != nil {
			return nil, err
		}

		buf = append(buf, typeBytes...)

		return append(buf, '}'), nil

	case json.Number:
		return append(buf, val.String()...), nil

	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, ErrNonFinite
		}

		out, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}

		return append(buf, out...), nil

	default:
		out, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}

		return append(buf, out...), nil
	}
}
