// Package canon implements canonical JSON encoding (design §9): keys sorted
// lexicographically, no insignificant whitespace, UTF-8, unambiguous
// numbers/booleans, no NaN/Infinity. A single reference implementation here
// is snapshot-tested since mismatched canonicalization across runtimes is
// the most common source of signature-verification interop bugs.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/a2afabric/core/internal/errs"
)

// Marshal renders v as canonical JSON bytes: object keys sorted
// lexicographically, no extraneous whitespace.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "marshal value")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "decode for canonicalization")
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return encodeNumber(buf, val)
	case string:
		return encodeString(buf, val)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errs.New(errs.InvalidArgument, "canon: unsupported type %T", v)
	}
	return nil
}

func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	f, err := n.Float64()
	if err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errs.New(errs.InvalidArgument, "canon: NaN/Infinity not permitted")
		}
	}
	buf.WriteString(n.String())
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "encode string")
	}
	buf.Write(b)
	return nil
}

// Equal reports whether two values canonicalize to the same bytes.
func Equal(a, b interface{}) (bool, error) {
	ab, err := Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

// MustMarshal is Marshal but panics on error; reserved for fixed, known-good
// internal values such as test fixtures.
func MustMarshal(v interface{}) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("canon: MustMarshal: %v", err))
	}
	return b
}
