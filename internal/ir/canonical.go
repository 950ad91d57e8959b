package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical renders v as RFC 8785 canonical JSON: keys in UTF-16
// code unit order, NFC strings, no HTML escaping and integral numbers
// without a fraction. Record payloads and content hashes go through it so
// the same logical record always has the same bytes.
func MarshalCanonical(v any) ([]byte, error) {
	return appendCanonical(nil, v)
}

func appendCanonical(dst []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return append(dst, "null"...), nil
	case IRString:
		return appendCanonicalString(dst, string(val))
	case IRInt:
		return strconv.AppendInt(dst, int64(val), 10), nil
	case IRFloat:
		num, err := formatFloat(float64(val))
		if err != nil {
			return nil, err
		}
		return append(dst, num...), nil
	case IRBool:
		return strconv.AppendBool(dst, bool(val)), nil
	case IRArray:
		dst = append(dst, '[')
		for i, elem := range val {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendCanonical(dst, elem); err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		return append(dst, ']'), nil
	case IRObject:
		dst = append(dst, '{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendCanonicalString(dst, k); err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			dst = append(dst, ':')
			if dst, err = appendCanonical(dst, val[k]); err != nil {
				return nil, fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		return append(dst, '}'), nil
	default:
		irVal, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("canonical JSON: %w", err)
		}
		return appendCanonical(dst, irVal)
	}
}

// appendCanonicalString escapes only quote, backslash and control
// characters.
func appendCanonicalString(dst []byte, s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return append(dst, unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))...), nil
}

// unescapeLineSeparators undoes encoding/json's \u2028 and \u2029 escapes
// while leaving an escaped backslash followed by the text "u2028" alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if rest := data[i+1:]; len(rest) >= 5 && string(rest[:4]) == "u202" {
			switch rest[4] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
