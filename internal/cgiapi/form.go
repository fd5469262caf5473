// Package cgiapi implements the CGI Query Endpoint (spec §4.H): the
// read-mostly HTTP surface launch UIs and appliances poll to learn what
// a device is currently showing, fetch one message's rendered data, or
// report a hardware's observed network address.
package cgiapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/messagenet/evodispatch/internal/evoerr"
)

// Param is one decoded key=value pair from a CGI form body.
type Param struct {
	Key   string
	Value string
}

// DecodeForm splits an `&`-delimited form body into its key=value pairs
// and applies the endpoint's three decode rules (spec §6): `+` decodes
// to a space, `%HH` decodes to the byte it encodes, and `"`/`'` are
// mapped to a backtick rather than passed through raw.
func DecodeForm(raw string) ([]Param, error) {
	if raw == "" {
		return nil, nil
	}

	pairs := strings.Split(raw, "&")
	out := make([]Param, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		dk, err := decodeValue(k)
		if err != nil {
			return nil, err
		}
		dv, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, Param{Key: dk, Value: dv})
	}
	return out, nil
}

func decodeValue(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 >= len(s) {
				return "", fmt.Errorf("truncated escape at byte %d: %w", i, evoerr.ErrBadFormInput)
			}
			n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("bad escape %q: %w", s[i:i+3], evoerr.ErrBadFormInput)
			}
			b.WriteByte(byte(n))
			i += 2
		case '"', '\'':
			b.WriteByte('`')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// lookup returns the value of the first param named key.
func lookup(params []Param, key string) (string, bool) {
	for _, p := range params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// recnoParam parses a decimal record-number parameter.
func recnoParam(params []Param, key string) (int64, bool) {
	v, ok := lookup(params, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
