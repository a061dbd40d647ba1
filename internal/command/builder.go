package command

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// FromQuery builds a command from URL query parameters. Only the first
// value of a repeated key is used.
func FromQuery(q url.Values) Command {
	flat := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			flat[k] = vs[0]
		}
	}
	return FromValues(flat)
}

// FromValues builds a command from string values.
func FromValues(values map[string]string) Command {
	var c Command
	for k, raw := range values {
		p, ok := Lookup(k)
		if !ok {
			continue
		}
		if p == Mode {
			c = c.WithMode(raw)
			continue
		}
		c = c.With(p, parseInt(raw))
	}
	return c
}

// FromAny builds a command from decoded JSON or YAML. Numbers are truncated
// to integers, booleans become 0/1 and strings are parsed like query values.
func FromAny(values map[string]any) Command {
	var c Command
	for k, raw := range values {
		p, ok := Lookup(k)
		if !ok {
			continue
		}
		if p == Mode {
			if s, ok := raw.(string); ok {
				c = c.WithMode(s)
			}
			continue
		}
		c = c.With(p, coerce(raw))
	}
	return c
}

// parseInt parses a base-10 integer; anything else yields NaN.
func parseInt(raw string) float64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return math.NaN()
	}
	return float64(n)
}

func coerce(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.NaN()
		}
		return math.Trunc(v)
	case float32:
		return coerce(float64(v))
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		return parseInt(v)
	default:
		return math.NaN()
	}
}
