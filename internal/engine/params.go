package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/san-kum/simhost/internal/dynamo"
)

// DefaultSimType is used when params carry no sim_type.
const DefaultSimType = "cartpole"

// Params is a session's parameter set as received from the client, usually
// decoded JSON. Numbers may arrive as float64, ints, json.Number or strings.
type Params map[string]any

func (p Params) Clone() Params {
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Merge returns a copy of p overlaid with update.
func (p Params) Merge(update Params) Params {
	c := p.Clone()
	for k, v := range update {
		c[k] = v
	}
	return c
}

func (p Params) SimType() string {
	if s, ok := p["sim_type"].(string); ok && s != "" {
		return s
	}
	return DefaultSimType
}

// Float returns p[key] as a float64, or def when the key is absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return f, nil
}

func (p Params) Int64(key string, def int64) (int64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return int64(f), nil
}

func (p Params) Text(key, def string) string {
	if s, ok := p[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Strings accepts a list or a comma separated string.
func (p Params) Strings(key string) ([]string, error) {
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("param %s[%d]: expected string, got %T", key, i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %s: expected list of strings, got %T", key, v)
	}
}

// State returns p[key] as a state vector. ok is false when the key is absent.
func (p Params) State(key string) (x dynamo.State, ok bool, err error) {
	switch v := p[key].(type) {
	case nil:
		return nil, false, nil
	case []float64:
		return dynamo.State(v).Clone(), true, nil
	case dynamo.State:
		return v.Clone(), true, nil
	case []any:
		x = make(dynamo.State, len(v))
		for i, e := range v {
			if x[i], err = toFloat(e); err != nil {
				return nil, true, fmt.Errorf("param %s[%d]: %w", key, i, err)
			}
		}
		return x, true, nil
	default:
		return nil, true, fmt.Errorf("param %s: expected number list, got %T", key, v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
