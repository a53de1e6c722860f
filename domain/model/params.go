package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Params is one hyperparameter assignment. Values are float64, int, string
// or bool; after a JSON round trip numbers come back as float64, so the
// accessors normalise.
type Params map[string]interface{}

// Float returns a numeric parameter or def
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Int returns an integer parameter or def
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// String returns a text parameter or def
func (p Params) String(key string, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Bool returns a boolean parameter or def
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// Clone returns a shallow copy
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Describe renders params with sorted keys, for logs
func (p Params) Describe() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Axis is one dimension of a hyperparameter grid
type Axis struct {
	Name   string
	Values []interface{}
}

// Grid is an ordered hyperparameter grid. Expansion order is fixed: axes
// in declaration order, the last axis varying fastest, so a grid index
// identifies the same combination on every run.
type Grid []Axis

// Size returns the number of combinations
func (g Grid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, axis := range g {
		n *= len(axis.Values)
	}
	return n
}

// Expand enumerates every combination in grid-index order
func (g Grid) Expand() []Params {
	size := g.Size()
	if size == 0 {
		return nil
	}
	out := make([]Params, size)
	for idx := 0; idx < size; idx++ {
		p := make(Params, len(g))
		rem := idx
		for a := len(g) - 1; a >= 0; a-- {
			axis := g[a]
			p[axis.Name] = axis.Values[rem%len(axis.Values)]
			rem /= len(axis.Values)
		}
		out[idx] = p
	}
	return out
}
