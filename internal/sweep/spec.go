// Package sweep drives a benchmark over the cartesian product of a set of
// named parameter dimensions.
//
// Configuration points are produced in declaration order with the first
// dimension varying slowest. Downstream analysis matches output lines to
// parameters by position, so this order is part of the output format.
package sweep

import (
	"fmt"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

type Kind int

const (
	KindString Kind = iota
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	default:
		return "string"
	}
}

// Value is one candidate of a dimension.
type Value struct {
	kind Kind
	str  string
	num  int64
}

func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

func IntValue(n int64) Value {
	return Value{kind: KindInt, num: n}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) Int() (int64, bool) {
	return v.num, v.kind == KindInt
}

func (v Value) String() string {
	if v.kind == KindInt {
		return strconv.FormatInt(v.num, 10)
	}
	return v.str
}

// Interface returns the value in the form used by predicate expressions.
func (v Value) Interface() interface{} {
	if v.kind == KindInt {
		return float64(v.num)
	}
	return v.str
}

type Dimension struct {
	Name   string
	Values []Value
}

// Spec is a validated sweep description: ordered dimensions plus the number
// of repetitions per configuration point.
type Spec struct {
	dims        []Dimension
	repetitions int
	groupDepth  int
}

type SpecOption func(*Spec)

// WithGroupDepth asks for a separator whenever one of the first n dimensions
// changes value.
func WithGroupDepth(n int) SpecOption {
	return func(s *Spec) {
		s.groupDepth = n
	}
}

func NewSpec(dims []Dimension, repetitions int, opts ...SpecOption) (*Spec, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("sweep needs at least one dimension")
	}
	if repetitions < 1 {
		return nil, fmt.Errorf("repetitions must be at least 1, got %d", repetitions)
	}

	names := mapset.NewThreadUnsafeSet[string]()
	copied := make([]Dimension, len(dims))
	for i, d := range dims {
		if d.Name == "" {
			return nil, fmt.Errorf("dimension %d has no name", i)
		}
		if !names.Add(d.Name) {
			return nil, fmt.Errorf("dimension %q declared twice", d.Name)
		}
		if len(d.Values) == 0 {
			return nil, fmt.Errorf("dimension %q has no values", d.Name)
		}
		seen := mapset.NewThreadUnsafeSet[string]()
		kind := d.Values[0].kind
		for _, v := range d.Values {
			if v.kind != kind {
				return nil, fmt.Errorf("dimension %q mixes %s and %s values", d.Name, kind, v.kind)
			}
			if !seen.Add(v.String()) {
				return nil, fmt.Errorf("dimension %q lists value %q twice", d.Name, v.String())
			}
		}
		copied[i] = Dimension{Name: d.Name, Values: append([]Value(nil), d.Values...)}
	}

	s := &Spec{dims: copied, repetitions: repetitions}
	for _, opt := range opts {
		opt(s)
	}
	if s.groupDepth < 0 || s.groupDepth > len(copied) {
		return nil, fmt.Errorf("group depth %d out of range [0,%d]", s.groupDepth, len(copied))
	}
	return s, nil
}

func (s *Spec) Dimensions() []Dimension {
	out := make([]Dimension, len(s.dims))
	copy(out, s.dims)
	return out
}

func (s *Spec) Names() []string {
	names := make([]string, len(s.dims))
	for i, d := range s.dims {
		names[i] = d.Name
	}
	return names
}

func (s *Spec) Repetitions() int {
	return s.repetitions
}

// Size is the number of configuration points.
func (s *Spec) Size() int {
	n := 1
	for _, d := range s.dims {
		n *= len(d.Values)
	}
	return n
}

// Points enumerates the cartesian product, first dimension slowest.
func (s *Spec) Points() []Point {
	names := s.Names()
	idx := make([]int, len(s.dims))
	points := make([]Point, 0, s.Size())

	for n := 0; ; n++ {
		values := make([]Value, len(s.dims))
		for i, d := range s.dims {
			values[i] = d.Values[idx[i]]
		}
		points = append(points, Point{index: n, names: names, values: values})

		// odometer, innermost dimension first
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(s.dims[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return points
		}
	}
}

// groupChanged reports whether one of the grouping dimensions differs.
func (s *Spec) groupChanged(prev, cur Point) bool {
	for i := 0; i < s.groupDepth; i++ {
		if prev.values[i] != cur.values[i] {
			return true
		}
	}
	return false
}
