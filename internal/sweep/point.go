package sweep

import "strings"

// Point is one immutable combination of dimension values.
type Point struct {
	index  int
	names  []string
	values []Value
}

// Index is the position of the point in sweep order.
func (p Point) Index() int {
	return p.index
}

func (p Point) Len() int {
	return len(p.values)
}

func (p Point) Name(i int) string {
	return p.names[i]
}

func (p Point) Value(i int) Value {
	return p.values[i]
}

func (p Point) Get(name string) (Value, bool) {
	for i, n := range p.names {
		if n == name {
			return p.values[i], true
		}
	}
	return Value{}, false
}

// Lookup makes a Point usable as runner parameters.
func (p Point) Lookup(name string) (string, bool) {
	v, ok := p.Get(name)
	if !ok {
		return "", false
	}
	return v.String(), true
}

// Params maps dimension names to predicate values.
func (p Point) Params() map[string]interface{} {
	params := make(map[string]interface{}, len(p.names))
	for i, n := range p.names {
		params[n] = p.values[i].Interface()
	}
	return params
}

// Strings returns the values in dimension order.
func (p Point) Strings() []string {
	out := make([]string, len(p.values))
	for i, v := range p.values {
		out[i] = v.String()
	}
	return out
}

func (p Point) String() string {
	parts := make([]string, len(p.values))
	for i, v := range p.values {
		parts[i] = p.names[i] + "=" + v.String()
	}
	return strings.Join(parts, " ")
}
