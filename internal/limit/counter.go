package limit

import (
	"sort"
	"strconv"
	"strings"
)

// Variable is one (name, value) pair of a counter identity.
type Variable struct {
	Name  string
	Value string
}

// Counter identifies the usage state of one limit for one combination of
// variable values. Variables are kept sorted by name.
type Counter struct {
	Namespace string
	Limit     string
	Variables []Variable
}

// NewCounter builds a counter identity with variables in canonical order.
func NewCounter(namespace, limitName string, vars map[string]string) Counter {
	c := Counter{Namespace: namespace, Limit: limitName}
	if len(vars) == 0 {
		return c
	}
	c.Variables = make([]Variable, 0, len(vars))
	for name, value := range vars {
		c.Variables = append(c.Variables, Variable{Name: name, Value: value})
	}
	sort.Slice(c.Variables, func(i, j int) bool {
		return c.Variables[i].Name < c.Variables[j].Name
	})
	return c
}

// Key returns a canonical string that is equal for two counters iff their
// identities are equal.
func (c Counter) Key() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(c.Namespace))
	b.WriteByte('/')
	b.WriteString(strconv.Quote(c.Limit))
	for _, v := range c.Variables {
		b.WriteByte('/')
		b.WriteString(strconv.Quote(v.Name))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(v.Value))
	}
	return b.String()
}

func (c Counter) String() string {
	var b strings.Builder
	b.WriteString(c.Namespace)
	b.WriteByte('/')
	b.WriteString(c.Limit)
	if len(c.Variables) > 0 {
		b.WriteByte('{')
		for i, v := range c.Variables {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(v.Name)
			b.WriteByte('=')
			b.WriteString(v.Value)
		}
		b.WriteByte('}')
	}
	return b.String()
}
