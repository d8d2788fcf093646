// Package attributes turns request metadata into the logical attributes
// limits are evaluated on.
package attributes

import (
	"sort"
	"strings"
)

const (
	// PseudoPrefix marks protocol-level fields such as :method and :path.
	PseudoPrefix = ":"

	// Method is the logical attribute holding the request method.
	Method = "req.method"

	// HeaderPrefix prefixes every header-derived attribute.
	HeaderPrefix = "req.headers."
)

// Pair is one request metadata field in arrival order.
type Pair struct {
	Name  string
	Value string
}

// Map holds the logical attributes of a single request.
type Map map[string]string

// Extract normalizes request metadata into logical attributes.
//
// :method becomes req.method and every other pseudo-field is dropped.
// Header names are lowercased under req.headers. When a name appears more
// than once the last value wins.
func Extract(pairs []Pair) Map {
	attrs := make(Map, len(pairs))
	for _, p := range pairs {
		if strings.HasPrefix(p.Name, PseudoPrefix) {
			if p.Name == ":method" {
				attrs[Method] = p.Value
			}
			continue
		}
		attrs[HeaderPrefix+strings.ToLower(p.Name)] = p.Value
	}
	return attrs
}

// FromRequest builds the ordered pair sequence for an HTTP request whose
// header names are already canonical, as net/http delivers them.
// Pseudo-fields come first, then headers sorted by lowercased name with
// their values in received order.
func FromRequest(method, path, authority, scheme string, headers map[string][]string) []Pair {
	pairs := pseudoFields(method, path, authority, scheme, len(headers))

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li == lj {
			return names[i] < names[j]
		}
		return li < lj
	})

	for _, name := range names {
		for _, v := range headers[name] {
			pairs = append(pairs, Pair{Name: name, Value: v})
		}
	}
	return pairs
}

// FromPairs builds the pair sequence for a request whose headers arrive as
// an ordered list. Headers follow the pseudo-fields unchanged and in arrival
// order, so the last of several values for one name wins in Extract.
func FromPairs(method, path, authority, scheme string, headers []Pair) []Pair {
	pairs := pseudoFields(method, path, authority, scheme, len(headers))
	return append(pairs, headers...)
}

func pseudoFields(method, path, authority, scheme string, extra int) []Pair {
	pairs := make([]Pair, 0, extra+4)
	pairs = append(pairs, Pair{Name: ":method", Value: method})
	if path != "" {
		pairs = append(pairs, Pair{Name: ":path", Value: path})
	}
	if authority != "" {
		pairs = append(pairs, Pair{Name: ":authority", Value: authority})
	}
	if scheme != "" {
		pairs = append(pairs, Pair{Name: ":scheme", Value: scheme})
	}
	return pairs
}

// Get returns the attribute value and whether it was present.
func (m Map) Get(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}
