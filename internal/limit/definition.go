package limit

import (
	"bytes"
	"time"

	"gopkg.in/yaml.v3"

	"ratelimitfilter/pkg/errors"
)

// Definition is the configuration form of a Limit.
type Definition struct {
	Namespace  string   `yaml:"namespace"`
	Name       string   `yaml:"name"`
	MaxValue   int64    `yaml:"maxValue"`
	Seconds    int64    `yaml:"seconds"`
	Conditions []string `yaml:"conditions"`
	Variables  []string `yaml:"variables"`
}

// Limit converts the definition, using defaultNamespace when none is set.
func (d Definition) Limit(defaultNamespace string) (Limit, error) {
	ns := d.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	if d.Seconds < 0 || d.Seconds > int64(MaxWindow/time.Second) {
		return Limit{}, errors.NewError(errors.ErrorTypeBadRequest, "limit window out of range").
			WithDetail("namespace", ns).
			WithDetail("limit", d.Name).
			WithDetail("seconds", d.Seconds)
	}
	return New(ns, d.Name, d.MaxValue, time.Duration(d.Seconds)*time.Second, d.Conditions, d.Variables)
}

// DefaultDefinition mirrors DefaultLimit.
func DefaultDefinition() Definition {
	l := DefaultLimit()
	conds := make([]string, 0, len(l.Conditions))
	for _, c := range l.Conditions {
		conds = append(conds, c.String())
	}
	return Definition{
		Namespace:  l.Namespace,
		Name:       l.Name,
		MaxValue:   l.MaxValue,
		Seconds:    int64(l.Window / time.Second),
		Conditions: conds,
		Variables:  append([]string(nil), l.Variables...),
	}
}

// BuildRegistry converts definitions in order into a registry.
func BuildRegistry(defs []Definition, defaultNamespace string) (*Registry, error) {
	r, _ := NewRegistry()
	for _, d := range defs {
		l, err := d.Limit(defaultNamespace)
		if err != nil {
			return nil, err
		}
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// document is the layout of an externally stored limit set.
type document struct {
	Limits []Definition `yaml:"limits"`
}

// ParseDocument reads a YAML limit set. Both a top-level `limits:` key and
// a bare sequence are accepted.
func ParseDocument(data []byte) ([]Definition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "limit document is empty")
	}

	if trimmed[0] == '-' {
		var defs []Definition
		if err := yaml.Unmarshal(trimmed, &defs); err != nil {
			return nil, errors.NewError(errors.ErrorTypeBadRequest, "failed to parse limit document").WithCause(err)
		}
		return defs, nil
	}

	var doc document
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "failed to parse limit document").WithCause(err)
	}
	return doc.Limits, nil
}
