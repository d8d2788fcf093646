// Package limit defines rate limit rules, the counters they key and the
// registry every decision is evaluated against.
package limit

import (
	"fmt"
	"strings"
	"time"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/pkg/errors"
)

// Operator compares an attribute against a literal.
type Operator string

const (
	OperatorEqual    Operator = "=="
	OperatorNotEqual Operator = "!="
)

// Condition is a single boolean test over one attribute.
type Condition struct {
	Attribute string
	Operator  Operator
	Value     string
}

// ParseCondition parses expressions such as `req.method == GET` or
// `req.headers.x-tier != "free"`.
func ParseCondition(expr string) (Condition, error) {
	idx, op := -1, Operator("")
	for _, candidate := range []Operator{OperatorEqual, OperatorNotEqual} {
		if i := strings.Index(expr, string(candidate)); i >= 0 && (idx < 0 || i < idx) {
			idx, op = i, candidate
		}
	}
	if idx < 0 {
		return Condition{}, errors.NewError(errors.ErrorTypeBadRequest, "condition has no operator").
			WithDetail("condition", expr)
	}

	attr := strings.TrimSpace(expr[:idx])
	value := strings.TrimSpace(expr[idx+len(op):])
	if attr == "" {
		return Condition{}, errors.NewError(errors.ErrorTypeBadRequest, "condition has no attribute").
			WithDetail("condition", expr)
	}
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}

	return Condition{Attribute: attr, Operator: op, Value: value}, nil
}

// Matches evaluates the condition. A missing attribute never matches.
func (c Condition) Matches(attrs attributes.Map) bool {
	v, ok := attrs[c.Attribute]
	if !ok {
		return false
	}
	switch c.Operator {
	case OperatorEqual:
		return v == c.Value
	case OperatorNotEqual:
		return v != c.Value
	default:
		return false
	}
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Attribute, c.Operator, c.Value)
}

// MaxWindow is the longest window a limit may use.
const MaxWindow = 366 * 24 * time.Hour

// Limit bounds how many matching requests are admitted per window.
type Limit struct {
	Namespace  string
	Name       string
	MaxValue   int64
	Window     time.Duration
	Conditions []Condition
	Variables  []string
}

// New builds a limit from textual conditions.
func New(namespace, name string, maxValue int64, window time.Duration, conditions, variables []string) (Limit, error) {
	l := Limit{
		Namespace: namespace,
		Name:      name,
		MaxValue:  maxValue,
		Window:    window,
		Variables: append([]string(nil), variables...),
	}
	for _, expr := range conditions {
		c, err := ParseCondition(expr)
		if err != nil {
			return Limit{}, err
		}
		l.Conditions = append(l.Conditions, c)
	}
	if err := l.Validate(); err != nil {
		return Limit{}, err
	}
	return l, nil
}

// Validate checks the limit is usable.
func (l Limit) Validate() error {
	invalid := func(msg string) *errors.Error {
		return errors.NewError(errors.ErrorTypeBadRequest, msg).
			WithDetail("namespace", l.Namespace).
			WithDetail("limit", l.Name)
	}
	switch {
	case l.Namespace == "":
		return invalid("limit namespace is required")
	case l.Name == "":
		return invalid("limit name is required")
	case l.MaxValue < 0:
		return invalid("limit max value must not be negative")
	case l.Window <= 0:
		return invalid("limit window must be positive")
	case l.Window > MaxWindow:
		return invalid("limit window exceeds the maximum").WithDetail("max", MaxWindow.String())
	}
	for _, v := range l.Variables {
		if v == "" {
			return invalid("limit variable name must not be empty")
		}
	}
	return nil
}

// Applies reports whether every condition holds and every variable is
// present, i.e. whether a request with attrs is charged against l.
func (l Limit) Applies(attrs attributes.Map) bool {
	for _, c := range l.Conditions {
		if !c.Matches(attrs) {
			return false
		}
	}
	for _, v := range l.Variables {
		if _, ok := attrs[v]; !ok {
			return false
		}
	}
	return true
}

// CounterFor returns the counter a request is charged against, and false
// when the limit does not apply.
func (l Limit) CounterFor(attrs attributes.Map) (Counter, bool) {
	if !l.Applies(attrs) {
		return Counter{}, false
	}
	vars := make(map[string]string, len(l.Variables))
	for _, v := range l.Variables {
		vars[v] = attrs[v]
	}
	return NewCounter(l.Namespace, l.Name, vars), true
}

// DefaultLimit is the built-in rule: three GET requests per user every
// twenty seconds.
func DefaultLimit() Limit {
	return Limit{
		Namespace: DefaultNamespace,
		Name:      DefaultNamespace,
		MaxValue:  3,
		Window:    20 * time.Second,
		Conditions: []Condition{
			{Attribute: attributes.Method, Operator: OperatorEqual, Value: "GET"},
		},
		Variables: []string{"req.headers.x-user-id"},
	}
}

// DefaultNamespace scopes the built-in rule.
const DefaultNamespace = "ratelimitfilter"
