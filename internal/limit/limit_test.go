package limit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratelimitfilter/internal/attributes"
	"ratelimitfilter/pkg/errors"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    Condition
		wantErr bool
	}{
		{
			name: "equality",
			expr: "req.method == GET",
			want: Condition{Attribute: "req.method", Operator: OperatorEqual, Value: "GET"},
		},
		{
			name: "inequality with quoted value",
			expr: `req.headers.x-tier != "free"`,
			want: Condition{Attribute: "req.headers.x-tier", Operator: OperatorNotEqual, Value: "free"},
		},
		{
			name: "single quotes and no spaces",
			expr: "req.method=='POST'",
			want: Condition{Attribute: "req.method", Operator: OperatorEqual, Value: "POST"},
		},
		{name: "no operator", expr: "req.method GET", wantErr: true},
		{name: "no attribute", expr: "== GET", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCondition(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeBadRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimitApplies(t *testing.T) {
	l := DefaultLimit()

	tests := []struct {
		name  string
		attrs attributes.Map
		want  bool
	}{
		{
			name:  "GET with user",
			attrs: attributes.Map{"req.method": "GET", "req.headers.x-user-id": "u1"},
			want:  true,
		},
		{
			name:  "POST with user",
			attrs: attributes.Map{"req.method": "POST", "req.headers.x-user-id": "u1"},
			want:  false,
		},
		{
			name:  "GET without user",
			attrs: attributes.Map{"req.method": "GET"},
			want:  false,
		},
		{
			name:  "no method",
			attrs: attributes.Map{"req.headers.x-user-id": "u1"},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Applies(tt.attrs))
		})
	}
}

func TestCounterFor(t *testing.T) {
	l, err := New("ns", "per-user-path", 5, time.Minute, nil, []string{"req.headers.x-user-id", "req.headers.x-api"})
	require.NoError(t, err)

	c, ok := l.CounterFor(attributes.Map{
		"req.headers.x-user-id": "u1",
		"req.headers.x-api":     "v2",
		"req.headers.other":     "ignored",
	})
	require.True(t, ok)
	assert.Equal(t, "ns", c.Namespace)
	assert.Equal(t, "per-user-path", c.Limit)
	assert.Equal(t, []Variable{
		{Name: "req.headers.x-api", Value: "v2"},
		{Name: "req.headers.x-user-id", Value: "u1"},
	}, c.Variables)

	_, ok = l.CounterFor(attributes.Map{"req.headers.x-user-id": "u1"})
	assert.False(t, ok)
}

func TestCounterKey(t *testing.T) {
	a := NewCounter("ns", "l", map[string]string{"b": "2", "a": "1"})
	b := NewCounter("ns", "l", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a.Key(), b.Key())

	// Separator characters inside values must not collide.
	c := NewCounter("ns", "l", map[string]string{"a": `1"/b="2`})
	assert.NotEqual(t, a.Key(), c.Key())

	d := NewCounter("ns", "l", map[string]string{"a": "1", "b": "3"})
	assert.NotEqual(t, a.Key(), d.Key())

	assert.Equal(t, "ns/l{a=1,b=2}", a.String())
	assert.Equal(t, "ns/l", NewCounter("ns", "l", nil).String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		limit Limit
	}{
		{name: "missing namespace", limit: Limit{Name: "x", Window: time.Second}},
		{name: "missing name", limit: Limit{Namespace: "ns", Window: time.Second}},
		{name: "negative max", limit: Limit{Namespace: "ns", Name: "x", MaxValue: -1, Window: time.Second}},
		{name: "zero window", limit: Limit{Namespace: "ns", Name: "x", MaxValue: 1}},
		{name: "window too long", limit: Limit{Namespace: "ns", Name: "x", MaxValue: 1, Window: MaxWindow + time.Second}},
		{name: "empty variable", limit: Limit{Namespace: "ns", Name: "x", Window: time.Second, Variables: []string{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.limit.Validate())
		})
	}
}

func TestDefinitionWindowRange(t *testing.T) {
	d := Definition{Name: "x", MaxValue: 1, Seconds: int64(MaxWindow / time.Second)}
	l, err := d.Limit("ns")
	require.NoError(t, err)
	assert.Equal(t, MaxWindow, l.Window)

	// Large second counts would overflow time.Duration into a valid window.
	for _, secs := range []int64{int64(MaxWindow/time.Second) + 1, math.MaxInt64 / 1000, math.MinInt64 / 1000, -1} {
		d.Seconds = secs
		_, err := d.Limit("ns")
		require.Error(t, err, secs)
		assert.True(t, errors.IsType(err, errors.ErrorTypeBadRequest))
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	first := DefaultLimit()
	second, err := New("ratelimitfilter", "posts", 10, time.Minute, []string{"req.method == POST"}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	err = r.Register(first)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "ratelimitfilter", all[0].Name)
	assert.Equal(t, "posts", all[1].Name)

	// Same name in another namespace is a different limit.
	other := first
	other.Namespace = "other"
	require.NoError(t, r.Register(other))
	assert.Equal(t, 3, r.Len())

	got, ok := r.Lookup("ratelimitfilter", "posts")
	require.True(t, ok)
	assert.Equal(t, int64(10), got.MaxValue)

	_, ok = r.Lookup("ratelimitfilter", "missing")
	assert.False(t, ok)
}

func TestRegistryAllIsCopy(t *testing.T) {
	r := DefaultRegistry()
	all := r.All()
	all[0].MaxValue = 100
	assert.Equal(t, int64(3), r.All()[0].MaxValue)
}

func TestDefaultDefinitionRoundTrip(t *testing.T) {
	l, err := DefaultDefinition().Limit("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit(), l)
}

func TestParseDocument(t *testing.T) {
	doc := []byte(`
limits:
  - name: per-user
    maxValue: 3
    seconds: 20
    conditions: ["req.method == GET"]
    variables: ["req.headers.x-user-id"]
  - namespace: admin
    name: global
    maxValue: 100
    seconds: 60
`)
	defs, err := ParseDocument(doc)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	r, err := BuildRegistry(defs, "ratelimitfilter")
	require.NoError(t, err)
	all := r.All()
	assert.Equal(t, "ratelimitfilter", all[0].Namespace)
	assert.Equal(t, 20*time.Second, all[0].Window)
	assert.Equal(t, "admin", all[1].Namespace)

	bare := []byte("- name: a\n  maxValue: 1\n  seconds: 1\n")
	defs, err = ParseDocument(bare)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	_, err = ParseDocument([]byte("  "))
	assert.Error(t, err)

	_, err = ParseDocument([]byte("limits: [unterminated"))
	assert.Error(t, err)
}

func TestBuildRegistryConflict(t *testing.T) {
	defs := []Definition{DefaultDefinition(), DefaultDefinition()}
	_, err := BuildRegistry(defs, "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
}
