package telemetry

import (
	"net/textproto"
)

// HeaderCarrier adapts a core request header map to
// propagation.TextMapCarrier. Keys are matched case-insensitively.
type HeaderCarrier map[string][]string

// Get returns the first value for key
func (hc HeaderCarrier) Get(key string) string {
	if v, ok := hc[key]; ok && len(v) > 0 {
		return v[0]
	}
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	if v := hc[canonical]; len(v) > 0 {
		return v[0]
	}
	for k, v := range hc {
		if len(v) > 0 && textproto.CanonicalMIMEHeaderKey(k) == canonical {
			return v[0]
		}
	}
	return ""
}

// Set replaces the value for key
func (hc HeaderCarrier) Set(key, value string) {
	hc[textproto.CanonicalMIMEHeaderKey(key)] = []string{value}
}

// Keys returns all keys
func (hc HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(hc))
	for k := range hc {
		keys = append(keys, k)
	}
	return keys
}
