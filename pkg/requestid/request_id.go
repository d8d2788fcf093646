// Package requestid assigns request identifiers.
package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header carries the request ID between hops
const Header = "X-Request-ID"

// maxLength bounds IDs accepted from clients
const maxLength = 128

// Generate returns a new random request ID
func Generate() string {
	return uuid.NewString()
}

// FromHeader returns the caller's request ID when it is present and
// printable, otherwise a new one
func FromHeader(h http.Header) string {
	id := strings.TrimSpace(h.Get(Header))
	if id == "" || len(id) > maxLength || !printable(id) {
		return Generate()
	}
	return id
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
