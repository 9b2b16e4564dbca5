package order

import (
	"fmt"
	"regexp"
)

// DefaultNumberPrefix is used when the deployment does not configure one.
const DefaultNumberPrefix = "ORD"

var numberPattern = regexp.MustCompile(`^[A-Z]+-\d{4}-\d{6}$`)

// FormatNumber builds a human-readable order number, PREFIX-YYYY-NNNNNN.
// The six digit sequence resets each calendar year. Uniqueness is enforced
// by the orders table, not by this formatter; callers retry with the next
// sequence on a collision.
func FormatNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

// ValidNumber reports whether s looks like an order number.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}
