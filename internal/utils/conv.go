package utils

import "strconv"

// Pluralize returns "1 item" / "3 items".
func Pluralize(n int, singular, plural string) string {
	if n == 1 {
		return "1 " + singular
	}
	return strconv.Itoa(n) + " " + plural
}

// HasZeroPadding reports whether a numeric path segment like "05" needs a redirect.
func HasZeroPadding(s string) bool {
	return len(s) > 1 && s[0] == '0'
}
