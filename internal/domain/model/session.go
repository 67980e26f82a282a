package model

import (
	"math"
	"strconv"
	"strings"
)

// Session is the identity the remote service currently recognizes.
// UserID is normalized with NormalizeUserID; empty means no identity.
type Session struct {
	UserID string
}

// NormalizeUserID reduces a user id of any wire type to a canonical decimal
// string so that 7, 7.0, "7" and " 007 " compare equal. Non-numeric and
// fractional ids are only trimmed.
func NormalizeUserID(raw string) string {
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}
