package auth

import (
	"strconv"
	"strings"
	"time"
)

// Claim names carried in bearer tokens.
const (
	ClaimUsername = "username"
	ClaimEmail    = "email"
	ClaimIsAdmin  = "is_admin"
	ClaimUserID   = "user_id"
	ClaimExpiry   = "exp"
)

// Claims is the flat set of string assertions embedded in a token payload.
// Values never contain nested objects; the admin capability is the string
// "true" or "false".
type Claims map[string]string

func (c Claims) Username() string {
	return c[ClaimUsername]
}

func (c Claims) Email() string {
	return c[ClaimEmail]
}

// IsAdmin reports whether the token grants the admin capability.
func (c Claims) IsAdmin() bool {
	return c[ClaimIsAdmin] == "true"
}

// UserID returns the numeric user id, or 0 when the claim is absent or not a
// positive integer.
func (c Claims) UserID() int {
	id, err := strconv.Atoi(strings.TrimSpace(c[ClaimUserID]))
	if err != nil || id < 1 {
		return 0
	}
	return id
}

// ExpiresAt returns the expiry embedded in the token, if any.
func (c Claims) ExpiresAt() (time.Time, bool) {
	raw, ok := c[ClaimExpiry]
	if !ok {
		return time.Time{}, false
	}
	exp, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(exp, 0), true
}

// FormatAdmin renders the admin flag the way it is stored in claims.
func FormatAdmin(isAdmin bool) string {
	return strconv.FormatBool(isAdmin)
}
