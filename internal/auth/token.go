package auth

import (
	"crypto/hmac"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec issues and checks HS256 bearer tokens of the form
// base64url(header).base64url(payload).base64url(signature).
//
// Payloads are restricted to flat objects of string (or bare numeric)
// values. Decode uses a permissive scanner rather than a JSON parser: values
// containing an escaped quote, or claims holding nested objects or arrays,
// are not reproduced faithfully.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithClock returns a copy of the codec that reads the current time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	clone := *c
	clone.now = now
	return &clone
}

// Encode signs claims into a token. A positive ttl adds an integer exp claim
// (whole seconds from now); sub-second ttls are treated as no expiry.
func (c *TokenCodec) Encode(claims Claims, ttl time.Duration) (string, error) {
	if len(c.secret) == 0 {
		return "", errors.New("token secret is not configured")
	}

	payload := make(jwt.MapClaims, len(claims)+1)
	for key, value := range claims {
		payload[key] = value
	}
	if seconds := int64(ttl / time.Second); seconds > 0 {
		payload[ClaimExpiry] = c.now().Unix() + seconds
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString(c.secret)
}

// Decode extracts the payload claims without checking the signature. A token
// with fewer than two "." separators yields empty claims.
func (c *TokenCodec) Decode(token string) Claims {
	_, payload, _, ok := splitToken(token)
	if !ok {
		return Claims{}
	}
	return scanFlatObject(string(decodeSegment(payload)))
}

// Verify reports whether the signature matches and the token has not expired.
func (c *TokenCodec) Verify(token string) bool {
	header, payload, signature, ok := splitToken(token)
	if !ok || len(c.secret) == 0 {
		return false
	}

	signingInput := header + "." + payload
	expected, err := jwt.SigningMethodHS256.Sign(signingInput, c.secret)
	if err != nil {
		return false
	}
	encoded := base64.RawURLEncoding.EncodeToString(expected)
	if !hmac.Equal([]byte(encoded), []byte(strings.TrimRight(signature, "="))) {
		return false
	}

	raw, hasExpiry := c.Decode(token)[ClaimExpiry]
	if !hasExpiry {
		return true
	}
	exp, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return false
	}
	return c.now().Unix() < exp
}

func splitToken(token string) (header, payload, signature string, ok bool) {
	header, rest, found := strings.Cut(token, ".")
	if !found {
		return "", "", "", false
	}
	payload, signature, found = strings.Cut(rest, ".")
	if !found {
		return "", "", "", false
	}
	return header, payload, signature, true
}

// decodeSegment decodes base64url with or without padding. Decoding stops at
// the first byte outside the alphabet.
func decodeSegment(segment string) []byte {
	end := len(segment)
	for i := 0; i < len(segment); i++ {
		if !isBase64URL(segment[i]) {
			end = i
			break
		}
	}
	segment = segment[:end]
	if len(segment)%4 == 1 {
		segment = segment[:len(segment)-1]
	}
	decoded, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil
	}
	return decoded
}

func isBase64URL(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-', b == '_':
		return true
	default:
		return false
	}
}

// scanFlatObject pulls "key": "value" and "key": bare pairs out of a flat
// JSON object. It stops at the first pair it cannot finish and returns what
// it collected so far.
func scanFlatObject(payload string) Claims {
	claims := Claims{}
	idx := 0
	for idx < len(payload) {
		open := strings.IndexByte(payload[idx:], '"')
		if open < 0 {
			break
		}
		keyStart := idx + open + 1
		closeKey := strings.IndexByte(payload[keyStart:], '"')
		if closeKey < 0 {
			break
		}
		keyEnd := keyStart + closeKey
		key := payload[keyStart:keyEnd]

		colon := strings.IndexByte(payload[keyEnd:], ':')
		if colon < 0 {
			break
		}
		valStart := skipBlank(payload, keyEnd+colon+1)
		if valStart >= len(payload) {
			break
		}

		var value string
		if payload[valStart] == '"' {
			closeVal := strings.IndexByte(payload[valStart+1:], '"')
			if closeVal < 0 {
				break
			}
			value = payload[valStart+1 : valStart+1+closeVal]
			idx = valStart + closeVal + 2
		} else {
			end := strings.IndexAny(payload[valStart:], ",}")
			if end < 0 {
				break
			}
			value = strings.TrimSpace(payload[valStart : valStart+end])
			idx = valStart + end
		}

		claims[unescape(key)] = unescape(value)
	}
	return claims
}

func skipBlank(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// unescape resolves JSON escapes such as \u003c that the encoder emits for
// HTML-sensitive characters. Anything it cannot resolve is kept verbatim.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	unquoted, err := strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return s
	}
	return unquoted
}
