package access

import (
	"crypto/subtle"
	"time"
	"unicode/utf8"
)

const (
	MaxPayloadLength  = 1024 * 1024
	MaxPasswordLength = 128

	DefaultTTL = 7 * 24 * time.Hour
)

// isoMillis matches the output of JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// PayloadTooLong counts characters, not bytes.
func PayloadTooLong(payload string) bool {
	return utf8.RuneCountInString(payload) > MaxPayloadLength
}

func PasswordTooLong(password string) bool {
	return utf8.RuneCountInString(password) > MaxPasswordLength
}

// CheckPassword reports whether given unlocks a record protected by stored.
// An empty stored password disables the check.
func CheckPassword(stored, given string) bool {
	if stored == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// ExpiryAt returns the absolute expiry, in epoch milliseconds, of a record
// written at now with the given ttl.
func ExpiryAt(now time.Time, ttl time.Duration) int64 {
	return now.UnixMilli() + ttl.Milliseconds()
}

func FormatExpiry(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(isoMillis)
}

func ParseExpiry(s string) (int64, error) {
	t, err := time.Parse(isoMillis, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
