package access

import (
	"net/netip"
	"strconv"
	"strings"
)

// AnyIP is the rule stored when a record carries no IP restriction.
const AnyIP = "*.*.*.*"

const wildcard = "*"

// ValidIPRule reports whether rule is four dot-separated fields where each
// field is "*", a decimal octet or an inclusive range "a-b" with a <= b.
func ValidIPRule(rule string) bool {
	fields := strings.Split(rule, ".")
	if len(fields) != 4 {
		return false
	}
	for _, f := range fields {
		if !validField(f) {
			return false
		}
	}
	return true
}

func validField(f string) bool {
	if f == wildcard {
		return true
	}
	if lo, hi, ok := strings.Cut(f, "-"); ok {
		a, okA := parseOctet(lo)
		b, okB := parseOctet(hi)
		return okA && okB && a <= b
	}
	_, ok := parseOctet(f)
	return ok
}

func parseOctet(s string) (int, bool) {
	if len(s) == 0 || len(s) > 3 {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > 255 {
		return 0, false
	}
	return n, true
}

// MatchIP reports whether addr satisfies rule. The rule is expected to have
// passed ValidIPRule when it was stored; literal fields are compared by
// value without re-checking their bounds.
func MatchIP(rule, addr string) bool {
	ruleFields := strings.Split(rule, ".")
	addrFields := strings.Split(addr, ".")

	for i, rf := range ruleFields {
		if rf == wildcard {
			continue
		}
		if i >= len(addrFields) {
			return false
		}
		octet, err := strconv.Atoi(addrFields[i])
		if err != nil {
			return false
		}
		if lo, hi, ok := strings.Cut(rf, "-"); ok {
			a, errA := strconv.Atoi(lo)
			b, errB := strconv.Atoi(hi)
			if errA != nil || errB != nil || octet < a || octet > b {
				return false
			}
			continue
		}
		want, err := strconv.Atoi(rf)
		if err != nil || want != octet {
			return false
		}
	}
	return true
}

// ClientAddr returns raw with IPv4-mapped IPv6 addresses reduced to their
// dotted IPv4 form. Anything unparsable is returned unchanged.
func ClientAddr(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return addr.Unmap().String()
}
