package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces secrets in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"code":       {},
	"op":         {},
	"method":     {},
	"asset":      {},
	"component":  {},
	"request_id": {},
}

var addressKeys = map[string]struct{}{
	"user":       {},
	"caller":     {},
	"on_behalf":  {},
	"onbehalfof": {},
	"from":       {},
	"to":         {},
	"repayer":    {},
	"initiator":  {},
	"liquidator": {},
	"receiver":   {},
	"subject":    {},
}

// IsAccountKey reports whether key names a user account.
func IsAccountKey(key string) bool {
	_, ok := addressKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// IsAllowlisted reports whether key is logged verbatim.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the sorted verbatim keys.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskAddress shortens a hex account address to its first six and last four
// characters.
func MaskAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// MaskField returns an attribute for key. Allowlisted keys pass through,
// account keys are shortened and everything else is redacted. Empty values
// are kept as is.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	if IsAccountKey(key) {
		return slog.String(key, MaskAddress(value))
	}
	return slog.String(key, RedactedValue)
}
