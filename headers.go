package fourlimit

import (
	"math"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// headerHints holds the numeric header values resolved through
// Config.HeaderMappings for one response. A nil field means the header was
// missing, unparseable, or non-positive — all treated as absent.
type headerHints struct {
	limit          *float64
	remaining      *float64
	reset          *float64
	retryAfter     *float64
	dailyLimit     *float64
	hourlyLimit    *float64
	dailyRemaining *float64
}

func (h headerHints) empty() bool {
	return h.limit == nil && h.remaining == nil && h.reset == nil &&
		h.retryAfter == nil && h.dailyLimit == nil && h.hourlyLimit == nil &&
		h.dailyRemaining == nil
}

// headerValue resolves name against h, trying the mapping's exact spelling
// first and the canonical MIME form second (http.Header stores canonical
// keys, but callers may hand us maps built by other transports). Multiple
// values flatten into one string joined with ", ".
func headerValue(h http.Header, name string) (string, bool) {
	if vs, ok := h[name]; ok && len(vs) > 0 {
		return strings.Join(vs, ", "), true
	}
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	if vs, ok := h[canonical]; ok && len(vs) > 0 {
		return strings.Join(vs, ", "), true
	}
	return "", false
}

// parseHints reads every mapped field out of headers. Values must parse as
// finite positive numbers; anything else counts as absent.
func parseHints(mappings map[string]string, headers http.Header) headerHints {
	var hints headerHints
	if len(mappings) == 0 || len(headers) == 0 {
		return hints
	}
	for field, name := range mappings {
		raw, ok := headerValue(headers, name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f <= 0 {
			continue
		}
		v := f
		switch field {
		case FieldLimit:
			hints.limit = &v
		case FieldRemaining:
			hints.remaining = &v
		case FieldReset:
			hints.reset = &v
		case FieldRetryAfter:
			hints.retryAfter = &v
		case FieldDailyLimit:
			hints.dailyLimit = &v
		case FieldHourlyLimit:
			hints.hourlyLimit = &v
		case FieldDailyRemaining:
			hints.dailyRemaining = &v
		}
	}
	return hints
}
