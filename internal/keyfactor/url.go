package keyfactor

import (
	"net/url"
	"strings"
	"unicode"
)

// NormalizeURL accepts bare ("example.com/x") or schemed http(s) URLs and
// returns the schemed form. The host must contain a dot and end in an
// alphabetic label of at least two letters.
func NormalizeURL(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.ContainsAny(trimmed, " \t\n") {
		return "", false
	}
	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := parsed.Hostname()
	if !strings.Contains(host, ".") {
		return "", false
	}
	labels := strings.Split(host, ".")
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return "", false
	}
	for _, r := range tld {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return "", false
		}
	}
	return parsed.String(), true
}

// IsValidURL reports whether raw passes NormalizeURL.
func IsValidURL(raw string) bool {
	_, ok := NormalizeURL(raw)
	return ok
}
