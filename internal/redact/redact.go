// Package redact detects and replaces secrets in text before persistence.
// Every byte stored by the knowledge, constraint, and feedback stores passes
// through this engine first.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// SecretType classifies a detected secret
type SecretType string

// The fixed detection taxonomy. Metric labels use these values verbatim.
const (
	SecretAPIKey       SecretType = "api_key"
	SecretAWSAccessKey SecretType = "aws_access_key"
	SecretAWSSecretKey SecretType = "aws_secret_key"
	SecretPrivateKey   SecretType = "private_key"
	SecretPassword     SecretType = "password"
	SecretToken        SecretType = "token"
	SecretCertificate  SecretType = "certificate"
	SecretDatabaseURL  SecretType = "database_url"
	SecretJWT          SecretType = "jwt"
	SecretBearerToken  SecretType = "bearer_token"
	SecretBasicAuth    SecretType = "basic_auth"
	SecretGeneric      SecretType = "generic_secret"
)

// markerPrefix opens every redaction marker. Text already carrying a marker
// is never re-redacted, which makes the engine idempotent.
const markerPrefix = "[REDACTED:"

// Marker returns the replacement text for a secret of the given type
func Marker(t SecretType) string {
	return markerPrefix + string(t) + "]"
}

// Match describes one detected and replaced secret
type Match struct {
	SecretType SecretType `json:"secret_type"`
	PatternID  string     `json:"pattern_id"`
	LineNumber int        `json:"line_number"`
	// Redacted is a masked preview of the original value, safe to log
	Redacted string `json:"redacted_substring"`
}

// pattern binds a compiled expression to its taxonomy entry.
// group selects the submatch to replace; 0 replaces the whole match.
type pattern struct {
	id    string
	typ   SecretType
	re    *regexp.Regexp
	group int
}

// patterns are evaluated in order: structured, high-confidence formats first,
// generic key/value assignments last, so a value like an AWS key inside a
// `password:` line is attributed to the more specific type.
var patterns = []pattern{
	// PEM blocks span lines; redact the whole block including key material
	{"pem-private-key", SecretPrivateKey,
		regexp.MustCompile(`(?s)-----BEGIN (?:[A-Z]+ )*PRIVATE KEY(?: BLOCK)?-----.*?-----END (?:[A-Z]+ )*PRIVATE KEY(?: BLOCK)?-----`), 0},
	{"pem-certificate", SecretCertificate,
		regexp.MustCompile(`(?s)-----BEGIN CERTIFICATE-----.*?-----END CERTIFICATE-----`), 0},

	// Provider-issued token formats
	{"aws-access-key-id", SecretAWSAccessKey,
		regexp.MustCompile(`\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`), 0},
	{"aws-secret-assign", SecretAWSSecretKey,
		regexp.MustCompile(`(?i)\baws[_-]?secret[_-]?(?:access[_-]?)?key["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})`), 1},
	{"github-token", SecretToken,
		regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`), 0},
	{"gitlab-pat", SecretToken,
		regexp.MustCompile(`\bglpat-[A-Za-z0-9_-]{20,}\b`), 0},
	{"slack-token", SecretToken,
		regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`), 0},
	{"openai-key", SecretAPIKey,
		regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`), 0},

	// Structured credential formats
	{"jwt-structure", SecretJWT,
		regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\b`), 0},
	{"bearer-header", SecretBearerToken,
		regexp.MustCompile(`(?i)\bbearer\s+([A-Za-z0-9\-._~+/]{16,}=*)`), 1},
	{"basic-auth-header", SecretBasicAuth,
		regexp.MustCompile(`(?i)\bbasic\s+([A-Za-z0-9+/]{16,}={0,2})`), 1},
	{"dsn-credentials", SecretDatabaseURL,
		regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^\s:@/]+:([^\s@]+)@`), 1},
	{"url-basic-auth", SecretBasicAuth,
		regexp.MustCompile(`(?i)\bhttps?://[^\s:@/]+:([^\s@]+)@`), 1},

	// Key/value assignments, most specific key names first
	{"api-key-assign", SecretAPIKey,
		regexp.MustCompile(`(?i)\bapi[_-]?key["']?\s*[:=]\s*["']?([A-Za-z0-9\-._]{12,})`), 1},
	{"token-assign", SecretToken,
		regexp.MustCompile(`(?i)\b(?:access|auth|refresh|session)?[_-]?token["']?\s*[:=]\s*["']?([A-Za-z0-9\-._]{12,})`), 1},
	{"password-assign", SecretPassword,
		regexp.MustCompile(`(?i)\bpass(?:word|wd)?["']?\s*[:=]\s*["']?([^\s"',;]{6,})`), 1},
	{"secret-assign", SecretGeneric,
		regexp.MustCompile(`(?i)\b(?:client[_-]?secret|secret[_-]?key|secret)["']?\s*[:=]\s*["']?([^\s"',;]{8,})`), 1},
}

// Redact replaces every detected secret in text with a type-tagged marker
// and returns the redacted text plus one Match per replacement.
// The operation is idempotent: Redact(Redact(x)) == Redact(x).
func Redact(text string) (string, []Match) {
	var matches []Match
	out := text

	for _, p := range patterns {
		out = applyPattern(out, p, &matches)
	}

	return out, matches
}

// applyPattern rewrites all occurrences of one pattern, appending matches.
func applyPattern(text string, p pattern, matches *[]Match) string {
	locs := p.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0

	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if p.group > 0 {
			gs, ge := loc[2*p.group], loc[2*p.group+1]
			if gs < 0 {
				continue
			}
			start, end = gs, ge
		}

		value := text[start:end]
		// Skip values that are already redaction markers (idempotency),
		// and full matches whose value region contains one.
		if strings.Contains(value, markerPrefix) {
			continue
		}

		b.WriteString(text[last:start])
		b.WriteString(Marker(p.typ))
		last = end

		*matches = append(*matches, Match{
			SecretType: p.typ,
			PatternID:  p.id,
			LineNumber: lineOf(text, start),
			Redacted:   MaskSecret(value),
		})
	}

	b.WriteString(text[last:])
	return b.String()
}

// lineOf returns the 1-based line number of byte offset in text
func lineOf(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}

// MaskSecret masks a secret for safe logging, keeping the first and last
// four characters of long values. Short values are fully masked.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	if len(s) > 64 {
		s = s[:64]
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// CountByType aggregates matches into per-type counts, the shape the
// indexing metrics and progress record expect.
func CountByType(matches []Match) map[string]int {
	counts := make(map[string]int)
	for _, m := range matches {
		counts[string(m.SecretType)]++
	}
	return counts
}

// String implements fmt.Stringer for log output
func (m Match) String() string {
	return fmt.Sprintf("%s(%s) line %d", m.SecretType, m.PatternID, m.LineNumber)
}
