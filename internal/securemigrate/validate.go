package securemigrate

import (
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Finding is one residual-secret detection from the validation re-scan.
type Finding struct {
	Key    string
	Reason string
}

var (
	base64Run    = regexp.MustCompile(`^[A-Za-z0-9+/=_-]{32,}$`)
	hexRun       = regexp.MustCompile(`(?i)^[0-9a-f]{32,}$`)
	upperRun     = regexp.MustCompile(`^[A-Z0-9]{20,}$`)
	secretPrefix = []string{"sk_", "sk-", "pk_", "ghp_", "gho_", "AKIA", "AIza", "xoxb-", "xoxp-"}
)

// ValidateSecureStorage independently re-scans the legacy store for any
// remaining suspicious key name or any value that structurally resembles a
// token or API key. It is a CI/QA check, not a runtime gate; each finding is
// logged and the full list returned.
func (m *Migrator) ValidateSecureStorage() ([]Finding, error) {
	keys, err := m.legacy.Keys()
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, key := range keys {
		if SuspiciousKeyName(key) {
			findings = append(findings, Finding{Key: key, Reason: "suspicious key name"})
			m.log.Warn("securemigrate: residual suspicious key", zap.String("key", key))
			continue
		}
		value, ok, err := m.legacy.Get(key)
		if err != nil || !ok {
			continue
		}
		if reason, sensitive := SensitiveValueShape(value); sensitive {
			findings = append(findings, Finding{Key: key, Reason: reason})
			m.log.Warn("securemigrate: residual sensitive-looking value",
				zap.String("key", key), zap.String("reason", reason))
		}
	}
	return findings, nil
}

// SensitiveValueShape reports whether value structurally resembles secret
// material, and why.
func SensitiveValueShape(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}
	for _, p := range secretPrefix {
		if strings.HasPrefix(v, p) {
			return "known secret prefix", true
		}
	}
	if looksLikeJWT(v) {
		return "JWT-shaped value", true
	}
	if hexRun.MatchString(v) {
		return "long hex run", true
	}
	if upperRun.MatchString(v) {
		return "long uppercase run", true
	}
	if base64Run.MatchString(v) {
		return "long base64 run", true
	}
	return "", false
}

// looksLikeJWT parses without verifying: structure alone marks the value.
func looksLikeJWT(v string) bool {
	if strings.Count(v, ".") != 2 {
		return false
	}
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(v, jwt.MapClaims{})
	return err == nil
}
