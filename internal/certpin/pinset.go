// Package certpin validates server identity on every TLS handshake against a
// pinned allow-list of public-key hashes.
package certpin

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"strings"
)

// PinSet is read-only configuration: expected SPKI hashes and the hostname
// patterns they apply to. Safe for concurrent reads from any number of
// simultaneous handshakes.
type PinSet struct {
	// Primary and Backup are disjoint sets of base64(SHA-256(SPKI)) pins;
	// backups exist for rotation continuity.
	Primary []string `yaml:"primary"`
	Backup  []string `yaml:"backup"`
	// Patterns are hostname match patterns eligible for pinning, exact names
	// or "*.suffix" wildcards. Hosts matching none fall back to standard
	// chain validation alone.
	Patterns []string `yaml:"patterns"`
	// SkipHosts are development/loopback hosts accepted unconditionally in
	// permissive mode.
	SkipHosts []string `yaml:"skip_hosts"`
}

// SPKIHash returns base64(SHA-256(SubjectPublicKeyInfo)) for cert.
func SPKIHash(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Matches reports whether host matches any pinned pattern.
func (p *PinSet) Matches(host string) bool {
	return matchAny(host, p.Patterns)
}

// Skip reports whether host is on the development allow-list.
func (p *PinSet) Skip(host string) bool {
	return matchAny(host, p.SkipHosts)
}

// Contains reports whether hash is in the primary or backup pin set.
func (p *PinSet) Contains(hash string) bool {
	for _, pin := range p.Primary {
		if pin == hash {
			return true
		}
	}
	for _, pin := range p.Backup {
		if pin == hash {
			return true
		}
	}
	return false
}

// Empty reports whether no pins are configured at all.
func (p *PinSet) Empty() bool {
	return len(p.Primary) == 0 && len(p.Backup) == 0
}

func matchAny(host string, patterns []string) bool {
	host = strings.ToLower(host)
	for _, pat := range patterns {
		pat = strings.ToLower(pat)
		if pat == host {
			return true
		}
		if suffix, ok := strings.CutPrefix(pat, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) || host == suffix {
				return true
			}
		}
	}
	return false
}
