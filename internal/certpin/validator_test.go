package certpin

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/model"
)

// makeChain builds a CA plus a leaf for host, returning the presented chain
// and a root pool trusting the CA.
func makeChain(t *testing.T, host string) ([]*x509.Certificate, *x509.CertPool) {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ca key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("ca cert: %v", err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse ca: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("leaf key: %v", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, ca, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("leaf cert: %v", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)
	return []*x509.Certificate{leaf, ca}, roots
}

func TestValidate_PrimaryAndBackupPinsAccepted(t *testing.T) {
	t.Parallel()
	chain, roots := makeChain(t, "api.example.com")
	hash := SPKIHash(chain[0])

	for name, pins := range map[string]PinSet{
		"primary": {Primary: []string{hash}, Patterns: []string{"api.example.com"}},
		"backup":  {Primary: []string{"AAAA"}, Backup: []string{hash}, Patterns: []string{"api.example.com"}},
	} {
		v := NewValidator(pins, model.TrustStrict, nil, zap.NewNop(), WithRoots(roots))
		if got := v.Validate("api.example.com", chain); got != Accept {
			t.Fatalf("%s: got reject, want accept", name)
		}
	}
}

func TestValidate_UnpinnedHashRejected(t *testing.T) {
	t.Parallel()
	chain, roots := makeChain(t, "api.example.com")
	pins := PinSet{Primary: []string{"bm90LXRoZS1yaWdodC1waW4="}, Patterns: []string{"*.example.com"}}
	v := NewValidator(pins, model.TrustStrict, nil, zap.NewNop(), WithRoots(roots))
	if got := v.Validate("api.example.com", chain); got != Reject {
		t.Fatalf("got accept for unpinned hash, want reject")
	}
}

func TestValidate_HostOutsidePatternsUsesStandardValidationOnly(t *testing.T) {
	t.Parallel()
	chain, roots := makeChain(t, "cdn.example.org")
	pins := PinSet{Primary: []string{"bm90LXRoZS1yaWdodC1waW4="}, Patterns: []string{"*.example.com"}}
	v := NewValidator(pins, model.TrustStrict, nil, zap.NewNop(), WithRoots(roots))
	if got := v.Validate("cdn.example.org", chain); got != Accept {
		t.Fatalf("got reject for non-pinned host with valid chain, want accept")
	}
}

func TestValidate_EmptyPinSetForMatchedHostRejects(t *testing.T) {
	t.Parallel()
	chain, roots := makeChain(t, "api.example.com")
	pins := PinSet{Patterns: []string{"api.example.com"}}
	v := NewValidator(pins, model.TrustStrict, nil, zap.NewNop(), WithRoots(roots))
	if got := v.Validate("api.example.com", chain); got != Reject {
		t.Fatalf("empty pin set must deny for a pin-eligible host")
	}
}

func TestValidate_ChainFailureRejectsBeforePinning(t *testing.T) {
	t.Parallel()
	chain, _ := makeChain(t, "api.example.com")
	// No roots trusting the test CA: standard validation fails.
	pins := PinSet{Primary: []string{SPKIHash(chain[0])}, Patterns: []string{"api.example.com"}}
	v := NewValidator(pins, model.TrustStrict, nil, zap.NewNop(), WithRoots(x509.NewCertPool()))
	if got := v.Validate("api.example.com", chain); got != Reject {
		t.Fatalf("invalid chain must reject even with a matching pin")
	}
}

func TestValidate_SkipHostOnlyInPermissiveMode(t *testing.T) {
	t.Parallel()
	chain, _ := makeChain(t, "localhost")
	pins := PinSet{SkipHosts: []string{"localhost"}, Patterns: []string{"localhost"}, Primary: []string{"AAAA"}}

	perm := NewValidator(pins, model.TrustPermissive, nil, zap.NewNop(), WithRoots(x509.NewCertPool()))
	if got := perm.Validate("localhost", chain); got != Accept {
		t.Fatalf("permissive skip host must accept")
	}

	strict := NewValidator(pins, model.TrustStrict, nil, zap.NewNop(), WithRoots(x509.NewCertPool()))
	if got := strict.Validate("localhost", chain); got != Reject {
		t.Fatalf("strict mode must ignore the skip list")
	}
}

func TestValidate_MismatchOverrideRequiresPermissive(t *testing.T) {
	t.Parallel()
	chain, roots := makeChain(t, "api.example.com")
	pins := PinSet{Primary: []string{"bm90LXRoZS1yaWdodC1waW4="}, Patterns: []string{"api.example.com"}}

	perm := NewValidator(pins, model.TrustPermissive, nil, zap.NewNop(), WithRoots(roots), WithMismatchOverride())
	if got := perm.Validate("api.example.com", chain); got != Accept {
		t.Fatalf("permissive override must accept-and-log")
	}

	strict := NewValidator(pins, model.TrustStrict, nil, zap.NewNop(), WithRoots(roots), WithMismatchOverride())
	if got := strict.Validate("api.example.com", chain); got != Reject {
		t.Fatalf("override must be inert in strict mode")
	}
}

func TestPinSet_Matching(t *testing.T) {
	t.Parallel()
	p := PinSet{Patterns: []string{"api.example.com", "*.internal.example.com"}}
	cases := []struct {
		host string
		want bool
	}{
		{"api.example.com", true},
		{"API.EXAMPLE.COM", true},
		{"a.internal.example.com", true},
		{"internal.example.com", true},
		{"evil-api.example.com", false},
		{"example.com", false},
	}
	for _, c := range cases {
		if got := p.Matches(c.host); got != c.want {
			t.Fatalf("Matches(%q)=%v, want %v", c.host, got, c.want)
		}
	}
}
