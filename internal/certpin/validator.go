package certpin

import (
	"crypto/tls"
	"crypto/x509"
	"errors"

	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/audit"
	"github.com/omniai-app/securekit/internal/model"
)

// Decision is the terminal outcome for one handshake. A reject is not an
// error to propagate; the network client turns it into a transport error.
type Decision int

const (
	Reject Decision = iota
	Accept
)

// ErrPinRejected is returned from the TLS layer when a handshake is refused.
var ErrPinRejected = errors.New("certpin: server identity rejected")

// Validator decides accept/reject per connection attempt.
type Validator struct {
	pins  PinSet
	mode  model.TrustMode
	roots *x509.CertPool // nil means system roots
	// allowMismatch accepts-and-logs a pin mismatch. Honored only in
	// permissive mode; production always rejects.
	allowMismatch bool

	auditor *audit.Logger
	log     *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithRoots overrides the root pool used for standard chain validation.
func WithRoots(pool *x509.CertPool) Option {
	return func(v *Validator) { v.roots = pool }
}

// WithMismatchOverride enables the accept-and-log development override.
func WithMismatchOverride() Option {
	return func(v *Validator) { v.allowMismatch = true }
}

// NewValidator builds a Validator. auditor may be nil in tests.
func NewValidator(pins PinSet, mode model.TrustMode, auditor *audit.Logger, log *zap.Logger, opts ...Option) *Validator {
	v := &Validator{pins: pins, mode: mode, auditor: auditor, log: log}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate runs the full decision procedure for host against the presented
// chain: development skip list, standard chain validation, then pin
// comparison for pin-eligible hosts.
func (v *Validator) Validate(host string, chain []*x509.Certificate) Decision {
	if len(chain) == 0 {
		v.reject(host, "", "empty certificate chain")
		return Reject
	}

	if v.mode == model.TrustPermissive && v.pins.Skip(host) {
		return Accept
	}

	if err := v.verifyChain(host, chain); err != nil {
		v.reject(host, SPKIHash(chain[0]), "chain validation failed")
		return Reject
	}

	if !v.pins.Matches(host) {
		// Not pin-eligible: standard validation alone governs.
		return Accept
	}

	hash := SPKIHash(chain[0])
	if v.pins.Empty() {
		// A pin-eligible host with no pins configured must deny, never
		// degrade to accept-everything. This is a configuration error.
		if v.auditor != nil {
			v.auditor.LogSecurityIncident("pin_config_empty", model.SeverityError,
				map[string]string{"host": host})
		}
		v.log.Error("certpin: no pins configured for pinned host", zap.String("host", host))
		return Reject
	}
	if v.pins.Contains(hash) {
		return Accept
	}

	if v.allowMismatch && v.mode == model.TrustPermissive {
		v.log.Warn("certpin: pin mismatch accepted by development override",
			zap.String("host", host), zap.String("spki", hash))
		if v.auditor != nil {
			v.auditor.LogSecurityIncident("pin_mismatch_override", model.SeverityWarning,
				map[string]string{"host": host, "spki": hash})
		}
		return Accept
	}

	v.reject(host, hash, "pin mismatch")
	return Reject
}

// reject audits the decision with the host and computed hash only, never raw
// certificate bytes.
func (v *Validator) reject(host, hash, reason string) {
	v.log.Warn("certpin: rejected", zap.String("host", host), zap.String("reason", reason))
	if v.auditor == nil {
		return
	}
	detail := map[string]string{"host": host, "reason": reason}
	if hash != "" {
		detail["spki"] = hash
	}
	v.auditor.LogSecurityIncident("pin_rejected", model.SeverityWarning, detail)
}

// verifyChain performs standard X.509 validation of the presented chain.
func (v *Validator) verifyChain(host string, chain []*x509.Certificate) error {
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Intermediates: intermediates,
		Roots:         v.roots,
	})
	return err
}

// TLSConfig returns a tls.Config that makes this validator the handshake
// authority. Default verification is disabled so the validator controls both
// the standard-validation and pinning steps; a rejected connection aborts
// before any request body is sent.
func (v *Validator) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, // verification happens in VerifyConnection
		VerifyConnection: func(cs tls.ConnectionState) error {
			if v.Validate(cs.ServerName, cs.PeerCertificates) != Accept {
				return ErrPinRejected
			}
			return nil
		},
	}
}
