package model

// TrustMode selects strict (release) or permissive (local development)
// security policy. It is explicit configuration, never a compile-time
// conditional, so the permissive behavior is itself testable.
type TrustMode string

const (
	TrustStrict     TrustMode = "strict"
	TrustPermissive TrustMode = "permissive"
)

// Valid reports whether m is a known mode.
func (m TrustMode) Valid() bool { return m == TrustStrict || m == TrustPermissive }
