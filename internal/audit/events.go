package audit

import (
	"github.com/omniai-app/securekit/internal/model"
)

// Convenience constructors for the common event shapes. Each builds an
// AuditEvent and calls Log; plaintext content never goes into the detail map,
// only sizes, algorithm names and outcomes.

// LogAuthentication records an authentication attempt. userID is empty for
// anonymous/guest attempts.
func (l *Logger) LogAuthentication(userID, method string, success bool) {
	sev := model.SeverityInfo
	action := "auth_success"
	if !success {
		sev = model.SeverityWarning
		action = "auth_failure"
	}
	l.Log(model.AuditEvent{
		Type:     model.EventAuthentication,
		Severity: sev,
		UserID:   userID,
		Action:   action,
		Detail:   map[string]string{"method": method},
	})
}

// LogSecurityIncident records a detected security condition (jailbreak, pin
// mismatch, tamper evidence).
func (l *Logger) LogSecurityIncident(action string, severity model.Severity, detail map[string]string) {
	l.Log(model.AuditEvent{
		Type:     model.EventSecurityIncident,
		Severity: severity,
		Action:   action,
		Detail:   detail,
	})
}

// LogDataAccess records access to a sensitive resource.
func (l *Logger) LogDataAccess(userID, resource, operation string) {
	l.Log(model.AuditEvent{
		Type:     model.EventDataAccess,
		Severity: model.SeverityInfo,
		UserID:   userID,
		Action:   operation,
		Detail:   map[string]string{"resource": resource},
	})
}

// LogFailure records an internal error observed by a component. The error
// string is included; payloads are not.
func (l *Logger) LogFailure(action string, err error) {
	detail := map[string]string{}
	if err != nil {
		detail["error"] = err.Error()
	}
	l.Log(model.AuditEvent{
		Type:     model.EventError,
		Severity: model.SeverityError,
		Action:   action,
		Detail:   detail,
	})
}
