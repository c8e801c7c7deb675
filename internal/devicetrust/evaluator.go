package devicetrust

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/audit"
	"github.com/omniai-app/securekit/internal/model"
)

// Verdict is the output of one full evaluation: the per-probe result vector
// and its OR reduction. It is recomputed on demand and never persisted.
type Verdict struct {
	Compromised bool
	Results     map[string]bool
	Positive    []string // names of the probes that fired
}

// Policy is the three-state gate decision derived from a verdict.
type Policy int

const (
	PolicyAllow Policy = iota
	PolicyWarn
	PolicyBlock
)

func (p Policy) String() string {
	switch p {
	case PolicyWarn:
		return "warn"
	case PolicyBlock:
		return "block"
	default:
		return "allow"
	}
}

// Evaluator runs the probe battery. It never returns an error to its caller;
// a crashing probe counts as "no signal" for that probe only and never aborts
// the remaining probes.
type Evaluator struct {
	probes  []Probe
	host    Host
	mode    model.TrustMode
	auditor *audit.Logger
	log     *zap.Logger
}

// NewEvaluator builds an Evaluator over the given probes. auditor may be nil.
func NewEvaluator(probes []Probe, host Host, mode model.TrustMode, auditor *audit.Logger, log *zap.Logger) *Evaluator {
	return &Evaluator{probes: probes, host: host, mode: mode, auditor: auditor, log: log}
}

// Evaluate runs every probe independently and reduces by OR. A positive
// verdict emits one warning audit event before returning, regardless of the
// policy branch taken downstream.
func (e *Evaluator) Evaluate() Verdict {
	v := Verdict{Results: make(map[string]bool, len(e.probes))}
	for _, p := range e.probes {
		fired := e.runProbe(p)
		v.Results[p.Name] = fired
		if fired {
			v.Positive = append(v.Positive, p.Name)
		}
	}
	v.Compromised = len(v.Positive) > 0

	if v.Compromised {
		e.log.Warn("devicetrust: compromised environment detected",
			zap.Strings("probes", v.Positive))
		if e.auditor != nil {
			e.auditor.LogSecurityIncident("device_compromised", model.SeverityWarning,
				map[string]string{"probes": strings.Join(v.Positive, ",")})
		}
	}
	return v
}

// runProbe isolates one probe: a panic inside it is swallowed and counts as
// no signal for that probe only.
func (e *Evaluator) runProbe(p Probe) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("devicetrust: probe panicked", zap.String("probe", p.Name), zap.Any("reason", r))
			fired = false
		}
	}()
	return p.Run()
}

// DebuggerAttached reports whether a tracer is attached to this process.
func (e *Evaluator) DebuggerAttached() bool {
	f, err := os.Open(filepath.Join(e.host.Root, "proc/self/status"))
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if rest, ok := strings.CutPrefix(line, "TracerPid:"); ok {
			return strings.TrimSpace(rest) != "0"
		}
	}
	return false
}

// BinaryIntegrityOK reports whether the loaded-image list is free of known
// injection markers.
func (e *Evaluator) BinaryIntegrityOK() bool {
	return !probeInjectedLibraries(e.host)
}

// DecidePolicy maps the verdict plus the debugger and binary-integrity
// signals to the fixed policy table.
func (e *Evaluator) DecidePolicy() Policy {
	v := e.Evaluate()
	permissive := e.mode == model.TrustPermissive

	switch {
	case v.Compromised:
		if permissive {
			return PolicyWarn
		}
		return PolicyBlock
	case e.DebuggerAttached():
		if permissive {
			return PolicyAllow
		}
		return PolicyBlock
	case !e.BinaryIntegrityOK():
		return PolicyBlock
	default:
		return PolicyAllow
	}
}
