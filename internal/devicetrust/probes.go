// Package devicetrust detects a compromised execution environment by running a
// battery of independent heuristic probes and reducing them by logical OR.
package devicetrust

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Probe is one independent check. Run returns true on a positive signal
// (environment looks compromised). A probe must swallow its own internal
// errors: an error counts as "no signal" for that probe only.
type Probe struct {
	Name string
	Run  func() bool
}

// Host abstracts the parts of the environment the probes touch, so every
// probe is testable against a fake tree.
type Host struct {
	Root   string              // filesystem root, "/" in production
	Getenv func(string) string // os.Getenv in production
	Dial   func(string) (net.Conn, error)
	// Sandboxed declares that the runtime denies process spawning, making
	// the fork probe meaningful. Outside a sandbox every process can fork
	// and the probe would always fire.
	Sandboxed bool
}

// DefaultHost probes the real system.
func DefaultHost() Host {
	return Host{
		Root:   "/",
		Getenv: os.Getenv,
		Dial: func(addr string) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, 200*time.Millisecond)
		},
	}
}

// tamperArtifacts are filesystem traces of known instrumentation/rooting tools.
var tamperArtifacts = []string{
	"usr/sbin/frida-server",
	"usr/lib/frida",
	"usr/bin/cycript",
	"usr/libexec/substrate",
	"var/lib/substrate",
	"opt/rootless-jb",
	"private/var/tmp/cydia.log",
}

// protectedDirs are standard locations that must be real directories, not
// symlinks pointing elsewhere.
var protectedDirs = []string{"etc", "usr/lib", "var/log"}

// systemWriteTargets are locations a sandboxed process must not be able to
// write to.
var systemWriteTargets = []string{"usr/bin", "bin", "etc"}

// injectionMarkers are library-name fragments that indicate code injection
// when found in the process's loaded-image list.
var injectionMarkers = []string{"frida", "substrate", "cynject", "libhooker", "gadget"}

// toolPorts are well-known loopback ports opened by instrumentation tools.
var toolPorts = []string{"127.0.0.1:27042", "127.0.0.1:27043", "127.0.0.1:4444"}

// DefaultProbes returns the production probe battery for host.
func DefaultProbes(host Host) []Probe {
	probes := []Probe{
		{Name: "tamper_artifacts", Run: func() bool { return probeArtifacts(host) }},
		{Name: "symlink_anomalies", Run: func() bool { return probeSymlinks(host) }},
		{Name: "writable_system_path", Run: func() bool { return probeSystemWrite(host) }},
		{Name: "injected_libraries", Run: func() bool { return probeInjectedLibraries(host) }},
		{Name: "tool_ports", Run: func() bool { return probeToolPorts(host) }},
		{Name: "sandbox_policy", Run: func() bool { return probeRestrictedRead(host) }},
	}
	if host.Sandboxed {
		probes = append(probes, Probe{Name: "fork_escape", Run: probeFork})
	}
	return probes
}

func probeArtifacts(h Host) bool {
	for _, rel := range tamperArtifacts {
		if _, err := os.Lstat(filepath.Join(h.Root, rel)); err == nil {
			return true
		}
	}
	return false
}

func probeSymlinks(h Host) bool {
	for _, rel := range protectedDirs {
		info, err := os.Lstat(filepath.Join(h.Root, rel))
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return true
		}
	}
	return false
}

// probeSystemWrite attempts a scoped write+delete outside the sandbox.
// Success is the positive signal; the temp file is always removed.
func probeSystemWrite(h Host) bool {
	for _, rel := range systemWriteTargets {
		target := filepath.Join(h.Root, rel, ".sk_probe")
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
		if err != nil {
			continue
		}
		f.Close()
		os.Remove(target)
		return true
	}
	return false
}

func probeInjectedLibraries(h Host) bool {
	if h.Getenv("LD_PRELOAD") != "" || h.Getenv("DYLD_INSERT_LIBRARIES") != "" {
		return true
	}
	maps, err := os.ReadFile(filepath.Join(h.Root, "proc/self/maps"))
	if err != nil {
		return false
	}
	lower := strings.ToLower(string(maps))
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func probeToolPorts(h Host) bool {
	for _, addr := range toolPorts {
		conn, err := h.Dial(addr)
		if err != nil {
			continue
		}
		conn.Close()
		return true
	}
	return false
}

// probeFork spawns a short-lived child. Inside a correct sandbox the spawn is
// denied; success is the positive signal. The child is terminated immediately
// and reaped, never orphaned.
func probeFork() bool {
	cmd := exec.Command("/bin/true")
	if err := cmd.Start(); err != nil {
		return false
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	return true
}

// probeRestrictedRead queries a path the sandbox policy must deny. A
// successful read means the policy is not being enforced.
func probeRestrictedRead(h Host) bool {
	f, err := os.Open(filepath.Join(h.Root, "etc/shadow"))
	if err != nil {
		return false
	}
	f.Close()
	return true
}
