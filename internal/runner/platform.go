package runner

import (
	"runtime"

	"al.essio.dev/pkg/shellescape"
)

// Command is one external program invocation.
type Command struct {
	Name  string
	Args  []string
	Shell string // optional shell wrapper, run as "<shell> -c <command line>"
	Dir   string
}

// Platform selects how a Command is turned into a spawned process.
type Platform struct {
	GOOS   string
	UseWSL bool
}

// HostPlatform returns the policy for the running operating system.
func HostPlatform(useWSL bool) Platform {
	return Platform{GOOS: runtime.GOOS, UseWSL: useWSL}
}

// IsWindows reports whether the policy targets Windows.
func (p Platform) IsWindows() bool {
	return p.GOOS == "windows"
}

// WSL reports whether commands are passed through the Windows Subsystem for Linux.
func (p Platform) WSL() bool {
	return p.IsWindows() && p.UseWSL
}

// Resolve returns the program and arguments actually spawned for c.
func (p Platform) Resolve(c Command) (string, []string) {
	if p.WSL() {
		args := make([]string, 0, len(c.Args)+1)
		args = append(args, c.Name)
		args = append(args, c.Args...)
		return "wsl", args
	}

	if c.Shell != "" {
		line := make([]string, 0, len(c.Args)+1)
		line = append(line, c.Name)
		line = append(line, c.Args...)
		return c.Shell, []string{"-c", shellescape.QuoteCommand(line)}
	}

	return c.Name, c.Args
}

// CommandLine renders the resolved invocation as a single shell-quoted line.
func (p Platform) CommandLine(c Command) string {
	name, args := p.Resolve(c)
	line := make([]string, 0, len(args)+1)
	line = append(line, name)
	line = append(line, args...)
	return shellescape.QuoteCommand(line)
}
