// Package hydra declares the ToolDescriptor and hooks for the hydra tool
// class: an online credential tester whose target encodes both a host and
// a service, and whose wordlist files are size-capped before the subprocess
// is ever spawned.
package hydra

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/validator"
)

// MaxThreads is the clamp ceiling for hydra's -t thread count.
const MaxThreads = 16

// MaxPasswordFileLines is the line-count cap for a -P password file.
const MaxPasswordFileLines = 10000

// MaxLoginFileBytes is the size cap for a -L login file.
const MaxLoginFileBytes = 1 << 20 // 1 MiB

var validServices = map[string]bool{
	"ssh": true, "ftp": true, "telnet": true, "http": true, "https": true,
	"smb": true, "ldap": true, "rdp": true, "mysql": true, "postgresql": true, "vnc": true,
}

var allowedFlags = []string{
	"-l", "-L", "-p", "-P", "-t", "-s", "-f", "-o", "-V", "-I",
}

// Descriptor returns the hydra ToolDescriptor.
func Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:                           "hydra",
		CommandName:                    "hydra",
		AllowedFlags:                   allowedFlags,
		DefaultTimeoutSec:              1200,
		Concurrency:                    1,
		CircuitBreakerEnabled:          true,
	}
}

// Hooks returns the hydra pre-flight and optimization hooks.
func Hooks() tool.Hooks {
	return tool.Hooks{
		Preflight: preflight,
		Optimize:  optimize,
	}
}

func preflight(in tool.Input) *tool.ErrorContext {
	host, _, err := parseTarget(in.Target)
	if err != nil {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            err.Error(),
			RecoverySuggestion: "use host:service, host:port:service, or service://host[:port]",
		}
	}
	if !validator.IsLabTarget(host) {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            fmt.Sprintf("extracted host %q is not an authorized lab target", host),
			RecoverySuggestion: "use an RFC1918/loopback address or a *.lab.internal hostname",
		}
	}

	tokens, err := validator.Tokenize(in.ExtraArgs)
	if err != nil {
		return &tool.ErrorContext{ErrorType: tool.ErrValidation, Message: err.Error()}
	}

	if !hasCredentialFlag(tokens) {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            "at least one of -l, -L, -p, -P is required",
			RecoverySuggestion: "supply a login and/or password source",
		}
	}

	if ec := checkWordlistCaps(tokens); ec != nil {
		return ec
	}

	return nil
}

// parseTarget accepts host:service, host:port:service, or
// service://host[:port], validating the service name against the
// substrate's permitted set and returning the extracted host.
func parseTarget(target string) (host, service string, err error) {
	if idx := strings.Index(target, "://"); idx >= 0 {
		service = target[:idx]
		host = target[idx+3:]
		if colon := strings.IndexByte(host, ':'); colon >= 0 {
			host = host[:colon]
		}
	} else {
		parts := strings.Split(target, ":")
		switch len(parts) {
		case 2:
			host, service = parts[0], parts[1]
		case 3:
			host, service = parts[0], parts[2]
		default:
			return "", "", fmt.Errorf("target %q does not match host:service, host:port:service, or service://host[:port]", target)
		}
	}

	if host == "" {
		return "", "", fmt.Errorf("target %q has an empty host", target)
	}
	if !validServices[service] {
		return "", "", fmt.Errorf("service %q is not permitted", service)
	}
	return host, service, nil
}

func hasCredentialFlag(tokens []string) bool {
	for _, t := range tokens {
		switch {
		case strings.HasPrefix(t, "-l"), strings.HasPrefix(t, "-L"),
			strings.HasPrefix(t, "-p"), strings.HasPrefix(t, "-P"):
			return true
		}
	}
	return false
}

// checkWordlistCaps enforces the login-file byte cap and password-file
// line-count cap named in spec §4.4. Missing or unreadable files fail
// validation rather than being silently skipped.
func checkWordlistCaps(tokens []string) *tool.ErrorContext {
	for i, t := range tokens {
		if t == "-L" && i+1 < len(tokens) {
			path := tokens[i+1]
			info, err := os.Stat(path)
			if err != nil {
				return &tool.ErrorContext{ErrorType: tool.ErrValidation, Message: fmt.Sprintf("cannot stat login file %q: %v", path, err)}
			}
			if info.Size() > MaxLoginFileBytes {
				return &tool.ErrorContext{
					ErrorType:          tool.ErrValidation,
					Message:            fmt.Sprintf("login file %q is %d bytes, exceeding the %d-byte cap", path, info.Size(), MaxLoginFileBytes),
					RecoverySuggestion: "use a login file no larger than 1 MiB",
				}
			}
		}
		if t == "-P" && i+1 < len(tokens) {
			path := tokens[i+1]
			lines, err := countLines(path, MaxPasswordFileLines+1)
			if err != nil {
				return &tool.ErrorContext{ErrorType: tool.ErrValidation, Message: fmt.Sprintf("cannot read password file %q: %v", path, err)}
			}
			if lines > MaxPasswordFileLines {
				return &tool.ErrorContext{
					ErrorType:          tool.ErrValidation,
					Message:            fmt.Sprintf("password file %q exceeds the %d-line cap", path, MaxPasswordFileLines),
					RecoverySuggestion: "use a password list with at most 10,000 lines",
				}
			}
		}
	}
	return nil
}

// countLines counts newlines in path, stopping early once it reaches limit.
func countLines(path string, limit int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		count++
		if count >= limit {
			break
		}
	}
	return count, scanner.Err()
}

// optimize clamps -t's thread count to MaxThreads; it never removes the
// flag, only lowers an excessive value.
func optimize(tokens []string) []string {
	out := make([]string, len(tokens))
	copy(out, tokens)
	for i, t := range out {
		if t != "-t" || i+1 >= len(out) {
			continue
		}
		n, err := strconv.Atoi(out[i+1])
		if err == nil && n > MaxThreads {
			out[i+1] = strconv.Itoa(MaxThreads)
		}
	}
	return out
}
