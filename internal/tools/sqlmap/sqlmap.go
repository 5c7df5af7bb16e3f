// Package sqlmap declares the ToolDescriptor and hooks for the sqlmap tool
// class: an injection prober that only ever targets http(s) URLs. Its
// --risk and --level options are capped by rejection, not by silently
// lowering the value: §4.4 calls this "clamped" but the worked boundary
// example in §8 resolves the ambiguity explicitly ("--risk 3: ... spec:
// reject"), so an over-cap value is a VALIDATION_ERROR here, consistent
// with the decision already made for missing-required-argument handling.
package sqlmap

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/validator"
)

// MaxRisk and MaxLevel are the highest permitted values for sqlmap's --risk
// and --level options; anything above is rejected.
const (
	MaxRisk  = 2
	MaxLevel = 3
)

var allowedFlags = []string{
	"-u", "--risk", "--level", "--batch",
	"--dbs", "--tables", "--columns", "--dump",
	"--data", "--cookie", "--user-agent", "--random-agent",
	"--threads", "--technique",
}

// Descriptor returns the sqlmap ToolDescriptor.
func Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:                           "sqlmap",
		CommandName:                    "sqlmap",
		AllowedFlags:                   allowedFlags,
		DefaultTimeoutSec:              1800,
		Concurrency:                    1,
		CircuitBreakerEnabled:          true,
	}
}

// Hooks returns the sqlmap pre-flight and optimization hooks.
func Hooks() tool.Hooks {
	return tool.Hooks{
		Preflight: preflight,
		Optimize:  optimize,
	}
}

func preflight(in tool.Input) *tool.ErrorContext {
	u, err := url.Parse(in.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            fmt.Sprintf("target %q must be an http(s) URL", in.Target),
			RecoverySuggestion: "pass a target like http://10.0.0.5/login.php?id=1",
		}
	}
	if !validator.IsLabTarget(u.Hostname()) {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            fmt.Sprintf("target host %q is not an authorized lab target", u.Hostname()),
			RecoverySuggestion: "use an RFC1918/loopback address or a *.lab.internal hostname",
		}
	}

	tokens, err := validator.Tokenize(in.ExtraArgs)
	if err != nil {
		return &tool.ErrorContext{ErrorType: tool.ErrValidation, Message: err.Error()}
	}
	if n, ok := flagValue(tokens, "--risk"); ok && n > MaxRisk {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            fmt.Sprintf("--risk %d exceeds the maximum of %d", n, MaxRisk),
			RecoverySuggestion: fmt.Sprintf("use --risk %d or lower", MaxRisk),
		}
	}
	if n, ok := flagValue(tokens, "--level"); ok && n > MaxLevel {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            fmt.Sprintf("--level %d exceeds the maximum of %d", n, MaxLevel),
			RecoverySuggestion: fmt.Sprintf("use --level %d or lower", MaxLevel),
		}
	}
	return nil
}

// flagValue finds a flag given as either "--name value" (two tokens) or
// "--name=value" (one token) and parses its integer value.
func flagValue(tokens []string, name string) (int, bool) {
	for i, t := range tokens {
		if t == name && i+1 < len(tokens) {
			if n, err := strconv.Atoi(tokens[i+1]); err == nil {
				return n, true
			}
		}
		if strings.HasPrefix(t, name+"=") {
			if n, err := strconv.Atoi(strings.TrimPrefix(t, name+"=")); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// optimize forces --batch (sqlmap's non-interactive flag) when absent; it
// never appends a duplicate.
func optimize(tokens []string) []string {
	for _, t := range tokens {
		if t == "--batch" {
			return tokens
		}
	}
	return append(append([]string{}, tokens...), "--batch")
}
