// Package gobuster declares the ToolDescriptor and hooks for the gobuster
// tool class: a content/DNS/vhost discovery tool whose first token is
// always a mode subcommand ("dir", "dns", or "vhost"), and whose target is
// passed as a -u/-d flag value rather than a trailing positional argument.
package gobuster

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/validator"
)

// validModes lists the gobuster subcommands the substrate permits.
var validModes = map[string]bool{"dir": true, "dns": true, "vhost": true}

var allowedFlags = []string{
	"-u", "-d", "-w", "-t",
	"--status-codes", "--status-codes-blacklist",
	"-x", "-o", "--timeout", "-q", "-k",
}

// Descriptor returns the gobuster ToolDescriptor.
func Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:                           "gobuster",
		CommandName:                    "gobuster",
		AllowedFlags:                   allowedFlags,
		DefaultTimeoutSec:              1200,
		Concurrency:                    1,
		CircuitBreakerEnabled:          true,
	}
}

// Hooks returns the gobuster pre-flight, optimization, and assembly hooks.
func Hooks() tool.Hooks {
	return tool.Hooks{
		Preflight:    preflight,
		Optimize:     optimize,
		AssembleArgs: assembleArgs,
	}
}

func preflight(in tool.Input) *tool.ErrorContext {
	tokens, err := validator.Tokenize(in.ExtraArgs)
	if err != nil {
		return &tool.ErrorContext{ErrorType: tool.ErrValidation, Message: err.Error()}
	}

	mode, err := extractMode(tokens)
	if err != nil {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            err.Error(),
			RecoverySuggestion: "extra_args must start with exactly one of: dir, dns, vhost",
		}
	}

	isURL := strings.HasPrefix(in.Target, "http://") || strings.HasPrefix(in.Target, "https://")
	host := in.Target
	if isURL {
		if u, err := url.Parse(in.Target); err == nil {
			host = u.Hostname()
		}
	}

	switch mode {
	case "dns":
		if isURL {
			return &tool.ErrorContext{
				ErrorType:          tool.ErrValidation,
				Message:            "dns mode requires a plain hostname or IP, not a URL",
				RecoverySuggestion: "pass a bare hostname or IP for dns mode",
			}
		}
	case "dir", "vhost":
		if !isURL {
			return &tool.ErrorContext{
				ErrorType:          tool.ErrValidation,
				Message:            fmt.Sprintf("%s mode requires an http(s) URL target", mode),
				RecoverySuggestion: "pass a target like http://10.0.0.5/ for dir/vhost mode",
			}
		}
	}

	if !validator.IsLabTarget(host) {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            fmt.Sprintf("target host %q is not an authorized lab target", host),
			RecoverySuggestion: "use an RFC1918/loopback address or a *.lab.internal hostname",
		}
	}
	return nil
}

// extractMode finds and validates the single leading mode token.
func extractMode(tokens []string) (string, error) {
	if len(tokens) == 0 || !validModes[tokens[0]] {
		return "", fmt.Errorf("extra_args must start with a mode token (dir, dns, vhost)")
	}
	mode := tokens[0]
	for _, t := range tokens[1:] {
		if validModes[t] {
			return "", fmt.Errorf("multiple mode tokens supplied (%q and %q)", mode, t)
		}
	}
	return mode, nil
}

// optimize injects mode-specific thread and status-code defaults, keeping
// the mode token in place at index 0 for assembleArgs to consume.
func optimize(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	mode := tokens[0]
	rest := tokens[1:]

	hasThreads := false
	hasStatusCodes := false
	for _, t := range rest {
		switch {
		case strings.HasPrefix(t, "-t"):
			hasThreads = true
		case strings.HasPrefix(t, "--status-codes"):
			hasStatusCodes = true
		}
	}

	defaults := make([]string, 0, 4)
	if !hasThreads {
		defaults = append(defaults, "-t", "10")
	}
	if mode != "dns" && !hasStatusCodes {
		defaults = append(defaults, "--status-codes=200,204,301,302,307,401,403")
	}

	out := append([]string{mode}, defaults...)
	return append(out, rest...)
}

// assembleArgs places the mode token first and injects "-u <target>" (for
// dir/vhost) or "-d <target>" (for dns) when the caller did not already
// supply a target flag — gobuster never takes the target as a trailing
// positional argument.
func assembleArgs(tokens []string, target string) []string {
	if len(tokens) == 0 {
		return []string{target}
	}
	mode := tokens[0]
	rest := tokens[1:]

	hasTargetFlag := false
	for _, t := range rest {
		if strings.HasPrefix(t, "-u") || strings.HasPrefix(t, "-d") {
			hasTargetFlag = true
			break
		}
	}

	args := append([]string{mode}, rest...)
	if !hasTargetFlag {
		flag := "-u"
		if mode == "dns" {
			flag = "-d"
		}
		args = append(args, flag, target)
	}
	return args
}
