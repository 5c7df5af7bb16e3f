// Package masscan declares the ToolDescriptor and hooks for the masscan
// tool class: a fast internet-scale port scanner that, unlike nmap, only
// logs (does not reject) oversized CIDRs and injects a conservative default
// rate when the caller did not specify one.
package masscan

import (
	"log/slog"
	"strings"

	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/validator"
)

// LogCIDRThreshold is the network size (in addresses) above which masscan
// logs a warning but still proceeds — unlike nmap, masscan does not reject
// large networks outright (spec §4.4).
const LogCIDRThreshold = 65536 // a /16

var allowedFlags = []string{
	"-p", "--rate", "--wait", "--banners",
	"-oJ", "-oX", "-oG", "-oL",
	"--exclude", "--ping",
}

// Descriptor returns the masscan ToolDescriptor.
func Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:                           "masscan",
		CommandName:                    "masscan",
		AllowedFlags:                   allowedFlags,
		DefaultTimeoutSec:              300,
		Concurrency:                    1,
		CircuitBreakerEnabled:          true,
	}
}

// Hooks returns the masscan pre-flight and optimization hooks.
func Hooks() tool.Hooks {
	return tool.Hooks{
		Preflight: preflight,
		Optimize:  optimize,
	}
}

func preflight(in tool.Input) *tool.ErrorContext {
	if !validator.IsLabTarget(in.Target) {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            "target is not an authorized lab target",
			RecoverySuggestion: "use an RFC1918/loopback address, a private CIDR, or a *.lab.internal hostname",
		}
	}
	if size := validator.CIDRSize(in.Target); size > LogCIDRThreshold {
		slog.Warn("masscan target exceeds recommended network size",
			"target", in.Target,
			"addresses", size,
			"threshold", LogCIDRThreshold,
		)
	}
	return nil
}

// optimize injects --rate=1000 and --wait=0.1 when absent.
func optimize(tokens []string) []string {
	hasRate, hasWait := false, false
	for _, t := range tokens {
		switch {
		case strings.HasPrefix(t, "--rate"):
			hasRate = true
		case strings.HasPrefix(t, "--wait"):
			hasWait = true
		}
	}
	defaults := make([]string, 0, 2)
	if !hasRate {
		defaults = append(defaults, "--rate=1000")
	}
	if !hasWait {
		defaults = append(defaults, "--wait=0.1")
	}
	return append(defaults, tokens...)
}
