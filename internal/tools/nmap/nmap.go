// Package nmap declares the ToolDescriptor and hooks for the nmap tool
// class: a network scanner whose only substrate-visible behavior is a CIDR
// size cap and a set of safe scan defaults injected when absent.
package nmap

import (
	"fmt"
	"strings"

	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/validator"
)

// MaxCIDRAddresses is the largest network nmap will scan in one invocation
// (a /22, 1024 addresses).
const MaxCIDRAddresses = 1024

// allowedFlags is the scan/timing/output flag set nmap invocations may use.
var allowedFlags = []string{
	"-sV", "-sS", "-sT", "-sU", "-sC", "-sn",
	"-p", "-Pn", "-PS", "-PA",
	"-T0", "-T1", "-T2", "-T3", "-T4", "-T5",
	"--max-parallelism", "--min-rate", "--max-rate",
	"-oN", "-oX", "-oG", "-v", "-A", "-O",
}

// Descriptor returns the nmap ToolDescriptor.
func Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:                           "nmap",
		CommandName:                    "nmap",
		AllowedFlags:                   allowedFlags,
		DefaultTimeoutSec:              600,
		Concurrency:                    1,
		CircuitBreakerEnabled:          true,
	}
}

// Hooks returns the nmap pre-flight and optimization hooks.
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
			Message:            fmt.Sprintf("target %q is not an authorized lab target", in.Target),
			RecoverySuggestion: "use an RFC1918/loopback address, a private CIDR, or a *.lab.internal hostname",
		}
	}
	if size := validator.CIDRSize(in.Target); size > 0 && size > MaxCIDRAddresses {
		return &tool.ErrorContext{
			ErrorType:          tool.ErrValidation,
			Message:            fmt.Sprintf("CIDR %q covers %d addresses, exceeding the %d-address cap", in.Target, size, MaxCIDRAddresses),
			RecoverySuggestion: "scan a /22 or smaller network",
		}
	}
	return nil
}

// optimize injects -T4, --max-parallelism=10, and -Pn when the caller did
// not already supply a timing template, parallelism setting, or ping-skip
// flag. It never removes a user-supplied token.
func optimize(tokens []string) []string {
	hasTiming := false
	hasParallelism := false
	hasPn := false
	for _, t := range tokens {
		switch {
		case len(t) == 3 && strings.HasPrefix(t, "-T"):
			hasTiming = true
		case strings.HasPrefix(t, "--max-parallelism"):
			hasParallelism = true
		case t == "-Pn":
			hasPn = true
		}
	}

	defaults := make([]string, 0, 3)
	if !hasTiming {
		defaults = append(defaults, "-T4")
	}
	if !hasParallelism {
		defaults = append(defaults, "--max-parallelism=10")
	}
	if !hasPn {
		defaults = append(defaults, "-Pn")
	}
	return append(defaults, tokens...)
}
