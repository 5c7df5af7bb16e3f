package masscan_test

import (
	"testing"

	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/tools/masscan"
)

func TestPreflightAllowsOversizedCIDRButDoesNotReject(t *testing.T) {
	hooks := masscan.Hooks()
	if ec := hooks.Preflight(tool.Input{Target: "10.0.0.0/8"}); ec != nil {
		t.Errorf("masscan should only log, never reject, oversized CIDRs: %v", ec)
	}
}

func TestPreflightRejectsPublicTarget(t *testing.T) {
	hooks := masscan.Hooks()
	if ec := hooks.Preflight(tool.Input{Target: "1.1.1.1"}); ec == nil {
		t.Error("expected rejection of public target")
	}
}

func TestOptimizeInjectsRateAndWaitDefaults(t *testing.T) {
	hooks := masscan.Hooks()
	got := hooks.Optimize([]string{"-p", "80"})
	want := []string{"--rate=1000", "--wait=0.1", "-p", "80"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestOptimizeRespectsUserSuppliedRate(t *testing.T) {
	hooks := masscan.Hooks()
	got := hooks.Optimize([]string{"--rate=500"})
	count := 0
	for _, tk := range got {
		if tk == "--rate=500" {
			count++
		}
		if tk == "--rate=1000" {
			t.Error("should not inject default rate when user supplied one")
		}
	}
	if count != 1 {
		t.Errorf("expected user's --rate=500 to survive exactly once, got %d", count)
	}
}
