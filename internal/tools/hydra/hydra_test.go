package hydra_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/tools/hydra"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestPreflightAcceptsHostColonService(t *testing.T) {
	loginFile := writeFile(t, "users.txt", "admin\n")
	hooks := hydra.Hooks()
	in := tool.Input{Target: "10.0.0.5:ssh", ExtraArgs: "-L " + loginFile + " -p test"}
	if ec := hooks.Preflight(in); ec != nil {
		t.Errorf("expected acceptance, got %v", ec)
	}
}

func TestPreflightAcceptsServiceURLForm(t *testing.T) {
	hooks := hydra.Hooks()
	in := tool.Input{Target: "ssh://10.0.0.5:2222", ExtraArgs: "-l admin -p hunter2"}
	if ec := hooks.Preflight(in); ec != nil {
		t.Errorf("expected acceptance, got %v", ec)
	}
}

func TestPreflightRejectsUnknownService(t *testing.T) {
	hooks := hydra.Hooks()
	in := tool.Input{Target: "10.0.0.5:bogus", ExtraArgs: "-l admin -p x"}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected rejection of unknown service")
	}
}

func TestPreflightRejectsPublicHost(t *testing.T) {
	hooks := hydra.Hooks()
	in := tool.Input{Target: "8.8.8.8:ssh", ExtraArgs: "-l admin -p x"}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected rejection of public host")
	}
}

func TestPreflightRequiresCredentialFlag(t *testing.T) {
	hooks := hydra.Hooks()
	in := tool.Input{Target: "10.0.0.5:ssh", ExtraArgs: "-t 4"}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected rejection with no -l/-L/-p/-P flag")
	}
}

func TestPreflightRejectsOversizedLoginFile(t *testing.T) {
	big := strings.Repeat("a", hydra.MaxLoginFileBytes+1)
	loginFile := writeFile(t, "big.txt", big)
	hooks := hydra.Hooks()
	in := tool.Input{Target: "10.0.0.5:ssh", ExtraArgs: "-L " + loginFile + " -p x"}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected rejection of oversized login file")
	}
}

func TestPreflightRejectsOversizedPasswordFile(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < hydra.MaxPasswordFileLines+1; i++ {
		sb.WriteString("x\n")
	}
	pwFile := writeFile(t, "pw.txt", sb.String())
	hooks := hydra.Hooks()
	in := tool.Input{Target: "10.0.0.5:ssh", ExtraArgs: "-l admin -P " + pwFile}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected rejection of oversized password file")
	}
}

func TestOptimizeClampsThreadCount(t *testing.T) {
	hooks := hydra.Hooks()
	got := hooks.Optimize([]string{"-l", "admin", "-p", "x", "-t", "64"})
	for i, tk := range got {
		if tk == "-t" {
			if got[i+1] != "16" {
				t.Errorf("expected thread count clamped to 16, got %q", got[i+1])
			}
		}
	}
}
