package sqlmap_test

import (
	"testing"

	"github.com/openlab-sec/secmcp/internal/tool"
	"github.com/openlab-sec/secmcp/internal/tools/sqlmap"
)

func TestPreflightRequiresHTTPURL(t *testing.T) {
	hooks := sqlmap.Hooks()
	in := tool.Input{Target: "10.0.0.5", ExtraArgs: "--batch"}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected rejection of a non-URL target")
	}
}

func TestPreflightRejectsPublicHost(t *testing.T) {
	hooks := sqlmap.Hooks()
	in := tool.Input{Target: "http://8.8.8.8/login.php?id=1", ExtraArgs: "--batch"}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected rejection of a public host")
	}
}

func TestPreflightAcceptsLabTarget(t *testing.T) {
	hooks := sqlmap.Hooks()
	in := tool.Input{Target: "http://10.0.0.5/login.php?id=1", ExtraArgs: "--batch"}
	if ec := hooks.Preflight(in); ec != nil {
		t.Errorf("expected acceptance, got %v", ec)
	}
}

func TestPreflightAcceptsRiskAtCap(t *testing.T) {
	hooks := sqlmap.Hooks()
	in := tool.Input{Target: "http://10.0.0.5/login.php?id=1", ExtraArgs: "--risk 2"}
	if ec := hooks.Preflight(in); ec != nil {
		t.Errorf("expected --risk 2 to be accepted, got %v", ec)
	}
}

func TestPreflightRejectsRiskAboveCap(t *testing.T) {
	hooks := sqlmap.Hooks()
	in := tool.Input{Target: "http://10.0.0.5/login.php?id=1", ExtraArgs: "--risk 3"}
	ec := hooks.Preflight(in)
	if ec == nil {
		t.Fatal("expected --risk 3 to be rejected")
	}
	if ec.ErrorType != tool.ErrValidation {
		t.Errorf("expected VALIDATION_ERROR, got %s", ec.ErrorType)
	}
}

func TestPreflightRejectsRiskAboveCapEqualsForm(t *testing.T) {
	hooks := sqlmap.Hooks()
	in := tool.Input{Target: "http://10.0.0.5/login.php?id=1", ExtraArgs: "--risk=3"}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected --risk=3 to be rejected")
	}
}

func TestPreflightAcceptsLevelAtCap(t *testing.T) {
	hooks := sqlmap.Hooks()
	in := tool.Input{Target: "http://10.0.0.5/login.php?id=1", ExtraArgs: "--level 3"}
	if ec := hooks.Preflight(in); ec != nil {
		t.Errorf("expected --level 3 to be accepted, got %v", ec)
	}
}

func TestPreflightRejectsLevelAboveCap(t *testing.T) {
	hooks := sqlmap.Hooks()
	in := tool.Input{Target: "http://10.0.0.5/login.php?id=1", ExtraArgs: "--level 4"}
	if ec := hooks.Preflight(in); ec == nil {
		t.Error("expected --level 4 to be rejected")
	}
}

func TestOptimizeInjectsBatchWhenAbsent(t *testing.T) {
	hooks := sqlmap.Hooks()
	got := hooks.Optimize([]string{"--risk", "1"})
	count := 0
	for _, tk := range got {
		if tk == "--batch" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one --batch token, got %d in %v", count, got)
	}
}

func TestOptimizeDoesNotDuplicateBatch(t *testing.T) {
	hooks := sqlmap.Hooks()
	got := hooks.Optimize([]string{"--batch", "--risk", "1"})
	count := 0
	for _, tk := range got {
		if tk == "--batch" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one --batch token, got %d in %v", count, got)
	}
}
