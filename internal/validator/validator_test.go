package validator_test

import (
	"strings"
	"testing"

	"github.com/openlab-sec/secmcp/internal/validator"
)

func TestIsLabTarget(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"private 192.168", "192.168.1.10", true},
		{"private 10/8", "10.0.0.5", true},
		{"private 172.16", "172.16.5.5", true},
		{"loopback", "127.0.0.1", true},
		{"lab hostname", "scanner-01.lab.internal", true},
		{"bare lab suffix", ".lab.internal", false},
		{"public ip", "8.8.8.8", false},
		{"ipv6 loopback", "::1", false},
		{"unqualified hostname", "scanner-01", false},
		{"malformed", "not an ip!!", false},
		{"cidr /22 private", "192.168.0.0/22", true},
		{"cidr /21 private but oversized is still lab", "192.168.0.0/21", true},
		{"cidr spanning public", "172.31.0.0/11", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validator.IsLabTarget(tc.in); got != tc.want {
				t.Errorf("IsLabTarget(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestCIDRSize(t *testing.T) {
	if got := validator.CIDRSize("192.168.0.0/22"); got != 1024 {
		t.Errorf("CIDRSize(/22) = %d, want 1024", got)
	}
	if got := validator.CIDRSize("192.168.0.0/21"); got != 2048 {
		t.Errorf("CIDRSize(/21) = %d, want 2048", got)
	}
	if got := validator.CIDRSize("not a cidr"); got != 0 {
		t.Errorf("CIDRSize(invalid) = %d, want 0", got)
	}
}

func TestValidateExtraArgsLength(t *testing.T) {
	ok := strings.Repeat("a", validator.MaxArgsLen)
	if _, err := validator.ValidateExtraArgs(ok, 0); err != nil {
		t.Errorf("exactly MaxArgsLen should be accepted: %v", err)
	}

	tooLong := strings.Repeat("a", validator.MaxArgsLen+1)
	if _, err := validator.ValidateExtraArgs(tooLong, 0); err == nil {
		t.Error("MaxArgsLen+1 should be rejected")
	}
}

func TestValidateExtraArgsMetachars(t *testing.T) {
	for _, bad := range []string{";", "&", "|", "`", "$", ">", "<", "\n", "\r"} {
		s := "-p 80" + bad + "rm -rf /"
		if _, err := validator.ValidateExtraArgs(s, 0); err == nil {
			t.Errorf("expected rejection for metachar %q", bad)
		}
	}
}

func TestTokenize(t *testing.T) {
	tokens, err := validator.Tokenize("-sV -p 22,80 --timeout=30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"-sV", "-p", "22,80", "--timeout=30"}
	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: got %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestTokenizeRejectsBadCharset(t *testing.T) {
	if _, err := validator.Tokenize("-p 80 rm\\-rf"); err == nil {
		t.Error("expected a token regex violation for backslash")
	}
}

func TestTokenizeQuoting(t *testing.T) {
	tokens, err := validator.Tokenize(`'22,80' "dir"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "22,80" || tokens[1] != "dir" {
		t.Fatalf("got %v", tokens)
	}
}

func TestEnforceAllowList(t *testing.T) {
	allow := []string{"--timeout", "-p", "-sV"}
	tokens := []string{"-sV", "-p", "22,80", "--timeout=30"}
	if err := validator.EnforceAllowList(tokens, allow); err != nil {
		t.Errorf("expected all tokens permitted: %v", err)
	}

	bad := []string{"-sV", "--script=vuln"}
	if err := validator.EnforceAllowList(bad, allow); err == nil {
		t.Error("expected rejection of --script=vuln")
	}
}

func TestEnforceAllowListEmptyMeansUnrestricted(t *testing.T) {
	if err := validator.EnforceAllowList([]string{"--anything"}, nil); err != nil {
		t.Errorf("empty allow-list should permit everything: %v", err)
	}
}
