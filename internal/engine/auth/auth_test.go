package auth

import (
	"errors"
	"testing"

	"socialservice/internal/config"
	"socialservice/internal/domain"
)

func TestPolicyFromDefaultConfig(t *testing.T) {
	p := NewPolicy(config.Default())
	if !p.Allowed("supervisor", "plan.resolve") {
		t.Fatalf("supervisor should resolve plan conformity")
	}
	if p.Allowed("student", "plan.resolve") {
		t.Fatalf("student must not resolve plan conformity")
	}
	if p.Allowed("ghost", "work.read") || p.Known("ghost") {
		t.Fatalf("unknown roles grant nothing")
	}
	err := p.Require(domain.Actor{ID: "42", Role: "student"}, "certificate.issue")
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Permission != "certificate.issue" || fe.Role != "student" {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestWildcardRole(t *testing.T) {
	cfg, err := config.FromYAML([]byte("rbac:\n  roles:\n    root:\n      permissions: [\"*\"]\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	p := NewPolicy(cfg)
	if !p.Allowed("root", "anything.at.all") {
		t.Fatalf("wildcard should allow everything")
	}
	if got := p.Permissions("supervisor"); len(got) == 0 || got[0] > got[len(got)-1] {
		t.Fatalf("expected sorted permissions, got %v", got)
	}
}
