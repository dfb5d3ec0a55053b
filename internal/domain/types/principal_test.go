package types

import "testing"

func TestPrincipalRef_Subject(t *testing.T) {
	if got := UserRef("42").Subject(); got != "42" {
		t.Fatalf("user subject = %q", got)
	}
	if got := VisitorRef("abc").Subject(); got != "visitor:abc" {
		t.Fatalf("visitor subject = %q", got)
	}
	if got := (PrincipalRef{}).Subject(); got != "" {
		t.Fatalf("zero subject = %q", got)
	}
}

func TestPrincipalRef_UserIDLookingLikeVisitor(t *testing.T) {
	// Un username/id con prefijo "visitor:" sigue siendo un User.
	p := UserRef("visitor:evil")
	if p.IsVisitor() || !p.IsUser() {
		t.Fatalf("kind must come from the tag, not the id format")
	}
}

func TestParsePrincipal(t *testing.T) {
	p, err := ParsePrincipal("visitor", "s1")
	if err != nil || !p.IsVisitor() || p.ID() != "s1" {
		t.Fatalf("unexpected %v %v", p, err)
	}
	p, err = ParsePrincipal("", "")
	if err != nil || !p.IsZero() {
		t.Fatalf("empty kind must give zero ref: %v %v", p, err)
	}
	bad := [][2]string{{"user", ""}, {"", "x"}, {"admin", "1"}}
	for _, b := range bad {
		if _, err := ParsePrincipal(b[0], b[1]); err == nil {
			t.Fatalf("expected error for %v", b)
		}
	}
}

func TestParseGrantType(t *testing.T) {
	for _, g := range GrantTypes {
		if got, ok := ParseGrantType(string(g)); !ok || got != g {
			t.Fatalf("round trip failed for %s", g)
		}
	}
	if _, ok := ParseGrantType("implicit"); ok {
		t.Fatalf("implicit is not supported")
	}
}
