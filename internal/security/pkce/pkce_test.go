package pkce

import "testing"

func TestVerify_RFC7636Vector(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if !Verify(verifier, challenge, MethodS256) {
		t.Fatalf("expected S256 verification to succeed")
	}
	if Verify(verifier+"x", challenge, MethodS256) {
		t.Fatalf("mismatched verifier must fail")
	}
	if Verify(verifier, challenge, MethodPlain) {
		t.Fatalf("plain compare against S256 challenge must fail")
	}
}

func TestVerify_Plain(t *testing.T) {
	v := "plain-verifier-plain-verifier-plain-verifier-0123"
	if !Verify(v, v, MethodPlain) {
		t.Fatalf("plain verifier equal to challenge must pass")
	}
	if Verify(v, v+"1", MethodPlain) {
		t.Fatalf("plain mismatch must fail")
	}
	if Verify("", "", MethodPlain) {
		t.Fatalf("empty values must fail")
	}
}

func TestNewVerifier_RoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		v, c, err := NewVerifier()
		if err != nil {
			t.Fatalf("NewVerifier err: %v", err)
		}
		if !ValidFormat(v) || !ValidFormat(c) {
			t.Fatalf("generated values must follow RFC 7636 format: %q %q", v, c)
		}
		if !Verify(v, c, MethodS256) {
			t.Fatalf("generated pair must verify")
		}
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod(""); err != nil || m != MethodPlain {
		t.Fatalf("empty method must default to plain, got %q %v", m, err)
	}
	if m, err := ParseMethod("S256"); err != nil || m != MethodS256 {
		t.Fatalf("S256 parse failed: %q %v", m, err)
	}
	if _, err := ParseMethod("s256"); err == nil {
		t.Fatalf("method names are case sensitive")
	}
}

func TestValidFormat(t *testing.T) {
	if ValidFormat("short") {
		t.Fatalf("too short must be invalid")
	}
	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	if ValidFormat(string(long)) {
		t.Fatalf("too long must be invalid")
	}
	if ValidFormat("with space with space with space with space with") {
		t.Fatalf("spaces are not allowed")
	}
}
