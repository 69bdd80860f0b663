package discovery

import (
	"testing"

	"github.com/linkmq/linkmq-go/pkg/cert"
)

func TestNodeIDFromCertificate(t *testing.T) {
	c, err := cert.GenerateSelfSigned(cert.SelfSignedOptions{Hosts: []string{"node-a.local"}})
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	id, err := NodeIDFromCertificate(c.Leaf)
	if err != nil {
		t.Fatalf("NodeIDFromCertificate: %v", err)
	}
	if !ValidateID(id) {
		t.Errorf("id %q is not valid", id)
	}
	again, _ := NodeIDFromCertificate(c.Leaf)
	if again != id {
		t.Errorf("id not stable: %q then %q", id, again)
	}
}

func TestRandomNodeID(t *testing.T) {
	a, b := RandomNodeID(), RandomNodeID()
	if !ValidateID(a) || !ValidateID(b) {
		t.Fatalf("invalid ids %q %q", a, b)
	}
	if a == b {
		t.Error("random ids collide")
	}
}

func TestValidateID(t *testing.T) {
	for id, want := range map[string]bool{
		"0123456789abcdef":  true,
		"0123456789ABCDEF":  false,
		"0123456789abcde":   false,
		"0123456789abcdefa": false,
		"0123456789abcdeg":  false,
	} {
		if got := ValidateID(id); got != want {
			t.Errorf("ValidateID(%q) = %v, want %v", id, got, want)
		}
	}
}
