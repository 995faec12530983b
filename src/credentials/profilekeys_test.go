package credentials

import (
	"testing"

	"github.com/zalando/go-keyring"
)

func init() {
	keyring.MockInit()
}

func TestNewProfileKeys_DefaultProfile(t *testing.T) {
	if got := NewProfileKeys("").Profile; got != DefaultProfile {
		t.Errorf("Profile = %q, want %q", got, DefaultProfile)
	}
	if got := NewProfileKeys("work").Profile; got != "work" {
		t.Errorf("Profile = %q, want work", got)
	}
}

func TestProfileKeys_NotFound(t *testing.T) {
	keys := NewProfileKeys("empty")

	user, err := keys.Username()
	if err != nil || user != "" {
		t.Errorf("Username() = %q, %v; want empty, nil", user, err)
	}
	pass, err := keys.Password()
	if err != nil || pass != "" {
		t.Errorf("Password() = %q, %v; want empty, nil", pass, err)
	}
}

func TestProfileKeys_SetAndGet(t *testing.T) {
	keys := NewProfileKeys("roundtrip")
	t.Cleanup(func() { _ = keys.Delete() })

	if err := keys.SetUsername("alice"); err != nil {
		t.Fatalf("SetUsername() error = %v", err)
	}
	if err := keys.SetPassword("s3cret"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	if user, _ := keys.Username(); user != "alice" {
		t.Errorf("Username() = %q, want alice", user)
	}
	// The password lives in its own field and must not clobber the username.
	if pass, _ := keys.Password(); pass != "s3cret" {
		t.Errorf("Password() = %q, want s3cret", pass)
	}
}

func TestProfileKeys_Fields(t *testing.T) {
	keys := NewProfileKeys("ci")
	t.Cleanup(func() { _ = keys.Delete() })

	if err := keys.SetPassword("pw"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	got, err := keyring.Get(Service, "password-ci")
	if err != nil || got != "pw" {
		t.Errorf("keyring.Get(password-ci) = %q, %v", got, err)
	}
	if _, err := keyring.Get(Service, "username-ci"); err != keyring.ErrNotFound {
		t.Errorf("username-ci should be unset, got err = %v", err)
	}
}

func TestProfileKeys_ProfilesAreIsolated(t *testing.T) {
	a := NewProfileKeys("a")
	b := NewProfileKeys("b")
	t.Cleanup(func() { _ = a.Delete(); _ = b.Delete() })

	_ = a.SetUsername("alice")
	_ = b.SetUsername("bob")

	if user, _ := a.Username(); user != "alice" {
		t.Errorf("a.Username() = %q", user)
	}
	if user, _ := b.Username(); user != "bob" {
		t.Errorf("b.Username() = %q", user)
	}
}

func TestProfileKeys_DeleteMissing(t *testing.T) {
	if err := NewProfileKeys("never-set").Delete(); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}
