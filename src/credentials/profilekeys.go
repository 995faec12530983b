// Package credentials stores Bitbucket usernames and app passwords in the
// system keychain, one pair per named profile.
package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Service is the keychain service all entries are stored under.
const Service = "bitbucket-cli2"

// DefaultProfile is used when no profile name is given.
const DefaultProfile = "default"

// ProfileKeys reads and writes the credentials of one profile.
type ProfileKeys struct {
	Profile string
}

// NewProfileKeys returns the keys for profile, or the default profile when
// profile is empty.
func NewProfileKeys(profile string) *ProfileKeys {
	if profile == "" {
		profile = DefaultProfile
	}
	return &ProfileKeys{Profile: profile}
}

func (k *ProfileKeys) usernameField() string { return "username-" + k.Profile }
func (k *ProfileKeys) passwordField() string { return "password-" + k.Profile }

// Username returns the stored username, or "" if none is stored.
func (k *ProfileKeys) Username() (string, error) {
	return k.get(k.usernameField())
}

// Password returns the stored password, or "" if none is stored.
func (k *ProfileKeys) Password() (string, error) {
	return k.get(k.passwordField())
}

// SetUsername stores the username for the profile.
func (k *ProfileKeys) SetUsername(value string) error {
	return k.set(k.usernameField(), value)
}

// SetPassword stores the password for the profile.
func (k *ProfileKeys) SetPassword(value string) error {
	return k.set(k.passwordField(), value)
}

// Delete removes both entries. Missing entries are not an error.
func (k *ProfileKeys) Delete() error {
	for _, field := range []string{k.usernameField(), k.passwordField()} {
		if err := keyring.Delete(Service, field); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete %s from keychain: %w", field, err)
		}
	}
	return nil
}

func (k *ProfileKeys) get(field string) (string, error) {
	value, err := keyring.Get(Service, field)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from keychain: %w", field, err)
	}
	return value, nil
}

func (k *ProfileKeys) set(field, value string) error {
	if err := keyring.Set(Service, field, value); err != nil {
		return fmt.Errorf("failed to store %s in keychain: %w", field, err)
	}
	return nil
}
