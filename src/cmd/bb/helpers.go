package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"bbpipe/src/bitbucket"
	"bbpipe/src/config"
	"bbpipe/src/gitutil"
)

// parseExtras decodes --extras-json. Empty input means no variables.
// Nested objects and arrays are kept and later sent as JSON strings.
func parseExtras(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var extras map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&extras); err != nil {
		return nil, fmt.Errorf("--extras-json must be a JSON object: %w", err)
	}
	if extras == nil {
		return nil, fmt.Errorf("--extras-json must be a JSON object, got %s", raw)
	}
	return extras, nil
}

// resolveBranch returns flag, or the branch checked out in the working
// directory when flag is empty.
func resolveBranch(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	branch, err := gitutil.CurrentBranch(".")
	if err != nil {
		return "", fmt.Errorf("--branch not given: %w", err)
	}
	return branch, nil
}

// credentialSource is the read side of credentials.ProfileKeys.
type credentialSource interface {
	Username() (string, error)
	Password() (string, error)
}

// fillCredentials takes whatever username or password cfg lacks from keys.
func fillCredentials(cfg *config.Config, keys credentialSource) error {
	if cfg.Username == "" {
		user, err := keys.Username()
		if err != nil {
			return err
		}
		cfg.Username = user
	}
	if cfg.Password == "" {
		pass, err := keys.Password()
		if err != nil {
			return err
		}
		cfg.Password = pass
	}
	return nil
}

// outcomeError maps an outcome to the command result. Only a failed build
// is an error; a paused build exits cleanly.
func outcomeError(o bitbucket.Outcome) error {
	if o == bitbucket.OutcomeFailure {
		return errFailed
	}
	return nil
}
