// Package provider turns Bitbucket client errors into messages fit for a
// terminal.
package provider

import (
	"errors"
	"fmt"
	"net/http"

	"bbpipe/src/bitbucket"
)

// UserError wraps errors with user-friendly messages
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n\nDetails: %v", e.Err)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// WrapError converts API errors to user-friendly messages
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *bitbucket.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &UserError{
				Message: "Authentication failed",
				Hint:    "Check your Bitbucket username and app password.\n  - Run: bb login\n  - Or set BB_USER and BB_PASSWORD",
				Err:     err,
			}
		case http.StatusNotFound:
			return &UserError{
				Message: "Pipeline not found",
				Hint:    "Check BB_WORKSPACE, BB_REPO and the pipeline id, and that your account can see the repository.",
				Err:     err,
			}
		}
	}

	if errors.Is(err, bitbucket.ErrPipelineNotFound) {
		return &UserError{
			Message: "No recent build for branch",
			Hint:    "Only the most recent builds are searched. Start one with: bb project start PIPELINE --branch BRANCH",
			Err:     err,
		}
	}

	if errors.Is(err, bitbucket.ErrWatchdogExceeded) {
		return &UserError{
			Message: "Maximum waiting time exceeded",
			Hint:    "The build is still running. Raise BB_WATCHDOG_MAX or BB_SLEEP_TIME, or run: bb project wait",
			Err:     err,
		}
	}

	return err
}
