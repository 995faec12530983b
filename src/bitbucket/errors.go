package bitbucket

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPageSize is returned by RecentPipelines before any request is made.
	ErrInvalidPageSize = errors.New("page size must be a positive integer")

	// ErrMissingField means a required field was absent from a pipeline document.
	ErrMissingField = errors.New("missing required field")

	// ErrWatchdogExceeded is returned by Waiter.Wait when the pipeline is still
	// running after the maximum number of polling rounds.
	ErrWatchdogExceeded = errors.New("maximum waiting time exceeded")

	// ErrPipelineNotFound is returned by FindLatest when no record matches.
	ErrPipelineNotFound = errors.New("no pipeline found for branch")

	// ErrExhausted ends a PipelineSource.
	ErrExhausted = errors.New("no more pipelines")
)

// HTTPError is returned for any non-2xx response from the Bitbucket API.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: API request failed with status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
