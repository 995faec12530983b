// Package gitutil reads state from the local git checkout.
package gitutil

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNoBranch is returned when HEAD does not point at a branch.
var ErrNoBranch = errors.New("unable to identify git branch")

// CurrentBranch returns the short name of the branch checked out in the
// repository containing path. A branch with no commits yet is still
// reported; a detached HEAD is an error.
func CurrentBranch(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoBranch, err)
	}

	// Read HEAD without resolving it so an unborn branch still has a name.
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoBranch, err)
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", fmt.Errorf("%w: HEAD is detached at %s", ErrNoBranch, head.Hash())
	}
	return head.Target().Short(), nil
}
