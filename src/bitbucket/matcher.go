package bitbucket

import (
	"context"
	"errors"
	"fmt"

	"bbpipe/src/logger"
)

// FindLatest returns the first pipeline from src that ran on branch. Since
// sources are newest first this is the branch's most recent build. The
// caller bounds the search, typically with Limit.
func FindLatest(ctx context.Context, log logger.Logger, branch string, src PipelineSource) (Pipeline, error) {
	for {
		p, err := src.Next(ctx)
		if errors.Is(err, ErrExhausted) {
			return Pipeline{}, fmt.Errorf("%w %q", ErrPipelineNotFound, branch)
		}
		if err != nil {
			return Pipeline{}, err
		}

		target, ok := p.TargetBranch()
		if n, err := p.BuildNumber(); err == nil {
			log.Debug("Checking #%d: '%s'", n, target)
		}
		if ok && target == branch {
			return p, nil
		}
	}
}
