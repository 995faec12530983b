package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// DefaultPageSize is the page length used when none is configured.
const DefaultPageSize = 10

// PipelineSource yields pipelines newest first. Next returns ErrExhausted
// once the source has nothing more to give.
type PipelineSource interface {
	Next(ctx context.Context) (Pipeline, error)
}

// pageFetcher fetches one page of recent pipelines.
type pageFetcher func(ctx context.Context, pageLen int) ([]Pipeline, error)

// PipelineIterator lazily pages through recent pipelines. A page is fetched
// only when the previous one has been fully consumed.
type PipelineIterator struct {
	fetch    pageFetcher
	pageSize int
	nextSize int
	buf      []Pipeline
	pages    int
	done     bool
}

// RecentPipelines returns an iterator over the repository's pipelines,
// newest first, requesting pageSize records per page. No request is made
// until Next is called.
func (c *Client) RecentPipelines(pageSize int) (*PipelineIterator, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size %d", ErrInvalidPageSize, pageSize)
	}
	return newPipelineIterator(c.listPipelines, pageSize, pageSize)
}

// RecentPipelinesWithInitial is RecentPipelines with a different size for
// the first page. Both sizes must be positive.
func (c *Client) RecentPipelinesWithInitial(pageSize, initialPageSize int) (*PipelineIterator, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size %d", ErrInvalidPageSize, pageSize)
	}
	if initialPageSize <= 0 {
		return nil, fmt.Errorf("%w: initial page size %d", ErrInvalidPageSize, initialPageSize)
	}
	return newPipelineIterator(c.listPipelines, pageSize, initialPageSize)
}

// newPipelineIterator requests firstPageSize records for the first page and
// pageSize for every later one.
func newPipelineIterator(fetch pageFetcher, pageSize, firstPageSize int) (*PipelineIterator, error) {
	if pageSize <= 0 || firstPageSize <= 0 {
		return nil, fmt.Errorf("%w: page sizes %d/%d", ErrInvalidPageSize, firstPageSize, pageSize)
	}
	return &PipelineIterator{
		fetch:    fetch,
		pageSize: pageSize,
		nextSize: firstPageSize,
	}, nil
}

// Next returns the next pipeline. It blocks on a page request whenever the
// current page is used up.
func (it *PipelineIterator) Next(ctx context.Context) (Pipeline, error) {
	if len(it.buf) == 0 {
		if it.done {
			return Pipeline{}, ErrExhausted
		}
		page, err := it.fetch(ctx, it.nextSize)
		if err != nil {
			return Pipeline{}, err
		}
		it.pages++
		it.nextSize = it.pageSize
		if len(page) == 0 {
			it.done = true
			return Pipeline{}, ErrExhausted
		}
		it.buf = page
	}

	p := it.buf[0]
	it.buf = it.buf[1:]
	return p, nil
}

// PagesFetched returns how many page requests have completed.
func (it *PipelineIterator) PagesFetched() int {
	return it.pages
}

// All adapts a source to a range-over-func sequence. Iteration stops at
// ErrExhausted; any other error is yielded once and ends the sequence.
func All(ctx context.Context, src PipelineSource) iter.Seq2[Pipeline, error] {
	return func(yield func(Pipeline, error) bool) {
		for {
			p, err := src.Next(ctx)
			if errors.Is(err, ErrExhausted) {
				return
			}
			if err != nil {
				yield(Pipeline{}, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

type limitedSource struct {
	src       PipelineSource
	remaining int
}

// Limit ends src with ErrExhausted after n records.
func Limit(src PipelineSource, n int) PipelineSource {
	return &limitedSource{src: src, remaining: n}
}

func (l *limitedSource) Next(ctx context.Context) (Pipeline, error) {
	if l.remaining <= 0 {
		return Pipeline{}, ErrExhausted
	}
	p, err := l.src.Next(ctx)
	if err != nil {
		return Pipeline{}, err
	}
	l.remaining--
	return p, nil
}
