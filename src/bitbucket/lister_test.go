package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fakePages serves numbered pipelines and records the requested page sizes.
type fakePages struct {
	mu    sync.Mutex
	sizes []int
	next  int
	err   error
	// limit, when > 0, is the total number of pipelines available.
	limit int
}

func (f *fakePages) fetch(ctx context.Context, pageLen int) ([]Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sizes = append(f.sizes, pageLen)
	if f.err != nil {
		return nil, f.err
	}

	var page []Pipeline
	for i := 0; i < pageLen; i++ {
		if f.limit > 0 && f.next >= f.limit {
			break
		}
		f.next++
		page = append(page, testPipeline(fmt.Sprintf("{%d}", f.next), f.next, "main", `{"name":"COMPLETED"}`))
	}
	return page, nil
}

func testPipeline(id string, number int, branch, state string) Pipeline {
	var st State
	if err := json.Unmarshal([]byte(state), &st); err != nil {
		panic(err)
	}
	return Pipeline{
		UUID:   &id,
		Number: &number,
		State:  st,
		Target: Target{RefType: RefTypeBranch, RefName: branch},
	}
}

func TestRecentPipelines_InvalidPageSize(t *testing.T) {
	tests := []struct {
		name string
		list func(c *Client) (*PipelineIterator, error)
	}{
		{name: "zero page size", list: func(c *Client) (*PipelineIterator, error) { return c.RecentPipelines(0) }},
		{name: "negative page size", list: func(c *Client) (*PipelineIterator, error) { return c.RecentPipelines(-1) }},
		{name: "zero page size with initial", list: func(c *Client) (*PipelineIterator, error) { return c.RecentPipelinesWithInitial(0, 3) }},
		{name: "zero initial page size", list: func(c *Client) (*PipelineIterator, error) { return c.RecentPipelinesWithInitial(10, 0) }},
		{name: "negative initial page size", list: func(c *Client) (*PipelineIterator, error) { return c.RecentPipelinesWithInitial(10, -3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called atomic.Bool
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				called.Store(true)
			})

			it, err := tt.list(client)
			if !errors.Is(err, ErrInvalidPageSize) {
				t.Fatalf("error = %v, want ErrInvalidPageSize", err)
			}
			if it != nil {
				t.Error("returned an iterator on error")
			}
			if called.Load() {
				t.Error("made a request before failing")
			}
		})
	}
}

func TestNewPipelineIterator_RejectsZeroFirstPage(t *testing.T) {
	pages := &fakePages{}
	if _, err := newPipelineIterator(pages.fetch, 10, 0); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("newPipelineIterator(10, 0) error = %v, want ErrInvalidPageSize", err)
	}
	if len(pages.sizes) != 0 {
		t.Errorf("fetched %d pages before failing", len(pages.sizes))
	}
}

func TestRecentPipelines_Lazy(t *testing.T) {
	var requests atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"values":[{"uuid":"{1}","build_number":1,"state":{"name":"PENDING"}}]}`))
	})

	it, err := client.RecentPipelines(10)
	if err != nil {
		t.Fatalf("RecentPipelines() error = %v", err)
	}
	if n := requests.Load(); n != 0 {
		t.Fatalf("RecentPipelines() made %d requests before Next", n)
	}

	if _, err := it.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("requests = %d after first Next, want 1", n)
	}
}

func TestRecentPipelines_QueryParameters(t *testing.T) {
	var (
		mu       sync.Mutex
		pagelens []string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repositories/acme/widgets/pipelines/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("sort"); got != "-created_on" {
			t.Errorf("sort = %q, want -created_on", got)
		}
		pagelen := r.URL.Query().Get("pagelen")
		mu.Lock()
		pagelens = append(pagelens, pagelen)
		mu.Unlock()

		n, _ := strconv.Atoi(pagelen)
		body := `{"values":[`
		for i := 0; i < n; i++ {
			if i > 0 {
				body += ","
			}
			body += fmt.Sprintf(`{"uuid":"{%d}","build_number":%d,"state":{"name":"COMPLETED"}}`, i, i+1)
		}
		body += `]}`
		w.Write([]byte(body))
	})

	it, err := client.RecentPipelinesWithInitial(5, 2)
	if err != nil {
		t.Fatalf("RecentPipelines() error = %v", err)
	}
	for i := 0; i < 2+5+1; i++ {
		if _, err := it.Next(context.Background()); err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
	}

	want := []string{"2", "5", "5"}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(pagelens) != fmt.Sprint(want) {
		t.Errorf("pagelen sequence = %v, want %v", pagelens, want)
	}
	if it.PagesFetched() != 3 {
		t.Errorf("PagesFetched() = %d, want 3", it.PagesFetched())
	}
}

func TestPipelineIterator_PageBoundaries(t *testing.T) {
	pages := &fakePages{}
	it, err := newPipelineIterator(pages.fetch, 4, 4)
	if err != nil {
		t.Fatalf("newPipelineIterator() error = %v", err)
	}

	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		p, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if n, _ := p.BuildNumber(); n != i {
			t.Errorf("Next() build = %d, want %d", n, i)
		}
	}
	if len(pages.sizes) != 1 {
		t.Fatalf("fetched %d pages after consuming one, want 1 (no readahead)", len(pages.sizes))
	}

	if _, err := it.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(pages.sizes) != 2 {
		t.Errorf("fetched %d pages, want 2", len(pages.sizes))
	}
}

func TestPipelineIterator_TransportError(t *testing.T) {
	pages := &fakePages{err: &HTTPError{StatusCode: http.StatusUnauthorized}}
	it, _ := newPipelineIterator(pages.fetch, 10, 10)

	_, err := it.Next(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Next() error = %v, want *HTTPError", err)
	}
	if it.PagesFetched() != 0 {
		t.Errorf("PagesFetched() = %d after failed request, want 0", it.PagesFetched())
	}
}

func TestPipelineIterator_EmptyPageEnds(t *testing.T) {
	pages := &fakePages{limit: 3}
	it, _ := newPipelineIterator(pages.fetch, 2, 2)

	var got []int
	for p, err := range All(context.Background(), it) {
		if err != nil {
			t.Fatalf("All() error = %v", err)
		}
		n, _ := p.BuildNumber()
		got = append(got, n)
	}

	if fmt.Sprint(got) != "[1 2 3]" {
		t.Errorf("All() = %v, want [1 2 3]", got)
	}
	if _, err := it.Next(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Errorf("Next() after end = %v, want ErrExhausted", err)
	}
	// 2 + 1 + an empty page; nothing after the sequence ended.
	if len(pages.sizes) != 3 {
		t.Errorf("fetched %d pages, want 3", len(pages.sizes))
	}
}

func TestLimit(t *testing.T) {
	pages := &fakePages{}
	it, _ := newPipelineIterator(pages.fetch, 10, 3)
	src := Limit(it, 5)

	count := 0
	for _, err := range All(context.Background(), src) {
		if err != nil {
			t.Fatalf("All() error = %v", err)
		}
		count++
	}
	if count != 5 {
		t.Errorf("Limit() yielded %d, want 5", count)
	}
	if fmt.Sprint(pages.sizes) != "[3 10]" {
		t.Errorf("page sizes = %v, want [3 10]", pages.sizes)
	}
}

func TestAll_StopsEarly(t *testing.T) {
	pages := &fakePages{}
	it, _ := newPipelineIterator(pages.fetch, 3, 3)

	for p := range All(context.Background(), it) {
		if n, _ := p.BuildNumber(); n == 2 {
			break
		}
	}
	if len(pages.sizes) != 1 {
		t.Errorf("fetched %d pages, want 1", len(pages.sizes))
	}
}

// The first request uses the initial size when given; every later one uses
// the steady-state size.
func TestPipelineIterator_PageSizeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("page size sequence", prop.ForAll(
		func(pageSize, initial, pagesToRead int) bool {
			pages := &fakePages{}
			// initial == 0 stands for "no initial size".
			first := pageSize
			if initial > 0 {
				first = initial
			}
			it, err := newPipelineIterator(pages.fetch, pageSize, first)
			if err != nil {
				return false
			}
			total := first + (pagesToRead-1)*pageSize
			for i := 0; i < total; i++ {
				if _, err := it.Next(context.Background()); err != nil {
					return false
				}
			}

			if len(pages.sizes) != pagesToRead || pages.sizes[0] != first {
				return false
			}
			for _, size := range pages.sizes[1:] {
				if size != pageSize {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 20),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
