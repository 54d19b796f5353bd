package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageOf builds a page with ids starting at page*size+1.
func pageOf(t *testing.T, page, size, total int) *Page {
	t.Helper()
	items := make([]string, 0, size)
	for i := page * size; i < total && i < (page+1)*size; i++ {
		items = append(items, fmt.Sprintf(`{"id":%d,"channel":"c%d"}`, i+1, i))
	}
	p, err := DecodePage([]byte(fmt.Sprintf(`{"items":[%s],"page":%d,"totalPages":%d,"totalElements":%d}`,
		strings.Join(items, ","), page, (total+size-1)/size, total)))
	require.NoError(t, err)
	return p
}

type recordingFetcher struct {
	t     *testing.T
	mu    sync.Mutex
	total int
	calls []string
}

func (f *recordingFetcher) Fetch(ctx context.Context, page, size int) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%d/%d", page, size))
	f.mu.Unlock()
	return pageOf(f.t, page, size, f.total), nil
}

func TestNewViewModelDefaults(t *testing.T) {
	vm := NewTableViewModel(&recordingFetcher{t: t}, nil)

	state := vm.Snapshot()
	assert.Equal(t, 0, state.Page)
	assert.Equal(t, 20, state.Size)
	assert.Nil(t, state.Data)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Err)
	assert.True(t, vm.NeedsLoad())
	assert.False(t, vm.CanGoPrev())
	assert.False(t, vm.CanGoNext())
	assert.Nil(t, vm.PageButtons())
}

func TestSetPageClampsToKnownRange(t *testing.T) {
	fetcher := &recordingFetcher{t: t, total: 200}
	vm := NewTableViewModel(fetcher, nil)
	ctx := context.Background()

	require.NoError(t, vm.SetPage(ctx, 5), "unknown total clamps to 0")
	assert.Equal(t, 0, vm.Snapshot().Page)

	require.NoError(t, vm.SetPage(ctx, 15))
	assert.Equal(t, 9, vm.Snapshot().Page)

	require.NoError(t, vm.SetPage(ctx, -3))
	assert.Equal(t, 0, vm.Snapshot().Page)

	assert.Equal(t, []string{"0/20", "9/20", "0/20"}, fetcher.calls)
}

func TestNextAndPrev(t *testing.T) {
	fetcher := &recordingFetcher{t: t, total: 45}
	vm := NewTableViewModel(fetcher, nil)
	ctx := context.Background()
	require.NoError(t, vm.Load(ctx))

	require.NoError(t, vm.NextPage(ctx))
	require.NoError(t, vm.NextPage(ctx))
	assert.Equal(t, 2, vm.Snapshot().Page)
	assert.False(t, vm.CanGoNext())
	assert.True(t, vm.CanGoPrev())

	require.NoError(t, vm.NextPage(ctx))
	assert.Equal(t, 2, vm.Snapshot().Page)

	require.NoError(t, vm.PrevPage(ctx))
	assert.Equal(t, 1, vm.Snapshot().Page)
}

func TestSetPageSizeResetsPage(t *testing.T) {
	fetcher := &recordingFetcher{t: t, total: 500}
	vm := NewTableViewModel(fetcher, nil)
	ctx := context.Background()
	require.NoError(t, vm.Load(ctx))
	require.NoError(t, vm.SetPage(ctx, 4))

	require.NoError(t, vm.SetPageSize(ctx, 50))
	state := vm.Snapshot()
	assert.Equal(t, 0, state.Page)
	assert.Equal(t, 50, state.Size)

	assert.ErrorIs(t, vm.SetPageSize(ctx, 15), ErrInvalidPageSize)
	assert.Equal(t, 50, vm.Snapshot().Size)
	assert.Equal(t, []string{"0/20", "4/20", "0/50"}, fetcher.calls)
}

func TestPageButtons(t *testing.T) {
	cases := []struct {
		page, total int
		want        []int
	}{
		{page: 0, total: 10, want: []int{0, 1, 2, 3, 4, 5, 6}},
		{page: 9, total: 10, want: []int{3, 4, 5, 6, 7, 8, 9}},
		{page: 5, total: 10, want: []int{2, 3, 4, 5, 6, 7, 8}},
		{page: 5, total: 20, want: []int{2, 3, 4, 5, 6, 7, 8}},
		{page: 0, total: 1, want: nil},
	}
	for _, tc := range cases {
		fetcher := FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
			return &Page{Items: []Item{}, Page: page, TotalPages: tc.total}, nil
		})
		vm := NewTableViewModel(fetcher, nil)
		vm.Restore(tc.page, 20, nil)
		require.NoError(t, vm.Load(context.Background()))
		assert.Equal(t, tc.want, vm.PageButtons(), "page=%d total=%d", tc.page, tc.total)
	}
}

func TestToggleExpanded(t *testing.T) {
	vm := NewTableViewModel(&recordingFetcher{t: t}, nil)

	assert.True(t, vm.ToggleExpanded(42))
	assert.True(t, vm.IsExpanded("42"), "numeric and string ids share a key")
	assert.False(t, vm.ToggleExpanded("42"))
	assert.False(t, vm.IsExpanded(42))

	vm.ToggleExpanded("b")
	vm.ToggleExpanded("a")
	assert.Equal(t, []string{"a", "b"}, vm.ExpandedIDs())
}

func TestLoadErrorClearsData(t *testing.T) {
	fail := false
	fetcher := FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		if fail {
			return nil, &HTTPError{StatusCode: 500}
		}
		return pageOf(t, page, size, 10), nil
	})
	vm := NewTableViewModel(fetcher, nil)
	require.NoError(t, vm.Load(context.Background()))
	require.NotNil(t, vm.Snapshot().Data)

	fail = true
	err := vm.Refresh(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)

	state := vm.Snapshot()
	assert.False(t, state.Loading)
	assert.Equal(t, "HTTP 500", state.Err)
	assert.Nil(t, state.Data)
	assert.False(t, vm.NeedsLoad())

	fail = false
	require.NoError(t, vm.Refresh(context.Background()))
	assert.Empty(t, vm.Snapshot().Err)
}

func TestNilPageIsParseError(t *testing.T) {
	vm := NewTableViewModel(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		return nil, nil
	}), nil)

	err := vm.Load(context.Background())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, vm.Snapshot().Err, "invalid response")
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	fetcher := FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		if size == 20 {
			close(firstStarted)
			<-releaseFirst
			// ignore cancellation and answer late
			return pageOf(t, page, size, 100), nil
		}
		return pageOf(t, page, size, 100), nil
	})
	vm := NewTableViewModel(fetcher, metrics)

	firstErr := make(chan error, 1)
	go func() { firstErr <- vm.Load(context.Background()) }()
	<-firstStarted
	assert.True(t, vm.Snapshot().Loading)
	assert.False(t, vm.CanGoNext(), "next is disabled while loading")

	require.NoError(t, vm.SetPageSize(context.Background(), 50))
	close(releaseFirst)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("first load did not return")
	}

	state := vm.Snapshot()
	assert.Equal(t, 50, state.Size)
	require.NotNil(t, state.Data)
	assert.Len(t, state.Data.Items, 50)
	assert.False(t, state.Loading)
	assert.Equal(t, 1.0, counterValue(t, reg, "auditview_superseded_total", ""))
}

func TestNewerLoadCancelsOlder(t *testing.T) {
	started := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		if page == 0 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return pageOf(t, page, size, 100), nil
	})
	vm := NewTableViewModel(fetcher, nil)
	vm.Restore(0, 10, nil)

	firstErr := make(chan error, 1)
	go func() { firstErr <- vm.Load(context.Background()) }()
	<-started

	vm.Restore(3, 10, nil)
	require.NoError(t, vm.Load(context.Background()))

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("older load was not cancelled")
	}
	assert.Equal(t, 3, vm.Snapshot().Data.Page)
}

func TestCallerCancelLeavesViewReloadable(t *testing.T) {
	vm := NewTableViewModel(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := vm.Load(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, vm.NeedsLoad())
	assert.Empty(t, vm.Snapshot().Err)
}

func TestRestore(t *testing.T) {
	vm := NewTableViewModel(&recordingFetcher{t: t}, nil)

	vm.Restore(-2, 33, []string{"7", ""})
	state := vm.Snapshot()
	assert.Equal(t, 0, state.Page)
	assert.Equal(t, DefaultPageSize, state.Size)
	assert.Equal(t, map[string]bool{"7": true}, state.Expanded)

	state.Expanded["8"] = true
	assert.False(t, vm.IsExpanded("8"), "snapshots are copies")
}
