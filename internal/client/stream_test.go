package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dealfeed/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[int]*Page
	err     error
	calls   []int
	block   chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) GetPage(ctx context.Context, query string, page int) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	block, started, err := f.block, f.started, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return f.pages[page], nil
}

func records(ids ...string) []domain.ProductRecord {
	out := make([]domain.ProductRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.ProductRecord{ID: id})
	}
	return out
}

func TestOpenStream_AppendsPages(t *testing.T) {
	f := &fakeFetcher{pages: map[int]*Page{
		1: {Number: 1, Products: records("a", "b"), HasNext: true},
		2: {Number: 2, Products: records("c"), HasNext: false},
	}}

	s, err := OpenStream(context.Background(), f, "q")
	require.NoError(t, err)
	assert.Equal(t, "q", s.Query())

	first := s.Items()
	require.NoError(t, s.FetchMore(context.Background()))
	second := s.Items()

	assert.Len(t, first, 2)
	assert.Equal(t, first, second[:2])
	assert.Equal(t, "c", second[2].ID)
	assert.False(t, s.CanFetchMore())
	assert.ErrorIs(t, s.FetchMore(context.Background()), domain.ErrNoMorePages)
	assert.Equal(t, []int{1, 2}, f.calls)
}

func TestOpenStream_EmptyPageEndsStream(t *testing.T) {
	f := &fakeFetcher{pages: map[int]*Page{
		1: {Number: 1, Products: nil, HasNext: true},
	}}

	s, err := OpenStream(context.Background(), f, "")
	require.NoError(t, err)
	assert.Empty(t, s.Items())
	assert.False(t, s.CanFetchMore())
}

func TestOpenStream_Error(t *testing.T) {
	f := &fakeFetcher{err: errors.New("catalog down")}

	_, err := OpenStream(context.Background(), f, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog down")
}

func TestStream_FailedFetchKeepsItems(t *testing.T) {
	f := &fakeFetcher{pages: map[int]*Page{
		1: {Number: 1, Products: records("a"), HasNext: true},
	}}
	s, err := OpenStream(context.Background(), f, "")
	require.NoError(t, err)

	f.mu.Lock()
	f.err = errors.New("timeout")
	f.mu.Unlock()

	assert.Error(t, s.FetchMore(context.Background()))
	assert.Len(t, s.Items(), 1)
	assert.False(t, s.IsLoading())
	assert.True(t, s.CanFetchMore())
}

func TestStream_ConcurrentFetchMoreIsNoop(t *testing.T) {
	f := &fakeFetcher{pages: map[int]*Page{
		1: {Number: 1, Products: records("a"), HasNext: true},
		2: {Number: 2, Products: records("b"), HasNext: true},
	}}
	s, err := OpenStream(context.Background(), f, "")
	require.NoError(t, err)

	f.mu.Lock()
	f.block = make(chan struct{})
	f.started = make(chan struct{}, 1)
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.FetchMore(context.Background()) }()
	<-f.started

	assert.True(t, s.IsLoading())
	assert.False(t, s.CanFetchMore())
	assert.NoError(t, s.FetchMore(context.Background()))

	close(f.block)
	require.NoError(t, <-done)
	assert.False(t, s.IsLoading())
	assert.Len(t, s.Items(), 2)
	assert.Equal(t, []int{1, 2}, f.calls)
}
