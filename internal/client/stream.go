package client

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"dealfeed/internal/domain"
)

// Stream is a growing product listing. Items only ever grow between
// FetchMore calls within one stream.
type Stream interface {
	Query() string
	Items() []domain.ProductRecord
	CanFetchMore() bool
	IsLoading() bool
	FetchMore(ctx context.Context) error
}

// Page is one decoded catalog listing page.
type Page struct {
	Number   int
	Products []domain.ProductRecord
	HasNext  bool
}

type pagedStream struct {
	fetcher PageFetcher
	query   string

	mu      sync.Mutex
	items   []domain.ProductRecord
	page    int
	hasNext bool
	loading bool
}

// OpenStream fetches the first page of query (popular when empty) and
// returns a stream positioned after it.
func OpenStream(ctx context.Context, fetcher PageFetcher, query string) (Stream, error) {
	s := &pagedStream{
		fetcher: fetcher,
		query:   query,
		hasNext: true,
	}
	if err := s.FetchMore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *pagedStream) Query() string {
	return s.query
}

func (s *pagedStream) Items() []domain.ProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *pagedStream) CanFetchMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasNext && !s.loading
}

func (s *pagedStream) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// FetchMore appends the next page. A call made while another fetch is in
// flight is a no-op.
func (s *pagedStream) FetchMore(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	if !s.hasNext {
		s.mu.Unlock()
		return domain.ErrNoMorePages
	}
	s.loading = true
	next := s.page + 1
	s.mu.Unlock()

	page, err := s.fetcher.GetPage(ctx, s.query, next)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return fmt.Errorf("failed to fetch page %d: %w", next, err)
	}

	s.page = next
	s.hasNext = page.HasNext && len(page.Products) > 0
	s.items = append(s.items, page.Products...)
	return nil
}
