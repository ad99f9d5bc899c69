// Package selector decides which catalog stream feeds the deal ranking.
package selector

import (
	"context"
	"fmt"

	"dealfeed/internal/client"
	"dealfeed/internal/domain"

	log "github.com/sirupsen/logrus"
)

// QueryBuilder is the part of the taxonomy the selector needs.
type QueryBuilder interface {
	BuildSelectionQuery(ids []string) string
}

type Selector struct {
	builder QueryBuilder
}

func New(builder QueryBuilder) *Selector {
	return &Selector{builder: builder}
}

// Resolve maps a category selection to a query state. A selection whose ids
// are all stale resolves to Unfiltered, same as an empty one.
func (s *Selector) Resolve(selection []string) domain.QueryState {
	if len(selection) == 0 {
		return domain.Unfiltered{}
	}

	query := s.builder.BuildSelectionQuery(selection)
	if query == "" {
		log.Debugf("None of %d selected categories produced a query, using popular stream", len(selection))
		return domain.Unfiltered{}
	}
	return domain.Filtered{Query: query}
}

// Open resolves the selection and opens the matching stream on source. The
// stream is returned as is; paging stays with the caller.
func (s *Selector) Open(ctx context.Context, source client.CatalogSource, selection []string) (client.Stream, domain.QueryState, error) {
	state := s.Resolve(selection)

	var (
		stream client.Stream
		err    error
	)
	switch st := state.(type) {
	case domain.Filtered:
		stream, err = source.Search(ctx, st.Query)
	default:
		stream, err = source.Popular(ctx)
	}
	if err != nil {
		return nil, state, fmt.Errorf("failed to open catalog stream (%v): %w", state, err)
	}

	return stream, state, nil
}
