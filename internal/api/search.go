package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/humastar"
	"github.com/joeblew999/plat-campus/internal/prefs"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/search"
)

// RegisterSearch registers search routes.
func (h *APIHandler) RegisterSearch(api huma.API) {
	huma.Get(api, "/api/v1/search", h.Search, huma.OperationTags("search"))
	huma.Get(api, "/api/v1/search/filters", h.SearchFilters, huma.OperationTags("search"))
	huma.Get(api, "/api/v1/search/popular", h.PopularSearches, huma.OperationTags("search"))
}

type SearchInput struct {
	Query   string `query:"q" doc:"Search text" example:"столовая"`
	Filter  string `query:"filter" doc:"Facet id; empty means all" example:"transport"`
	Offset  int    `query:"offset" minimum:"0" default:"0" doc:"Results to skip"`
	Limit   int    `query:"limit" minimum:"1" maximum:"50" default:"20" doc:"Page size"`
	Session string `query:"session" doc:"Session whose history records the query"`
}

// SearchBody is one page of results. Paging links keep q and filter.
type SearchBody struct {
	humastar.Page
	Query       string          `json:"query" doc:"Query as received"`
	Filter      string          `json:"filter" doc:"Facet applied"`
	Results     []search.Result `json:"results" doc:"Matches in this page, best first"`
	Suggestions []string        `json:"suggestions" doc:"Names to suggest for the query"`
}

type FiltersInput struct {
	Query string `query:"q" doc:"Search text the counts are computed for"`
}

type FilterCount struct {
	registry.SearchFilter
	Count int `json:"count" doc:"Matches admitted by this facet"`
}

type PopularBody struct {
	Popular       []string               `json:"popular" doc:"Popular queries"`
	QuickSearches []registry.QuickSearch `json:"quickSearches" doc:"Canned queries"`
}

// index returns the current search index; release must be called when
// the handler is done with it.
func (h *APIHandler) index() (idx *search.Index, release func(), err error) {
	idx, release = h.m.Search()
	if idx == nil {
		release()
		return nil, nil, huma.Error503ServiceUnavailable("search index not built")
	}
	return idx, release, nil
}

func (h *APIHandler) Search(ctx context.Context, input *SearchInput) (*struct{ Body SearchBody }, error) {
	idx, release, err := h.index()
	if err != nil {
		return nil, err
	}
	defer release()
	page, err := idx.Query(input.Query, input.Filter, input.Limit, input.Offset)
	if err != nil {
		return nil, apiError(err)
	}

	if input.Session != "" && page.Total > 0 {
		if _, err := h.m.Sessions.Get(input.Session); err == nil {
			if _, err := prefs.RecordSearch(ctx, h.m.Prefs, input.Session, input.Query, h.m.Registry.Search.MaxHistory); err != nil {
				h.log().Warn("recording search history", zap.Error(err))
			}
		}
	}

	return &struct{ Body SearchBody }{Body: SearchBody{
		Page:        humastar.Page{Total: page.Total, Offset: input.Offset, Limit: input.Limit},
		Query:       page.Query,
		Filter:      page.Filter,
		Results:     page.Results,
		Suggestions: nonNil(idx.Suggestions(page.Results)),
	}}, nil
}

func (h *APIHandler) SearchFilters(ctx context.Context, input *FiltersInput) (*struct{ Body []FilterCount }, error) {
	idx, release, err := h.index()
	if err != nil {
		return nil, err
	}
	defer release()
	counts, err := idx.FilterCounts(input.Query)
	if err != nil {
		return nil, apiError(err)
	}
	out := []FilterCount{}
	for _, f := range h.m.Registry.Search.Filters {
		out = append(out, FilterCount{SearchFilter: f, Count: counts[f.ID]})
	}
	return &struct{ Body []FilterCount }{Body: out}, nil
}

func (h *APIHandler) PopularSearches(ctx context.Context, input *struct{}) (*struct{ Body PopularBody }, error) {
	idx, release, err := h.index()
	if err != nil {
		return nil, err
	}
	defer release()
	return &struct{ Body PopularBody }{Body: PopularBody{
		Popular:       nonNil(idx.Popular()),
		QuickSearches: nonNil(h.m.Registry.Search.QuickSearches),
	}}, nil
}
