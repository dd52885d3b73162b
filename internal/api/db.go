package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-campus/internal/db"
)

// RegisterDB registers the DuckDB mirror routes.
func (h *APIHandler) RegisterDB(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("db"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("db"))
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"SQL query to execute" example:"SELECT layer, count(*) FROM features GROUP BY layer"`
	}
}

// ListTables returns all DuckDB tables.
func (h *APIHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.m.DB == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	tables, err := h.m.DB.Tables(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	out := &TablesOutput{}
	out.Body.Tables = nonNil(tables)
	return out, nil
}

// Query executes a SQL query against the features mirror.
func (h *APIHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body db.Result }, error) {
	if h.m.DB == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	res, err := h.m.DB.Query(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	return &struct{ Body db.Result }{Body: res}, nil
}
