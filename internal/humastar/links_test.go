package humastar

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	ID   string `json:"id"`
	Open bool   `json:"open"`
}

var thingActions = []ActionDef[thing]{
	{Rel: "close", Pattern: "/things/%s/close", Method: http.MethodPost, Title: "Close"},
	{Rel: "reopen", Pattern: "/things/%s/open", Method: http.MethodPost,
		When: func(t thing) bool { return !t.Open }},
}

func (t thing) Actions() []Action { return ActionsFor(t.ID, t, thingActions) }

func newLinkedAPI(t *testing.T) humatest.TestAPI {
	t.Helper()
	cfg := huma.DefaultConfig("links", "1.0.0")
	cfg.CreateHooks = []func(huma.Config) huma.Config{}
	cfg.Transformers = append(cfg.Transformers, LinkTransformer())
	_, api := humatest.New(t, cfg)

	huma.Get(api, "/health", func(ctx context.Context, _ *struct{}) (*struct{ Body map[string]string }, error) {
		return &struct{ Body map[string]string }{Body: map[string]string{"status": "ok"}}, nil
	})
	huma.Get(api, "/things", func(ctx context.Context, _ *struct{}) (*struct{ Body []thing }, error) {
		return &struct{ Body []thing }{Body: []thing{}}, nil
	})
	huma.Get(api, "/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body thing }, error) {
		return &struct{ Body thing }{Body: thing{ID: in.ID, Open: in.ID == "open"}}, nil
	})
	huma.Get(api, "/things/{id}/stream", func(ctx context.Context, _ *struct {
		ID string `path:"id"`
	}) (*struct{ Body string }, error) {
		return &struct{ Body string }{Body: "x"}, nil
	}, huma.OperationTags("events"))
	huma.Get(api, searchPath, func(ctx context.Context, _ *struct{}) (*struct{ Body Page }, error) {
		return &struct{ Body Page }{Body: Page{Total: 5, Offset: 2, Limit: 2}}, nil
	})
	AutoLinks(api)
	return api
}

func TestAutoLinks(t *testing.T) {
	api := newLinkedAPI(t)

	entry := RootLinks()
	assert.Contains(t, entry, `</things>; rel="things"`)
	assert.Contains(t, entry, `</openapi.json>; rel="service-desc"`)
	assert.Contains(t, entry, `</api/v1/search>; rel="search"`)

	resp := api.Get("/things")
	got := resp.Header().Values("Link")
	assert.Contains(t, got, `</health>; rel="up"`)
	assert.Contains(t, got, `</api/v1/search>; rel="search"`)

	resp = api.Get("/things/abc")
	got = resp.Header().Values("Link")
	assert.Contains(t, got, `</things>; rel="collection"`)
	assert.Contains(t, got, `</things/abc>; rel="self"`)
	assert.Contains(t, got, `</things/abc/close>; rel="close"; method="POST"; title="Close"`)
	assert.Contains(t, got, `</things/abc/open>; rel="reopen"; method="POST"`)

	got = api.Get("/things/open").Header().Values("Link")
	assert.NotContains(t, got, `</things/open/open>; rel="reopen"; method="POST"`)

	for _, l := range api.Get("/things/abc/stream").Header().Values("Link") {
		assert.NotContains(t, l, `rel="up"`)
	}

	op := api.OpenAPI().Paths["/things/{id}"].Get
	require.NotNil(t, op.Responses["200"].Links)
	assert.Equal(t, "/things", op.Responses["200"].Links["collection"].OperationRef)
}

func TestPaginationLinks(t *testing.T) {
	u, err := url.Parse("/api/v1/search?q=cafe&offset=2&limit=2")
	require.NoError(t, err)

	got := Page{Total: 5, Offset: 2, Limit: 2}.PaginationLinks(*u)
	assert.Equal(t, []string{
		`</api/v1/search?limit=2&offset=0&q=cafe>; rel="first"`,
		`</api/v1/search?limit=2&offset=0&q=cafe>; rel="prev"`,
		`</api/v1/search?limit=2&offset=4&q=cafe>; rel="next"`,
		`</api/v1/search?limit=2&offset=4&q=cafe>; rel="last"`,
	}, got)

	assert.Nil(t, Page{Total: 5}.PaginationLinks(*u))

	empty := Page{Total: 0, Limit: 10}.PaginationLinks(*u)
	assert.Equal(t, []string{
		`</api/v1/search?limit=10&offset=0&q=cafe>; rel="first"`,
		`</api/v1/search?limit=10&offset=0&q=cafe>; rel="last"`,
	}, empty)
}

func TestSplitLink(t *testing.T) {
	href, rel, ok := splitLink(`</a/b>; rel="up"`)
	require.True(t, ok)
	assert.Equal(t, "/a/b", href)
	assert.Equal(t, "up", rel)

	_, _, ok = splitLink(`</a/b>`)
	assert.False(t, ok)
}
