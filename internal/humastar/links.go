package humastar

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// EntryPath is the API entry point. It links to every collection.
const EntryPath = "/health"

const searchPath = "/api/v1/search"

// linkTable holds the Link header values of each operation path.
type linkTable struct {
	mu     sync.RWMutex
	byPath map[string][]string
}

var links = &linkTable{}

func (t *linkTable) get(p string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byPath[p]
}

func (t *linkTable) replace(byPath map[string][]string) {
	t.mu.Lock()
	t.byPath = byPath
	t.mu.Unlock()
}

// AutoLinks derives the navigation links of every registered operation from
// the OpenAPI document and records them as OpenAPI response links. Call it
// once all routes are registered. Streaming operations tagged "events" get
// no links.
//
// Derived relations:
//   - a path under another registered path links to it as "up"; the
//     parent of an {id} path is also its "collection"
//   - collections link "up" to the entry point and to search
//   - the entry point links to every collection by its last segment, and
//     to the OpenAPI document and docs
//   - GET operations with a named response schema get "describedby"
func AutoLinks(api huma.API) {
	oapi := api.OpenAPI()
	byPath := map[string][]string{}
	add := func(from, to, rel string) {
		v := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
		for _, existing := range byPath[from] {
			if existing == v {
				return
			}
		}
		byPath[from] = append(byPath[from], v)
	}

	var paths []string
	for p, pi := range oapi.Paths {
		if !streaming(pi) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	_, hasSearch := oapi.Paths[searchPath]

	for _, p := range paths {
		templated := strings.Contains(p, "{")
		if parent, ok := registeredParent(oapi, p); ok {
			add(p, parent, "up")
			if strings.HasSuffix(p, "}") {
				add(p, parent, "collection")
			}
		}
		if templated || p == EntryPath {
			continue
		}
		add(p, EntryPath, "up")
		if hasSearch && p != searchPath {
			add(p, searchPath, "search")
		}
		add(EntryPath, p, lastSegment(p))
	}

	add(EntryPath, "/openapi.json", "service-desc")
	add(EntryPath, "/docs", "service-doc")
	if hasSearch {
		add(EntryPath, searchPath, "search")
	}

	for _, p := range paths {
		if ref := responseSchema(oapi.Paths[p].Get); ref != "" {
			add(p, "/openapi.json#/components/schemas/"+ref, "describedby")
		}
	}

	for p, values := range byPath {
		pi, ok := oapi.Paths[p]
		if !ok {
			continue
		}
		for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
			if op != nil {
				documentLinks(op, values)
			}
		}
	}
	links.replace(byPath)
}

// LinkTransformer returns a Huma transformer that writes the derived
// links, a self link for templated paths, pagination links of Pager
// bodies and action links of Actor bodies.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}
		for _, l := range links.get(op.Path) {
			ctx.AppendHeader("Link", l)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, l := range p.PaginationLinks(ctx.URL()) {
				ctx.AppendHeader("Link", l)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

// RootLinks returns the entry point links for handlers outside Huma.
func RootLinks() []string {
	return links.get(EntryPath)
}

func streaming(pi *huma.PathItem) bool {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op == nil {
			continue
		}
		for _, t := range op.Tags {
			if t == "events" {
				return true
			}
		}
	}
	return false
}

// registeredParent walks up p until it reaches a registered path.
func registeredParent(oapi *huma.OpenAPI, p string) (string, bool) {
	for parent := path.Dir(p); parent != "/" && parent != "."; parent = path.Dir(parent) {
		if _, ok := oapi.Paths[parent]; ok {
			return parent, true
		}
	}
	return "", false
}

func lastSegment(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}

func responseSchema(op *huma.Operation) string {
	if op == nil {
		return ""
	}
	for code, resp := range op.Responses {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return path.Base(mt.Schema.Ref)
			}
		}
	}
	return ""
}

// documentLinks records link values as OpenAPI Link objects on the
// operation's success response.
func documentLinks(op *huma.Operation, values []string) {
	for code, resp := range op.Responses {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		if resp.Links == nil {
			resp.Links = map[string]*huma.Link{}
		}
		for _, v := range values {
			href, rel, ok := splitLink(v)
			if !ok {
				continue
			}
			resp.Links[rel] = &huma.Link{OperationRef: href, Description: "Related: " + rel}
		}
		return
	}
}

// splitLink parses a `<href>; rel="name"` value.
func splitLink(v string) (href, rel string, ok bool) {
	target, params, found := strings.Cut(v, ";")
	if !found {
		return "", "", false
	}
	rel, found = strings.CutPrefix(strings.TrimSpace(params), "rel=")
	if !found {
		return "", "", false
	}
	return strings.Trim(strings.TrimSpace(target), "<>"), strings.Trim(rel, `"`), true
}
