// Package search builds an in-memory fuzzy text index over the features of
// the interactive layers and answers ranked, faceted queries against it.
package search

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/metrics"
	"github.com/joeblew999/plat-campus/internal/registry"
)

// ErrUnknownFilter is returned for facet ids the configuration lacks.
var ErrUnknownFilter = errors.New("unknown search filter")

const (
	// searchableField holds every text property of a feature.
	searchableField  = "searchable"
	searchableWeight = 10
	layerField       = "layer"
	prefixBoost      = 1.5
)

// Source is the read side of the feature store.
type Source interface {
	Features(layer string) ([]*features.Feature, error)
}

// searcher is the part of bleve.Index the query path uses.
type searcher interface {
	Search(req *bleve.SearchRequest) (*bleve.SearchResult, error)
}

// Result is one ranked match.
type Result struct {
	Layer    string            `json:"layer" doc:"Layer of the feature"`
	ID       string            `json:"id" doc:"Feature id"`
	Name     string            `json:"name" doc:"Display name"`
	Category registry.Category `json:"category" doc:"Layer category"`
	Score    float64           `json:"score" doc:"Relevance normalised to (0,1]"`
	Matches  []string          `json:"matches,omitempty" doc:"Fields that matched"`
	Feature  *features.Feature `json:"-"`
}

// Page is a slice of the results of one query.
type Page struct {
	Query   string   `json:"query" doc:"Query as received"`
	Filter  string   `json:"filter" doc:"Facet applied"`
	Total   int      `json:"total" doc:"Matches after filtering, capped at the configured maximum"`
	Results []Result `json:"results" doc:"Matches in this page"`
}

// Index is the search index. It is built once and only rebuilt by an
// explicit call to Build.
type Index struct {
	reg   *registry.Registry
	cfg   registry.SearchConfig
	log   *zap.Logger
	index bleve.Index
	text  searcher
	docs  map[string]*features.Feature
	order map[string]int
}

// Build indexes every loaded searchable layer. Layers that are not loaded
// are skipped.
func Build(reg *registry.Registry, src Source, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.NewNop()
	}
	idx, err := bleve.NewMemOnly(indexMapping(reg.Search))
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}

	x := &Index{
		reg:   reg,
		cfg:   reg.Search,
		log:   log,
		index: idx,
		text:  idx,
		docs:  make(map[string]*features.Feature),
		order: make(map[string]int),
	}

	batch := idx.NewBatch()
	for _, name := range reg.SearchableLayers() {
		feats, err := src.Features(name)
		if err != nil {
			log.Debug("search index skips layer", zap.String("layer", name), zap.Error(err))
			continue
		}
		for _, f := range feats {
			id := docID(f)
			x.docs[id] = f
			x.order[id] = len(x.order)
			if err := batch.Index(id, x.document(f)); err != nil {
				return nil, fmt.Errorf("indexing %s: %w", id, err)
			}
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("indexing features: %w", err)
	}
	log.Info("search index built", zap.Int("documents", len(x.docs)))
	return x, nil
}

func indexMapping(cfg registry.SearchConfig) *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	for _, f := range cfg.Fields {
		doc.AddFieldMappingsAt(f.Field, text)
	}
	doc.AddFieldMappingsAt(searchableField, text)
	doc.AddFieldMappingsAt(layerField, bleve.NewKeywordFieldMapping())

	im.AddDocumentMapping("feature", doc)
	im.DefaultType = "feature"
	im.DefaultMapping = doc
	return im
}

func docID(f *features.Feature) string { return f.Layer + "/" + f.ID }

func (x *Index) document(f *features.Feature) map[string]any {
	doc := map[string]any{layerField: f.Layer}
	for _, field := range x.cfg.Fields {
		if v := f.Props.Text(field.Field); v != "" {
			doc[field.Field] = v
		}
	}
	var all []string
	for _, k := range f.Props.Keys() {
		if strings.HasPrefix(k, "osm_") {
			continue
		}
		if v := f.Props.Text(k); v != "" {
			all = append(all, v)
		}
	}
	doc[searchableField] = strings.Join(all, " ")
	return doc
}

// Len returns the number of indexed features.
func (x *Index) Len() int { return len(x.docs) }

// Close releases the index.
func (x *Index) Close() error { return x.index.Close() }

// Query runs text against the index. Queries shorter than the configured
// minimum return an empty page without consulting the index. The facet is
// applied to the match set, then the configured maximum, then offset and
// limit. An empty filter means "all".
func (x *Index) Query(text, filter string, limit, offset int) (Page, error) {
	page := Page{Query: text, Filter: filter, Results: []Result{}}
	if page.Filter == "" {
		page.Filter = "all"
	}
	facet, ok := x.cfg.Filter(page.Filter)
	if !ok {
		return page, fmt.Errorf("%w: %s", ErrUnknownFilter, filter)
	}

	matches, err := x.match(text)
	if err != nil {
		return page, err
	}
	var kept []Result
	for _, r := range matches {
		if facet.Allows(r.Layer) {
			kept = append(kept, r)
		}
	}
	if len(kept) > x.cfg.MaxResults {
		kept = kept[:x.cfg.MaxResults]
	}
	page.Total = len(kept)

	if offset < 0 {
		offset = 0
	}
	if offset > len(kept) {
		offset = len(kept)
	}
	end := len(kept)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page.Results = append(page.Results, kept[offset:end]...)
	return page, nil
}

// FilterCounts returns, for each configured facet, how many matches of
// text it admits.
func (x *Index) FilterCounts(text string) (map[string]int, error) {
	matches, err := x.match(text)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(x.cfg.Filters))
	for _, f := range x.cfg.Filters {
		n := 0
		for _, r := range matches {
			if f.Allows(r.Layer) {
				n++
			}
		}
		if n > x.cfg.MaxResults {
			n = x.cfg.MaxResults
		}
		counts[f.ID] = n
	}
	return counts, nil
}

// Suggestions returns the distinct names of the first results, at most the
// configured suggestion count.
func (x *Index) Suggestions(results []Result) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		if len(out) == x.cfg.MaxSuggestions {
			break
		}
		if r.Name == "" || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		out = append(out, r.Name)
	}
	return out
}

// Popular returns the configured popular queries.
func (x *Index) Popular() []string {
	return append([]string(nil), x.cfg.PopularQueries...)
}

// match returns every result for text, best first.
func (x *Index) match(text string) ([]Result, error) {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < x.cfg.MinQueryLength {
		metrics.SearchesTotal.WithLabelValues("gated").Inc()
		return nil, nil
	}
	terms := x.terms(trimmed)
	if len(terms) == 0 || len(x.docs) == 0 {
		metrics.SearchesTotal.WithLabelValues("executed").Inc()
		return nil, nil
	}

	start := time.Now()
	req := bleve.NewSearchRequest(x.query(terms))
	req.Size = len(x.docs)
	req.IncludeLocations = true
	res, err := x.text.Search(req)
	metrics.SearchDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("search %q: %w", trimmed, err)
	}
	metrics.SearchesTotal.WithLabelValues("executed").Inc()

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		f, ok := x.docs[hit.ID]
		if !ok {
			continue
		}
		score := 1.0
		if res.MaxScore > 0 {
			score = hit.Score / res.MaxScore
		}
		var fields []string
		for field := range hit.Locations {
			if field != searchableField && field != layerField {
				fields = append(fields, field)
			}
		}
		sort.Strings(fields)
		out = append(out, Result{
			Layer:    f.Layer,
			ID:       f.ID,
			Name:     f.Name(),
			Category: f.Category,
			Score:    score,
			Matches:  fields,
			Feature:  f,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return x.order[docID(out[i].Feature)] < x.order[docID(out[j].Feature)]
	})
	return out, nil
}

// terms lowercases and splits text, drops stop words and expands synonyms.
// When every term is a stop word the original terms are kept.
func (x *Index) terms(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	stop := make(map[string]bool, len(x.cfg.StopWords))
	for _, w := range x.cfg.StopWords {
		stop[strings.ToLower(w)] = true
	}
	var kept []string
	for _, w := range words {
		if !stop[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		kept = words
	}

	seen := make(map[string]bool)
	var out []string
	add := func(w string) {
		for _, part := range strings.Fields(strings.ToLower(w)) {
			if !seen[part] {
				seen[part] = true
				out = append(out, part)
			}
		}
	}
	for _, w := range kept {
		add(w)
		for _, syn := range x.synonyms(w) {
			add(syn)
		}
	}
	return out
}

func (x *Index) synonyms(term string) []string {
	var out []string
	for key, list := range x.cfg.Synonyms {
		k := strings.ToLower(key)
		if k == term {
			out = append(out, list...)
			continue
		}
		for _, s := range list {
			if strings.ToLower(s) == term {
				out = append(out, key)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// query is a disjunction of weighted fuzzy term queries over every field
// plus a prefix query on the name.
func (x *Index) query(terms []string) blevequery.Query {
	var qs []blevequery.Query
	fields := append([]registry.SearchField(nil), x.cfg.Fields...)
	fields = append(fields, registry.SearchField{Field: searchableField, Weight: searchableWeight})
	for _, term := range terms {
		fuzziness := x.cfg.Fuzziness
		if utf8.RuneCountInString(term) <= 2 {
			fuzziness = 0
		}
		for _, f := range fields {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField(f.Field)
			fq.SetBoost(f.Weight / 100)
			qs = append(qs, fq)
		}
		pq := bleve.NewPrefixQuery(term)
		pq.SetField("name")
		pq.SetBoost(prefixBoost)
		qs = append(qs, pq)
	}
	return bleve.NewDisjunctionQuery(qs...)
}
