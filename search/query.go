package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sirzenith/galleryvault/gallery"
	"github.com/sirzenith/galleryvault/galleryerr"
	"github.com/sirzenith/galleryvault/httpclient"
)

func decodeJSONIntList(resp *http.Response, ids *[]int) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, ids)
}

const (
	defaultNamespace  = "global"
	pageSize          = 25
	pageResolveFanout = 8
	suggestionLimit   = 10
)

// term is one parsed query term (spec §4.4 "A query is an ordered
// sequence of positive and negative terms").
type term struct {
	namespace string
	value     string
	negative  bool
}

// ParseQuery splits a whitespace-separated query string into terms,
// defaulting unqualified terms to the "global" namespace and marking
// "-"-prefixed terms as negative (spec §4.4).
func ParseQuery(query string) []term {
	fields := strings.Fields(query)
	terms := make([]term, 0, len(fields))

	for _, f := range fields {
		negative := strings.HasPrefix(f, "-")
		if negative {
			f = f[1:]
		}

		namespace, value := defaultNamespace, f
		if idx := strings.Index(f, ":"); idx >= 0 {
			namespace, value = f[:idx], f[idx+1:]
		}

		if value == "" {
			continue
		}

		terms = append(terms, term{namespace: namespace, value: value, negative: negative})
	}

	return terms
}

// Engine implements C4 end to end: term lookup, intersection/difference,
// the default popularity index, pagination, and suggestions.
type Engine struct {
	client *httpclient.Client
	resolver *gallery.Resolver

	mu      sync.Mutex
	indexes map[string]*Index

	defaultIndex *Index
}

func NewEngine(client *httpclient.Client, resolver *gallery.Resolver) *Engine {
	return &Engine{
		client:       client,
		resolver:     resolver,
		indexes:      map[string]*Index{},
		defaultIndex: NewIndex(client, "galleriesindex"),
	}
}

func (e *Engine) indexFor(namespace string) *Index {
	e.mu.Lock()
	defer e.mu.Unlock()

	root := "tagindex/" + namespace
	idx, ok := e.indexes[root]
	if !ok {
		idx = NewIndex(e.client, root)
		e.indexes[root] = idx
	}
	return idx
}

// SearchResult mirrors the command surface's SearchResult shape (spec §6).
type SearchResult struct {
	IDs         []int
	Comics      []gallery.Comic
	TotalPage   int
	CurrentPage int
}

// Search resolves query to an ordered ID list (spec §4.4) and returns the
// requested page of comics (spec §4.4 "Pagination").
func (e *Engine) Search(ctx context.Context, query string, pageNum int) (*SearchResult, error) {
	ids, err := e.ResolveIDs(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.GetPage(ctx, ids, pageNum)
}

// ResolveIDs implements spec §4.4's intersection/difference algorithm. An
// empty query returns the full popularity-ordered index (spec "Default
// index query").
func (e *Engine) ResolveIDs(ctx context.Context, query string) ([]int, error) {
	terms := ParseQuery(query)
	if len(terms) == 0 {
		return e.DefaultIndex(ctx)
	}

	var positive, negative []term
	for _, t := range terms {
		if t.negative {
			negative = append(negative, t)
		} else {
			positive = append(positive, t)
		}
	}

	if len(positive) == 0 {
		return nil, fmt.Errorf("query %q has no positive terms", query)
	}

	var result []int
	for i, t := range positive {
		ids, err := e.lookupTerm(ctx, t)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = ids
			continue
		}
		result = intersect(result, ids)
	}

	for _, t := range negative {
		ids, err := e.lookupTerm(ctx, t)
		if err != nil {
			return nil, err
		}
		result = subtract(result, ids)
	}

	return result, nil
}

func (e *Engine) lookupTerm(ctx context.Context, t term) ([]int, error) {
	idx := e.indexFor(t.namespace)
	return idx.Lookup(ctx, t.value)
}

// DefaultIndex fetches galleriesindex/galleries.{version}.json verbatim
// (spec §4.4 "Default index query", oracle #6).
func (e *Engine) DefaultIndex(ctx context.Context) ([]int, error) {
	version, err := e.defaultIndex.Version(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://%s/galleriesindex/galleries.%s.json", siteHost, version)
	resp, err := e.client.Get(ctx, url)
	if err != nil {
		return nil, galleryerr.New(galleryerr.KindNetwork, "failed to fetch default gallery index", err)
	}
	defer resp.Body.Close()

	var ids []int
	if err := decodeJSONIntList(resp, &ids); err != nil {
		return nil, galleryerr.New(galleryerr.KindParse, "failed to parse default gallery index", err)
	}

	return ids, nil
}

// intersect preserves the order of a (spec: "preserve order from the first
// list — postings are pre-sorted by site popularity").
func intersect(a, b []int) []int {
	set := make(map[int]bool, len(b))
	for _, id := range b {
		set[id] = true
	}

	result := make([]int, 0, len(a))
	for _, id := range a {
		if set[id] {
			result = append(result, id)
		}
	}
	return result
}

// subtract removes every id in b from a, preserving a's order.
func subtract(a, b []int) []int {
	set := make(map[int]bool, len(b))
	for _, id := range b {
		set[id] = true
	}

	result := make([]int, 0, len(a))
	for _, id := range a {
		if !set[id] {
			result = append(result, id)
		}
	}
	return result
}

// GetPage slices ids for pageNum (1-based) at pageSize and resolves each ID
// to a Comic with bounded concurrency, preserving order (spec §4.4
// "Pagination").
func (e *Engine) GetPage(ctx context.Context, ids []int, pageNum int) (*SearchResult, error) {
	if pageNum < 1 {
		pageNum = 1
	}

	totalPage := (len(ids) + pageSize - 1) / pageSize
	if totalPage == 0 {
		totalPage = 1
	}

	start := (pageNum - 1) * pageSize
	if start > len(ids) {
		start = len(ids)
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}

	pageIDs := ids[start:end]
	comics := make([]gallery.Comic, len(pageIDs))
	errs := make([]error, len(pageIDs))

	sem := make(chan struct{}, pageResolveFanout)
	var wg sync.WaitGroup

	for i, id := range pageIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i, id int) {
			defer wg.Done()
			defer func() { <-sem }()

			comic, err := e.resolver.GetComic(ctx, id)
			if err != nil {
				errs[i] = err
				return
			}
			comics[i] = *comic
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return &SearchResult{
		IDs:         pageIDs,
		Comics:      comics,
		TotalPage:   totalPage,
		CurrentPage: pageNum,
	}, nil
}

// GetSearchSuggestions returns up to suggestionLimit entries for prefix,
// ordered by descending popularity then lexicographically (SPEC_FULL
// "Suggestion ranking").
func (e *Engine) GetSearchSuggestions(ctx context.Context, prefix string) ([]Suggestion, error) {
	namespace, value := defaultNamespace, prefix
	if idx := strings.Index(prefix, ":"); idx >= 0 {
		namespace, value = prefix[:idx], prefix[idx+1:]
	}

	idx := e.indexFor(namespace)
	suggestions, err := idx.WalkPrefix(ctx, value, suggestionLimit*4)
	if err != nil {
		return nil, err
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Count != suggestions[j].Count {
			return suggestions[i].Count > suggestions[j].Count
		}
		return suggestions[i].Text < suggestions[j].Text
	})

	if len(suggestions) > suggestionLimit {
		suggestions = suggestions[:suggestionLimit]
	}

	return suggestions, nil
}
